// Command createadmin provisions an account, by default an administrator.
//
//	createadmin -username admin -password 's3cret-pass'
//
// The password may also come from CREATEADMIN_PASSWORD. The account is created
// through the same path as the admin API, so the change is audited without an
// actor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"gestionale/internal/app"
	authservice "gestionale/internal/auth/service"
	"gestionale/internal/identity"
	"gestionale/internal/platform/config"
	"gestionale/internal/platform/logger"
)

func main() {
	username := flag.String("username", "", "account username (required)")
	password := flag.String("password", os.Getenv("CREATEADMIN_PASSWORD"), "account password")
	email := flag.String("email", "", "account email")
	role := flag.String("role", string(identity.RoleAdmin), "admin, technician or commercial")
	flag.Parse()

	if err := run(*username, *password, *email, *role); err != nil {
		fmt.Fprintln(os.Stderr, "createadmin:", err)
		os.Exit(1)
	}
}

func run(username, password, email, rawRole string) error {
	if username == "" || password == "" {
		return errors.New("-username and -password are required")
	}
	r, ok := identity.ParseRole(rawRole)
	if !ok {
		return fmt.Errorf("unknown role %q", rawRole)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required: in-memory accounts would not outlive this command")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger.New(cfg.Log))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	user, err := a.Auth.Provision(ctx, authservice.CreateUserCommand{
		Username: username,
		Email:    email,
		Password: password,
		Role:     r,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s %s (%s)\n", user.Role, user.Username, user.ID)
	return nil
}
