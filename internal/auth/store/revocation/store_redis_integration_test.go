//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gestionale/internal/auth/store/revocation"
	"gestionale/pkg/testutil/containers"
)

type RedisTRLSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	trl   *revocation.RedisTRL
	ctx   context.Context
}

func TestRedisTRLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTRLSuite))
}

func (s *RedisTRLSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.trl = revocation.NewRedisTRL(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisTRLSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisTRLSuite) TestRevokeAndCheck() {
	s.Require().NoError(s.trl.RevokeToken(s.ctx, "jti-1", time.Minute))

	revoked, err := s.trl.IsTokenRevoked(s.ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.trl.IsTokenRevoked(s.ctx, "jti-unknown")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisTRLSuite) TestEntryExpires() {
	s.Require().NoError(s.trl.RevokeToken(s.ctx, "jti-short", 50*time.Millisecond))
	s.Eventually(func() bool {
		revoked, err := s.trl.IsTokenRevoked(s.ctx, "jti-short")
		return err == nil && !revoked
	}, 2*time.Second, 20*time.Millisecond)
}
