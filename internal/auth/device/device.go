// Package device turns User-Agent headers into short descriptions for
// security logs.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Info is a coarse description of the client software.
type Info struct {
	Browser  string
	Version  string
	OS       string
	Platform string
	Mobile   bool
	Bot      bool
}

// Describe parses a raw User-Agent header. An empty header yields a zero Info.
func Describe(userAgent string) Info {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Info{}
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	return Info{
		Browser:  strings.TrimSpace(name),
		Version:  strings.TrimSpace(version),
		OS:       strings.TrimSpace(ua.OS()),
		Platform: strings.TrimSpace(ua.Platform()),
		Mobile:   ua.Mobile(),
		Bot:      ua.Bot(),
	}
}

// ParseUserAgent renders a User-Agent as "Browser on OS", or "Unknown Device"
// when the header is empty.
func ParseUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	info := Describe(userAgent)
	browser := info.Browser
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := info.OS
	if os == "" {
		os = info.Platform
	}
	if os == "" {
		os = "Unknown OS"
	}
	if info.Platform != "" && !strings.Contains(os, info.Platform) {
		os = info.Platform + " " + os
	}
	return strings.TrimSpace(browser + " on " + os)
}
