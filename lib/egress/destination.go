// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Destination is a canonicalized outbound target: lowercase scheme,
// punycode ASCII host, explicit port, and the request path.
type Destination struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Path   string `json:"path"`
}

// ParseDestination canonicalizes a raw URL. Only http and https are
// representable; the default port is made explicit (443/80);
// internationalized hosts are punycode-normalized.
func ParseDestination(raw string) (Destination, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("egress: invalid destination URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return Destination{}, fmt.Errorf("egress: scheme %q not permitted", parsed.Scheme)
	}

	host, err := canonicalHost(parsed.Hostname())
	if err != nil {
		return Destination{}, err
	}

	port := defaultPort(scheme)
	if portText := parsed.Port(); portText != "" {
		port, err = strconv.Atoi(portText)
		if err != nil || port < 1 || port > 65535 {
			return Destination{}, fmt.Errorf("egress: invalid port %q", portText)
		}
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return Destination{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// canonicalHost lowercases and punycode-normalizes a hostname. IP
// literals pass through unchanged (lowercased for IPv6 hex).
func canonicalHost(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("egress: destination missing host")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(host), nil
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", fmt.Errorf("egress: invalid host %q: %w", host, err)
	}
	return ascii, nil
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// auditValue renders the destination for an audit event payload.
func (d Destination) auditValue() map[string]any {
	return map[string]any{
		"scheme": d.Scheme,
		"host":   d.Host,
		"port":   d.Port,
		"path":   d.Path,
	}
}
