package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// AllowList restricts which hosts may receive webhook callbacks and which
// caller IPs may use the private API. Entries are hostnames, IPs, or CIDR
// ranges. An empty list denies everything except loopback.
type AllowList struct {
	hosts map[string]struct{}
	nets  []*net.IPNet
}

// NewAllowList parses the configured entries. Invalid CIDR entries are
// treated as literal hostnames.
func NewAllowList(entries []string) *AllowList {
	al := &AllowList{hosts: make(map[string]struct{})}
	for _, entry := range entries {
		entry = strings.TrimSpace(strings.ToLower(entry))
		if entry == "" {
			continue
		}
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			al.nets = append(al.nets, ipNet)
			continue
		}
		al.hosts[entry] = struct{}{}
	}
	return al
}

// AllowsHost reports whether the hostname or IP is permitted.
func (al *AllowList) AllowsHost(host string) bool {
	host = strings.ToLower(host)

	if _, ok := al.hosts[host]; ok {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	if ip.IsLoopback() {
		return true
	}

	for _, ipNet := range al.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}

	return false
}

// AllowsIP reports whether the caller IP is permitted.
func (al *AllowList) AllowsIP(remoteIP string) bool {
	return al.AllowsHost(remoteIP)
}

// ValidateCallbackURL checks that a webhook callback URL is well formed and
// points at an allowed host. This stops registrations for endpoints the
// caller does not control.
func (al *AllowList) ValidateCallbackURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("callback URL has no host")
	}

	if !al.AllowsHost(host) {
		return fmt.Errorf("callback host not allowed: %s", host)
	}

	return nil
}
