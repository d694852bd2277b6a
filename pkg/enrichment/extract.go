// Package enrichment resolves addresses parsed from event messages to
// geo/ASN/risk metadata. Lookups are best-effort: every failure path
// returns nil without raising.
package enrichment

import (
	"net"
	"regexp"

	"github.com/castellan/castellan/pkg/models"
)

// Patterns are compiled once at package init; they only contain literal
// character classes, so compilation cannot fail.
var (
	// sourceNetworkAddressRe matches the "Source Network Address" field
	// that Windows authentication events (4624/4625/4648) carry.
	sourceNetworkAddressRe = regexp.MustCompile(`Source Network Address:\s*([0-9a-fA-F:.]+)`)

	ipv4Re = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Re = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
)

// authEventIDs are the Security-channel events where the source address
// field is authoritative.
var authEventIDs = map[int]bool{4624: true, 4625: true, 4648: true}

// ExtractAddress returns the candidate address for an event, or "" when
// none is present. Authentication events prefer the Source Network
// Address field; everything else takes the first non-loopback literal.
func ExtractAddress(e models.LogEvent) string {
	if e.Channel == "Security" && authEventIDs[e.EventID] {
		if m := sourceNetworkAddressRe.FindStringSubmatch(e.Message); m != nil {
			if ip := net.ParseIP(m[1]); ip != nil && !ip.IsLoopback() && !ip.IsUnspecified() {
				return ip.String()
			}
		}
	}

	for _, candidate := range ipv4Re.FindAllString(e.Message, -1) {
		if ip := net.ParseIP(candidate); ip != nil && !ip.IsLoopback() && !ip.IsUnspecified() {
			return ip.String()
		}
	}
	for _, candidate := range ipv6Re.FindAllString(e.Message, -1) {
		if ip := net.ParseIP(candidate); ip != nil && !ip.IsLoopback() && !ip.IsUnspecified() {
			return ip.String()
		}
	}
	return ""
}

// IsPrivate reports whether the address is in private or link-local
// space. Invalid addresses count as private so they never reach a
// remote provider.
func IsPrivate(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return true
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLoopback()
}
