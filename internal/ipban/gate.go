// Package ipban implements the IP-ban gate: wildcard pattern bans
// backed by the store, plus a DNSBL lookup for newly seen addresses.
package ipban

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Store is the subset of store.Store the gate needs.
type Store interface {
	ActiveBanPatterns(ctx context.Context, now int64) ([]string, error)
	InsertBan(ctx context.Context, pattern string, start, expiry int64, reason string) error
	SweepExpiredBans(ctx context.Context, now int64) (int64, error)
}

// Gate answers is-banned queries against the ipbanlist table and
// inserts dynamic bans triggered by the Auth Engine.
type Gate struct {
	store Store
}

// New returns a Gate backed by store.
func New(store Store) *Gate {
	return &Gate{store: store}
}

// wildcardPatterns returns the four wildcard patterns derived from an
// IPv4 address: "a.b.c.d", "a.b.c.*", "a.b.*.*", "a.*.*.*".
func wildcardPatterns(ipv4 string) []string {
	parts := strings.Split(ipv4, ".")
	if len(parts) != 4 {
		return nil
	}
	return []string{
		ipv4,
		fmt.Sprintf("%s.%s.%s.*", parts[0], parts[1], parts[2]),
		fmt.Sprintf("%s.%s.*.*", parts[0], parts[1]),
		fmt.Sprintf("%s.*.*.*", parts[0]),
	}
}

// IsBanned reports whether ipv4 matches any active ban record. Any
// store failure is treated as a ban — the gate fails closed.
func (g *Gate) IsBanned(ctx context.Context, ipv4 string) bool {
	patterns := wildcardPatterns(ipv4)
	if patterns == nil {
		return true
	}

	active, err := g.store.ActiveBanPatterns(ctx, time.Now().Unix())
	if err != nil {
		slog.Error("ip ban lookup failed, failing closed", "ip", ipv4, "error", err)
		return true
	}

	activeSet := make(map[string]struct{}, len(active))
	for _, p := range active {
		activeSet[p] = struct{}{}
	}
	for _, p := range patterns {
		if _, ok := activeSet[p]; ok {
			return true
		}
	}
	return false
}

// RecordDynamicBan inserts an "a.b.c.*" ban covering ipv4's /24 for
// duration, with reason recorded on the row.
func (g *Gate) RecordDynamicBan(ctx context.Context, ipv4 string, duration time.Duration, reason string) error {
	parts := strings.Split(ipv4, ".")
	if len(parts) != 4 {
		return fmt.Errorf("recording dynamic ban: invalid ipv4 %q", ipv4)
	}
	pattern := fmt.Sprintf("%s.%s.%s.*", parts[0], parts[1], parts[2])
	now := time.Now()
	if err := g.store.InsertBan(ctx, pattern, now.Unix(), now.Add(duration).Unix(), reason); err != nil {
		return fmt.Errorf("recording dynamic ban for %s: %w", pattern, err)
	}
	return nil
}

// Sweep deletes ban records whose expiry has passed.
func (g *Gate) Sweep(ctx context.Context) (int64, error) {
	n, err := g.store.SweepExpiredBans(ctx, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired bans: %w", err)
	}
	return n, nil
}

// DNSBL checks an address against a set of configured blacklist
// suffixes using reversed-quad lookups.
type DNSBL struct {
	resolver *net.Resolver
	suffixes []string
}

// NewDNSBL returns a DNSBL checker for the given suffixes (e.g.
// "zen.spamhaus.org").
func NewDNSBL(suffixes []string) *DNSBL {
	return &DNSBL{resolver: net.DefaultResolver, suffixes: suffixes}
}

// Hit reports whether ipv4 resolves against any configured DNSBL
// suffix.
func (d *DNSBL) Hit(ctx context.Context, ipv4 string) bool {
	if len(d.suffixes) == 0 {
		return false
	}
	parts := strings.Split(ipv4, ".")
	if len(parts) != 4 {
		return false
	}
	reversed := fmt.Sprintf("%s.%s.%s.%s", parts[3], parts[2], parts[1], parts[0])

	for _, suffix := range d.suffixes {
		query := reversed + "." + suffix
		addrs, err := d.resolver.LookupHost(ctx, query)
		if err == nil && len(addrs) > 0 {
			slog.Warn("dnsbl hit", "ip", ipv4, "suffix", suffix)
			return true
		}
	}
	return false
}
