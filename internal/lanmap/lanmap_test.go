package lanmap

import (
	"testing"

	"github.com/originline/loginauth/internal/config"
)

func TestNew_RejectsMismatchedSubnets(t *testing.T) {
	_, err := New([]config.LANEntry{
		{Mask: "255.255.255.0", CharIP: "10.0.0.5", MapIP: "192.168.1.5"},
	})
	if err == nil {
		t.Fatal("expected an error for a char-ip/map-ip pair disagreeing under the mask")
	}
}

func TestRewriteCharIP_MatchingSubnet(t *testing.T) {
	m, err := New([]config.LANEntry{
		{Mask: "255.255.255.0", CharIP: "10.0.0.5", MapIP: "10.0.0.10"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ip, ok := m.RewriteCharIP("10.0.0.42")
	if !ok {
		t.Fatal("expected a match for a peer in the same /24")
	}
	if ip != "10.0.0.10" {
		t.Errorf("ip = %q, want the configured map ip", ip)
	}
}

func TestRewriteCharIP_NoMatch(t *testing.T) {
	m, err := New([]config.LANEntry{
		{Mask: "255.255.255.0", CharIP: "10.0.0.5", MapIP: "10.0.0.10"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, ok := m.RewriteCharIP("8.8.8.8")
	if ok {
		t.Error("expected no match for a peer outside every configured subnet")
	}
}
