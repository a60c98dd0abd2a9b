// Package lanmap resolves a client's peer IP to the char-server-facing
// IP advertised to same-subnet clients.
package lanmap

import (
	"fmt"
	"net"

	"github.com/originline/loginauth/internal/config"
)

// row is one parsed (mask, char-ip, map-ip) triple, invariant
// char-ip & mask == map-ip & mask.
type row struct {
	mask   net.IP
	charIP net.IP
	mapIP  net.IP
}

// Map holds the configured LAN rows.
type Map struct {
	rows []row
}

// New parses the configured LAN entries. It returns an error and no
// map if any row is malformed or its char-ip and map-ip disagree under
// its mask.
func New(entries []config.LANEntry) (*Map, error) {
	m := &Map{}
	for _, e := range entries {
		mask := net.ParseIP(e.Mask).To4()
		charIP := net.ParseIP(e.CharIP).To4()
		mapIP := net.ParseIP(e.MapIP).To4()
		if mask == nil || charIP == nil || mapIP == nil {
			return nil, fmt.Errorf("invalid lan entry %+v", e)
		}
		if !sameSubnet(charIP, mapIP, mask) {
			return nil, fmt.Errorf("lan entry %+v: char_ip and map_ip disagree under mask", e)
		}
		m.rows = append(m.rows, row{mask: mask, charIP: charIP, mapIP: mapIP})
	}
	return m, nil
}

func sameSubnet(a, b, mask net.IP) bool {
	for i := range mask {
		if a[i]&mask[i] != b[i]&mask[i] {
			return false
		}
	}
	return true
}

// RewriteCharIP returns the LAN-facing address to advertise to a
// client at peer, for the first row whose mask places peer in the same
// subnet as that row's char-ip. Returns ("", false) when no row
// matches, meaning the caller should advertise the char-server's
// WAN-facing address unchanged.
func (m *Map) RewriteCharIP(peer string) (string, bool) {
	peerIP := net.ParseIP(peer).To4()
	if peerIP == nil {
		return "", false
	}
	for _, r := range m.rows {
		if sameSubnet(peerIP, r.charIP, r.mask) {
			return r.mapIP.String(), true
		}
	}
	return "", false
}
