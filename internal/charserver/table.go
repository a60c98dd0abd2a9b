// Package charserver tracks connected char-servers and fans broadcasts
// out to them.
package charserver

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/originline/loginauth/internal/model"
)

// Link is the sending half of a promoted char-link connection, owned
// by the login package.
type Link interface {
	Send(payload []byte) error
}

type entry struct {
	info model.CharServerEntry
	link Link
}

// Table holds every currently connected char-server, keyed by id.
type Table struct {
	mu      sync.RWMutex
	entries map[int16]*entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[int16]*entry)}
}

// Register adds a char-server entry right after a successful
// handshake.
func (t *Table) Register(info model.CharServerEntry, link Link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[info.ID] = &entry{info: info, link: link}
}

// Unregister removes a char-server's entry, typically on disconnect.
func (t *Table) Unregister(id int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Get returns the entry for id.
func (t *Table) Get(id int16) (model.CharServerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return model.CharServerEntry{}, false
	}
	return e.info, true
}

// List returns every registered char-server entry in ascending id
// order, matching the original server's declaration order (a fixed,
// ascending `server_fd[]` index) so the 0x0069 login-accepted reply's
// char-server tail is deterministic.
func (t *Table) List() []model.CharServerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.CharServerEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetUserCount updates the user count advertised for id.
func (t *Table) SetUserCount(id int16, users int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.info.Users = users
	}
}

// SetWANIP updates the advertised IP for id.
func (t *Table) SetWANIP(id int16, ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.info.IP = ip
	}
}

// ClaimSlot reports whether id is free for a handshaking char-server.
// The slot id is the char-server's own account id, not an assigned
// value: the handshake is refused when id falls outside
// [0, model.MaxCharServers) or is already held by another connected
// char-server. ClaimSlot does not hold the slot; it is taken only when
// Register is called.
func (t *Table) ClaimSlot(id int16) bool {
	if id < 0 || id >= model.MaxCharServers {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, taken := t.entries[id]
	return !taken
}

// Broadcast fans payload out to every registered char-server except
// exceptID. Delivery is best-effort and fire-and-forget: a send error
// is logged and otherwise ignored.
func (t *Table) Broadcast(exceptID int16, payload []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, e := range t.entries {
		if id == exceptID {
			continue
		}
		if err := e.link.Send(payload); err != nil {
			slog.Warn("broadcast to char-server failed", "char_server_id", id, "error", err)
		}
	}
}
