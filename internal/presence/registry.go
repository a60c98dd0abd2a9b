// Package presence tracks which accounts are currently online and on
// which char-server, so a second login attempt for an already-online
// account can be rejected and kicked.
package presence

import "sync"

// Orphaned marks an entry whose owning char-server disconnected
// without a clean mark-offline.
const Orphaned int16 = -2

// AdminPurgeAccountID is the sentinel account id that, when passed to
// MarkOnline, clears the entire registry instead of recording an
// entry — the forced administrative purge.
const AdminPurgeAccountID = 99

// Entry is one row of the registry: which char-server currently owns
// an account's session, and whether a kick notice is outstanding for
// it.
type Entry struct {
	AccountID         int32
	CharServerID      int16
	WaitingDisconnect bool
}

// Registry is a keyed mapping from account id to online entry. All
// operations are safe for concurrent use by multiple char-server
// connections.
type Registry struct {
	mu      sync.Mutex
	online  map[int32]Entry
	enabled bool
}

// New returns a Registry. enabled mirrors the `online_check` config
// key: when false, every operation except the admin purge is a no-op.
func New(enabled bool) *Registry {
	return &Registry{online: make(map[int32]Entry), enabled: enabled}
}

// IsOnline reports whether accountID currently has a registry entry,
// along with the owning char-server id.
func (r *Registry) IsOnline(accountID int32) (int16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.online[accountID]
	return e.CharServerID, ok
}

// MarkOnline records that accountID is now owned by charServerID. If
// accountID is AdminPurgeAccountID, the entire registry is cleared
// instead, regardless of the enabled flag.
func (r *Registry) MarkOnline(accountID int32, charServerID int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if accountID == AdminPurgeAccountID {
		r.online = make(map[int32]Entry)
		return
	}
	if !r.enabled {
		return
	}
	r.online[accountID] = Entry{AccountID: accountID, CharServerID: charServerID}
}

// MarkWaitingDisconnect flags accountID's entry as having an
// outstanding kick notice — the owning char-server has been asked to
// disconnect the ghost session but hasn't acknowledged yet. A no-op if
// the account has no entry.
func (r *Registry) MarkWaitingDisconnect(accountID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.online[accountID]
	if !ok {
		return
	}
	e.WaitingDisconnect = true
	r.online[accountID] = e
}

// IsWaitingDisconnect reports whether accountID's entry currently has
// an outstanding kick notice.
func (r *Registry) IsWaitingDisconnect(accountID int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[accountID].WaitingDisconnect
}

// MarkOffline removes accountID's entry.
func (r *Registry) MarkOffline(accountID int32) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, accountID)
}

// MarkAllOfflineFrom rewrites every entry owned by charServerID to
// Orphaned, used when a char-server's link drops without having sent
// clean mark-offline events for its users.
func (r *Registry) MarkAllOfflineFrom(charServerID int16) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for acc, e := range r.online {
		if e.CharServerID == charServerID {
			e.CharServerID = Orphaned
			r.online[acc] = e
		}
	}
}

// SnapshotForCharServer atomically orphans every entry currently owned
// by charServerID, then reinstates ownership for exactly the account
// ids present in accountIDs. This reconciles the registry against a
// char-server's bulk presence report after a reconnect.
func (r *Registry) SnapshotForCharServer(charServerID int16, accountIDs []int32) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for acc, e := range r.online {
		if e.CharServerID == charServerID {
			e.CharServerID = Orphaned
			r.online[acc] = e
		}
	}
	for _, acc := range accountIDs {
		r.online[acc] = Entry{AccountID: acc, CharServerID: charServerID}
	}
}

// CleanupStale removes every orphaned entry. Runs as a periodic
// scheduler job.
func (r *Registry) CleanupStale() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for acc, e := range r.online {
		if e.CharServerID == Orphaned {
			delete(r.online, acc)
			removed++
		}
	}
	return removed
}
