package presence

import "testing"

func TestRegistry_MarkOnlineThenIsOnline(t *testing.T) {
	r := New(true)
	r.MarkOnline(42, 3)

	owner, ok := r.IsOnline(42)
	if !ok {
		t.Fatal("expected account 42 to be online")
	}
	if owner != 3 {
		t.Errorf("owner = %d, want 3", owner)
	}
}

func TestRegistry_MarkWaitingDisconnect(t *testing.T) {
	r := New(true)
	r.MarkOnline(42, 3)

	if r.IsWaitingDisconnect(42) {
		t.Fatal("expected no outstanding kick notice right after MarkOnline")
	}

	r.MarkWaitingDisconnect(42)
	if !r.IsWaitingDisconnect(42) {
		t.Error("expected the kick notice flag to be set")
	}

	owner, ok := r.IsOnline(42)
	if !ok || owner != 3 {
		t.Errorf("IsOnline(42) = %d, %v, want 3, true — ownership unaffected by the flag", owner, ok)
	}
}

func TestRegistry_MarkWaitingDisconnect_NoEntryIsNoop(t *testing.T) {
	r := New(true)
	r.MarkWaitingDisconnect(99999)
	if r.IsWaitingDisconnect(99999) {
		t.Error("expected no entry to mean no outstanding kick notice")
	}
}

func TestRegistry_DisabledIsNoop(t *testing.T) {
	r := New(false)
	r.MarkOnline(42, 3)

	if _, ok := r.IsOnline(42); ok {
		t.Fatal("expected disabled registry to ignore MarkOnline")
	}
}

func TestRegistry_AdminPurgeClearsEverything(t *testing.T) {
	r := New(false)
	r.MarkOnline(AdminPurgeAccountID, 1)
	r.mu.Lock()
	r.online[1] = Entry{AccountID: 1, CharServerID: 5}
	r.online[2] = Entry{AccountID: 2, CharServerID: 6}
	r.mu.Unlock()

	r.MarkOnline(AdminPurgeAccountID, 9)

	if _, ok := r.IsOnline(1); ok {
		t.Error("expected entry 1 purged")
	}
	if _, ok := r.IsOnline(2); ok {
		t.Error("expected entry 2 purged")
	}
}

func TestRegistry_MarkAllOfflineFromOrphans(t *testing.T) {
	r := New(true)
	r.MarkOnline(1, 5)
	r.MarkOnline(2, 5)
	r.MarkOnline(3, 6)

	r.MarkAllOfflineFrom(5)

	owner, ok := r.IsOnline(1)
	if !ok || owner != Orphaned {
		t.Errorf("account 1: owner=%d ok=%v, want Orphaned", owner, ok)
	}
	owner, ok = r.IsOnline(3)
	if !ok || owner != 6 {
		t.Errorf("account 3 should be untouched, got owner=%d ok=%v", owner, ok)
	}
}

func TestRegistry_SnapshotReconciles(t *testing.T) {
	r := New(true)
	r.MarkOnline(1, 5)
	r.MarkOnline(2, 5)

	r.SnapshotForCharServer(5, []int32{2})

	if owner, ok := r.IsOnline(1); !ok || owner != Orphaned {
		t.Errorf("account 1 should be orphaned, got owner=%d ok=%v", owner, ok)
	}
	if owner, ok := r.IsOnline(2); !ok || owner != 5 {
		t.Errorf("account 2 should still be owned by 5, got owner=%d ok=%v", owner, ok)
	}
}

func TestRegistry_CleanupStaleRemovesOrphans(t *testing.T) {
	r := New(true)
	r.MarkOnline(1, 5)
	r.MarkAllOfflineFrom(5)

	removed := r.CleanupStale()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := r.IsOnline(1); ok {
		t.Error("expected orphaned entry removed")
	}
}
