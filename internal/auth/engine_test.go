package auth

import (
	"context"
	"crypto/md5"
	"testing"
	"time"

	"github.com/originline/loginauth/internal/config"
	"github.com/originline/loginauth/internal/model"
	"github.com/originline/loginauth/internal/store"
)

type fakeStore struct {
	accounts      map[string]*model.Account
	byID          map[int32]*model.Account
	banUntilSet   int64
	stateSet      int
	audited       []string
	badLoginCount int
	createErr     error
	nextID        int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: map[string]*model.Account{}, byID: map[int32]*model.Account{}, nextID: 3000000}
}

func (f *fakeStore) Lookup(ctx context.Context, userid string, caseSensitive bool) (*model.Account, error) {
	acc, ok := f.accounts[userid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return acc, nil
}

func (f *fakeStore) Create(ctx context.Context, userid, password string, sex model.Sex, floor int32) (int32, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextID
	f.nextID++
	acc := &model.Account{ID: id, UserID: userid, Password: password, Sex: sex}
	f.accounts[userid] = acc
	f.byID[id] = acc
	return id, nil
}

func (f *fakeStore) UpdateLoginStats(ctx context.Context, id int32, ip string, ts time.Time) error {
	return nil
}
func (f *fakeStore) SetBanUntil(ctx context.Context, id int32, ts int64) error {
	f.banUntilSet = ts
	return nil
}
func (f *fakeStore) SetState(ctx context.Context, id int32, state int) error {
	f.stateSet = state
	return nil
}
func (f *fakeStore) AppendAudit(ctx context.Context, ip, user string, rcode int, message string) error {
	f.audited = append(f.audited, message)
	return nil
}
func (f *fakeStore) CountRecentBadLogins(ctx context.Context, ip string, since time.Duration) (int, error) {
	return f.badLoginCount, nil
}

type fakeGate struct {
	banned      bool
	recordCalls int
}

func (g *fakeGate) IsBanned(ctx context.Context, ipv4 string) bool { return g.banned }
func (g *fakeGate) RecordDynamicBan(ctx context.Context, ipv4 string, duration time.Duration, reason string) error {
	g.recordCalls++
	return nil
}

type fakeRegistry struct {
	online map[int32]int16
}

func (r *fakeRegistry) IsOnline(accountID int32) (int16, bool) {
	id, ok := r.online[accountID]
	return id, ok
}

type fakeKicker struct {
	kicked []int32
}

func (k *fakeKicker) Kick(accountID int32, owner int16) {
	k.kicked = append(k.kicked, accountID)
}

type fakeTokens struct {
	allocated []model.Token
}

func (t *fakeTokens) Allocate(tok model.Token) int {
	t.allocated = append(t.allocated, tok)
	return len(t.allocated) - 1
}

func newTestEngine(t *testing.T, cfg config.LoginServer, st Store) (*Engine, *fakeGate, *fakeRegistry, *fakeKicker, *fakeTokens) {
	t.Helper()
	gate := &fakeGate{}
	registry := &fakeRegistry{online: map[int32]int16{}}
	kicker := &fakeKicker{}
	tokens := &fakeTokens{}
	e, err := New(cfg, st, gate, nil, registry, kicker, tokens)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, gate, registry, kicker, tokens
}

func baseCfg() config.LoginServer {
	cfg := config.Default()
	cfg.CheckClientVersion = false
	cfg.OnlineCheck = true
	cfg.NewAccount = false
	return cfg
}

func TestAuthenticate_WrongPasswordRejects(t *testing.T) {
	st := newFakeStore()
	st.accounts["alice"] = &model.Account{ID: 1, UserID: "alice", Password: "correct", Sex: model.SexMale}

	e, _, _, _, _ := newTestEngine(t, baseCfg(), st)
	out, err := e.Authenticate(context.Background(), Request{Username: "alice", PasswordPlain: "wrong", PeerIP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Granted || out.RCode != RCodeBadPassword {
		t.Errorf("got %+v, want rejected with RCodeBadPassword", out)
	}
}

func TestAuthenticate_HappyPathGrantsAndMintsToken(t *testing.T) {
	st := newFakeStore()
	st.accounts["alice"] = &model.Account{ID: 1, UserID: "alice", Password: "correct", Sex: model.SexMale}

	e, _, _, _, tokens := newTestEngine(t, baseCfg(), st)
	out, err := e.Authenticate(context.Background(), Request{Username: "alice", PasswordPlain: "correct", PeerIP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Granted {
		t.Fatalf("expected login to be granted, got %+v", out)
	}
	if len(tokens.allocated) != 1 {
		t.Errorf("expected exactly one token minted, got %d", len(tokens.allocated))
	}
}

func TestAuthenticate_DynamicBanStateRecordsBanEveryAttempt(t *testing.T) {
	st := newFakeStore()
	st.accounts["bob"] = &model.Account{ID: 2, UserID: "bob", Password: "x", State: int(model.StateDynamicBan)}

	e, gate, _, _, _ := newTestEngine(t, baseCfg(), st)
	out, err := e.Authenticate(context.Background(), Request{Username: "bob", PasswordPlain: "x", PeerIP: "5.6.7.8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Granted {
		t.Fatal("expected a dynamically banned account to be rejected")
	}
	if gate.recordCalls != 1 {
		t.Errorf("expected an unconditional dynamic ban record, got %d calls", gate.recordCalls)
	}
}

func TestAuthenticate_AlreadyOnlineKicksAndRejects(t *testing.T) {
	st := newFakeStore()
	st.accounts["carol"] = &model.Account{ID: 3, UserID: "carol", Password: "pw", Sex: model.SexFemale}

	e, _, registry, kicker, _ := newTestEngine(t, baseCfg(), st)
	registry.online[3] = 7

	out, err := e.Authenticate(context.Background(), Request{Username: "carol", PasswordPlain: "pw", PeerIP: "9.9.9.9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Granted {
		t.Fatal("expected rejection for an already-online account")
	}
	if len(kicker.kicked) != 1 || kicker.kicked[0] != 3 {
		t.Errorf("expected account 3 to be kicked, got %+v", kicker.kicked)
	}
}

func TestAuthenticate_IPBanRejectsBeforeLookup(t *testing.T) {
	st := newFakeStore()
	e, gate, _, _, _ := newTestEngine(t, baseCfg(), st)
	gate.banned = true

	out, err := e.Authenticate(context.Background(), Request{Username: "nobody", PasswordPlain: "x", PeerIP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Granted {
		t.Fatal("expected an IP-banned peer to be rejected")
	}
}

func TestCheckPassword_SaltedMD5Mode1(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t, baseCfg(), newFakeStore())
	stored := "storedvalue"
	combined := append([]byte{}, e.md5Salt...)
	combined = append(combined, stored...)
	digest := md5.Sum(combined)

	req := Request{PasswdEnc: PasswdEncMD5Mode1, PasswordDigest: digest}
	if !e.checkPassword(stored, req) {
		t.Error("expected salted md5 mode 1 to verify against a matching digest")
	}

	req.PasswordDigest[0] ^= 0xff
	if e.checkPassword(stored, req) {
		t.Error("expected a corrupted digest to fail verification")
	}
}

func TestStateToRCode(t *testing.T) {
	cases := []struct {
		state int
		want  byte
	}{
		{1, 0},
		{5, 4},
		{16, 15},
		{100, 99},
		{104, 103},
		{200, 99},
	}
	for _, tc := range cases {
		if got := model.StateToRCode(tc.state); got != tc.want {
			t.Errorf("StateToRCode(%d) = %d, want %d", tc.state, got, tc.want)
		}
	}
}
