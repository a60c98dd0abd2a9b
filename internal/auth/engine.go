// Package auth implements the Auth Engine: the single fail-fast
// authentication algorithm shared by plain client logins and the
// char-server handshake.
package auth

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/originline/loginauth/internal/config"
	"github.com/originline/loginauth/internal/constants"
	"github.com/originline/loginauth/internal/model"
	"github.com/originline/loginauth/internal/presence"
	"github.com/originline/loginauth/internal/store"
)

// Reject reason codes, the fixed enum from the client-login refusal
// packet.
const (
	RCodeUnregistered  byte = 0
	RCodeBadPassword   byte = 1
	RCodeExpired       byte = 2
	RCodeRejected      byte = 3
	RCodeBlockedByGM   byte = 4
	RCodeClientTooOld  byte = 5
	RCodeBannedUntil   byte = 6
	RCodeOverpopulated byte = 7
	RCodeCompanyLimit  byte = 8
	RCodeErased        byte = 99
)

// PasswdEnc is the client-claimed password transport encoding.
type PasswdEnc int

const (
	PasswdEncNone PasswdEnc = iota
	PasswdEncMD5Mode1
	PasswdEncMD5Mode2
)

// Request is one authentication attempt, shared by the client-login
// opcodes and the char-server handshake.
type Request struct {
	Username              string
	PasswdEnc             PasswdEnc
	PasswordPlain         string
	PasswordDigest        [16]byte
	ClientVersion         int
	PeerIP                string
	IsCharServerHandshake bool
}

// Outcome is the result of an authentication attempt.
type Outcome struct {
	Granted  bool
	RCode    byte
	Account  model.Account
	Token    model.Token
	BanUntil int64
}

// Store is the subset of store.Store the engine needs.
type Store interface {
	Lookup(ctx context.Context, userid string, caseSensitive bool) (*model.Account, error)
	Create(ctx context.Context, userid, password string, sex model.Sex, floor int32) (int32, error)
	UpdateLoginStats(ctx context.Context, id int32, ip string, ts time.Time) error
	SetBanUntil(ctx context.Context, id int32, ts int64) error
	SetState(ctx context.Context, id int32, state int) error
	AppendAudit(ctx context.Context, ip, user string, rcode int, message string) error
	CountRecentBadLogins(ctx context.Context, ip string, since time.Duration) (int, error)
}

// Gate is the subset of ipban.Gate the engine needs.
type Gate interface {
	IsBanned(ctx context.Context, ipv4 string) bool
	RecordDynamicBan(ctx context.Context, ipv4 string, duration time.Duration, reason string) error
}

// DNSBL is the subset of ipban.DNSBL the engine needs.
type DNSBL interface {
	Hit(ctx context.Context, ipv4 string) bool
}

// Registry is the subset of presence.Registry the engine needs.
type Registry interface {
	IsOnline(accountID int32) (int16, bool)
}

// Kicker notifies char-servers that an already-online account is
// being displaced, and arms the 30-second watchdog that forcibly
// clears its presence entry if no clean disconnect follows.
type Kicker interface {
	Kick(accountID int32, owner int16)
}

// TokenAllocator is the subset of tokenfifo.FIFO the engine needs.
type TokenAllocator interface {
	Allocate(tok model.Token) int
}

// Engine implements the Auth Engine algorithm.
type Engine struct {
	cfg      config.LoginServer
	store    Store
	gate     Gate
	dnsbl    DNSBL
	registry Registry
	kicker   Kicker
	tokens   TokenAllocator

	md5Salt []byte

	regMu      sync.Mutex
	regWindow  time.Time
	regCount   int
}

// New returns an Engine, generating the process-lifetime MD5 salt.
func New(cfg config.LoginServer, st Store, gate Gate, dnsbl DNSBL, registry Registry, kicker Kicker, tokens TokenAllocator) (*Engine, error) {
	salt, err := randomSalt()
	if err != nil {
		return nil, fmt.Errorf("generating md5 salt: %w", err)
	}
	return &Engine{
		cfg:      cfg,
		store:    st,
		gate:     gate,
		dnsbl:    dnsbl,
		registry: registry,
		kicker:   kicker,
		tokens:   tokens,
		md5Salt:  salt,
	}, nil
}

// MD5Key returns the process-lifetime salt exposed by the MD5-key
// request packet.
func (e *Engine) MD5Key() []byte {
	return e.md5Salt
}

func randomSalt() ([]byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(4)) // 12..15 inclusive
	if err != nil {
		return nil, err
	}
	length := 12 + int(n.Int64())
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// reject is a small helper for the common (audited) rejection path.
func (e *Engine) reject(ctx context.Context, req Request, rcode byte, message string) Outcome {
	if e.cfg.LogLogin {
		if err := e.store.AppendAudit(ctx, req.PeerIP, req.Username, int(rcode), message); err != nil {
			slog.Error("audit append failed", "error", err)
		}
	}
	if rcode == RCodeBadPassword {
		e.maybeDynamicBan(ctx, req.PeerIP)
	}
	return Outcome{Granted: false, RCode: rcode}
}

func (e *Engine) maybeDynamicBan(ctx context.Context, ip string) {
	if !e.cfg.LogLogin || !e.cfg.DynamicPassFailureBan {
		return
	}
	window := time.Duration(e.cfg.DynamicPassFailureBanInterval) * time.Second
	n, err := e.store.CountRecentBadLogins(ctx, ip, window)
	if err != nil {
		slog.Error("counting recent bad logins failed", "ip", ip, "error", err)
		return
	}
	if n < e.cfg.DynamicPassFailureBanLimit {
		return
	}
	duration := time.Duration(e.cfg.DynamicPassFailureBanDuration) * time.Second
	reason := fmt.Sprintf("Password error ban: %s", ip)
	if err := e.gate.RecordDynamicBan(ctx, ip, duration, reason); err != nil {
		slog.Error("recording dynamic ban failed", "ip", ip, "error", err)
	}
}

// Authenticate runs the fail-fast authentication algorithm and returns
// the terminal outcome.
func (e *Engine) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	if e.cfg.UseDNSBL && e.dnsbl != nil {
		if e.dnsbl.Hit(ctx, req.PeerIP) {
			return e.reject(ctx, req, RCodeRejected, "dnsbl hit"), nil
		}
	}

	if e.cfg.IPBan && e.gate.IsBanned(ctx, req.PeerIP) {
		return e.reject(ctx, req, RCodeRejected, "ip banned"), nil
	}

	if acct, handled, outcome := e.tryAutoRegister(ctx, req); handled {
		if acct == nil {
			return outcome, nil
		}
		return e.finish(ctx, req, *acct)
	}

	acct, err := e.store.Lookup(ctx, req.Username, e.cfg.CaseSensitive)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.reject(ctx, req, RCodeUnregistered, "account not found"), nil
		}
		return Outcome{}, fmt.Errorf("looking up account: %w", err)
	}

	if req.IsCharServerHandshake && acct.Sex != model.SexCharServer {
		return e.reject(ctx, req, RCodeRejected, "not a char-server account"), nil
	}

	if e.cfg.CheckClientVersion && req.ClientVersion != e.cfg.ClientVersionToConnect {
		return e.reject(ctx, req, RCodeClientTooOld, "client version mismatch"), nil
	}

	switch model.StateCode(acct.State) {
	case model.StatePermaBan:
		return e.reject(ctx, req, RCodeRejected, "permanently banned"), nil
	case model.StateDynamicBan:
		duration := time.Duration(e.cfg.DynamicPassFailureBanDuration) * time.Second
		if err := e.gate.RecordDynamicBan(ctx, req.PeerIP, duration, fmt.Sprintf("Account dynamic ban: %s", req.Username)); err != nil {
			slog.Error("recording account-triggered dynamic ban failed", "ip", req.PeerIP, "error", err)
		}
		return e.reject(ctx, req, RCodeRejected, "dynamic ban"), nil
	}

	if !e.checkPassword(acct.Password, req) {
		return e.reject(ctx, req, RCodeBadPassword, "bad password"), nil
	}

	now := time.Now().Unix()
	if acct.BanUntil != 0 {
		if acct.BanUntil > now {
			outcome := e.reject(ctx, req, RCodeBannedUntil, "banned until")
			outcome.BanUntil = acct.BanUntil
			return outcome, nil
		}
		if err := e.store.SetBanUntil(ctx, acct.ID, 0); err != nil {
			slog.Error("clearing expired ban failed", "account_id", acct.ID, "error", err)
		}
		acct.BanUntil = 0
	}

	if acct.State != 0 {
		rcode := model.StateToRCode(acct.State)
		return e.reject(ctx, req, rcode, "administrative state"), nil
	}

	if acct.ConnectUntil != 0 && acct.ConnectUntil < now {
		return e.reject(ctx, req, RCodeExpired, "connect-until expired"), nil
	}

	if e.cfg.OnlineCheck && !req.IsCharServerHandshake {
		if owner, online := e.registry.IsOnline(acct.ID); online {
			if e.kicker != nil {
				e.kicker.Kick(acct.ID, owner)
			}
			return e.reject(ctx, req, RCodeRejected, "already online"), nil
		}
	}

	return e.finish(ctx, req, *acct)
}

func (e *Engine) finish(ctx context.Context, req Request, acct model.Account) (Outcome, error) {
	loginID1, err := randomInt32()
	if err != nil {
		return Outcome{}, fmt.Errorf("generating login id 1: %w", err)
	}
	loginID2, err := randomInt32()
	if err != nil {
		return Outcome{}, fmt.Errorf("generating login id 2: %w", err)
	}

	if err := e.store.UpdateLoginStats(ctx, acct.ID, req.PeerIP, time.Now()); err != nil {
		slog.Error("updating login stats failed", "account_id", acct.ID, "error", err)
	}
	if e.cfg.LogLogin {
		if err := e.store.AppendAudit(ctx, req.PeerIP, req.Username, 0, "login ok"); err != nil {
			slog.Error("audit append failed", "error", err)
		}
	}

	tok := model.Token{
		AccountID: acct.ID,
		LoginID1:  loginID1,
		LoginID2:  loginID2,
		Sex:       acct.Sex,
		ClientIP:  req.PeerIP,
	}
	if e.tokens != nil {
		e.tokens.Allocate(tok)
	}

	return Outcome{Granted: true, Account: acct, Token: tok}, nil
}

// tryAutoRegister implements algorithm step 2: suffix-hinted
// auto-registration. handled is true when this step terminated the
// attempt (either via a freshly created account or a registration
// rejection); acct is non-nil only on a successful creation.
func (e *Engine) tryAutoRegister(ctx context.Context, req Request) (*model.Account, bool, Outcome) {
	if req.IsCharServerHandshake || req.PasswdEnc != PasswdEncNone || !e.cfg.NewAccount {
		return nil, false, Outcome{}
	}

	suffix := ""
	if len(req.Username) >= 2 {
		suffix = strings.ToUpper(req.Username[len(req.Username)-2:])
	}
	var sex model.Sex
	switch suffix {
	case "_M":
		sex = model.SexMale
	case "_F":
		sex = model.SexFemale
	default:
		return nil, false, Outcome{}
	}

	prefix := req.Username[:len(req.Username)-2]
	if len(prefix) < 4 || len(req.PasswordPlain) < 4 {
		return nil, false, Outcome{}
	}

	if !e.registrationAllowed() {
		return nil, true, e.reject(ctx, req, RCodeRejected, "registration flood brake")
	}

	id, err := e.store.Create(ctx, prefix, req.PasswordPlain, sex, constants.StartAccountNum)
	if err != nil {
		slog.Error("auto-registration failed", "username", prefix, "error", err)
		return nil, true, e.reject(ctx, req, RCodeRejected, "registration failed")
	}

	return &model.Account{
		ID:       id,
		UserID:   prefix,
		Password: req.PasswordPlain,
		Sex:      sex,
	}, true, Outcome{}
}

// registrationAllowed enforces the rolling allowed_regs/time_allowed
// brake.
func (e *Engine) registrationAllowed() bool {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	now := time.Now()
	window := time.Duration(e.cfg.TimeAllowed) * time.Second
	if now.Sub(e.regWindow) > window {
		e.regWindow = now
		e.regCount = 0
	}
	if e.regCount >= e.cfg.AllowedRegs {
		return false
	}
	e.regCount++
	return true
}

func (e *Engine) checkPassword(stored string, req Request) bool {
	switch req.PasswdEnc {
	case PasswdEncNone:
		candidate := req.PasswordPlain
		if e.cfg.UseMD5Passwords {
			candidate = md5Hex(req.PasswordPlain)
		}
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
	case PasswdEncMD5Mode1, PasswdEncMD5Mode2:
		var combined []byte
		if req.PasswdEnc == PasswdEncMD5Mode1 {
			combined = append(append([]byte{}, e.md5Salt...), stored...)
		} else {
			combined = append(append([]byte{}, stored...), e.md5Salt...)
		}
		sum := md5.Sum(combined)
		return subtle.ConstantTimeCompare(sum[:], req.PasswordDigest[:]) == 1
	default:
		return false
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	const hextable = "0123456789abcdef"
	out := make([]byte, 32)
	for i, b := range sum {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func randomInt32() (int32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<31-1))
	if err != nil {
		return 0, err
	}
	return int32(n.Int64()), nil
}

// compile-time interface satisfaction checks against the concrete
// implementations these interfaces are grounded on.
var (
	_ Registry = (*presence.Registry)(nil)
)
