// Package login implements the login authority's single TCP listener:
// client logins before a connection promotes to a char-server link,
// and the char-link protocol after.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/originline/loginauth/internal/auth"
	"github.com/originline/loginauth/internal/charserver"
	"github.com/originline/loginauth/internal/config"
	"github.com/originline/loginauth/internal/constants"
	"github.com/originline/loginauth/internal/lanmap"
	"github.com/originline/loginauth/internal/login/serverpackets"
	"github.com/originline/loginauth/internal/model"
	"github.com/originline/loginauth/internal/presence"
	"github.com/originline/loginauth/internal/scheduler"
	"github.com/originline/loginauth/internal/tokenfifo"
)

const kickGracePeriod = 30 * time.Second

// Server is the login authority's TCP front end.
type Server struct {
	cfg config.LoginServer

	store    Store
	engine   *auth.Engine
	registry *presence.Registry
	tokens   *tokenfifo.FIFO
	charTbl  *charserver.Table
	lan      *lanmap.Map
	sched    *scheduler.Scheduler

	bufPool *BytePool

	listenerMu sync.Mutex
	listener   net.Listener

	lastKnownUsersMu sync.RWMutex
	lastKnownUsers   map[int16]int
}

// NewServer wires the login authority's front end to its already
// constructed subsystems.
func NewServer(
	cfg config.LoginServer,
	st Store,
	engine *auth.Engine,
	registry *presence.Registry,
	tokens *tokenfifo.FIFO,
	charTbl *charserver.Table,
	lan *lanmap.Map,
	sched *scheduler.Scheduler,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		registry: registry,
		tokens:   tokens,
		charTbl:  charTbl,
		lan:      lan,
		sched:    sched,
		bufPool:  NewBytePool(256),
	}
}

// Kick implements auth.Kicker: it broadcasts a kick notice for
// accountID to every connected char-server, and arms a grace-period watchdog
// that force-clears the presence entry if no clean mark-offline
// follows.
func (s *Server) Kick(accountID int32, owner int16) {
	s.registry.MarkWaitingDisconnect(accountID)
	s.charTbl.Broadcast(-1, frameBytes(constants.RepKickNotice, serverpackets.KickNotice(accountID)))
	watchdogName := fmt.Sprintf("kick-%d", accountID)
	s.sched.Watchdog(watchdogName, kickGracePeriod, func(ctx context.Context) {
		s.registry.MarkOffline(accountID)
		slog.Warn("kick watchdog expired, force-cleared presence", "account_id", accountID)
	})
}

// RequestWANIPSync broadcasts a 0x2735 notice asking every connected
// char-server to re-advertise its WAN IP — used for dynamic-IP
// deployments where a char-server's externally visible address can
// drift between handshakes.
func (s *Server) RequestWANIPSync() {
	s.charTbl.Broadcast(-1, frameBytes(constants.RepRequestWANIPSync, nil))
}

// seedUserCount returns the last persisted population count for a
// char-server slot, so a freshly reconnected char-server shows a
// plausible count before it sends its first report.
func (s *Server) seedUserCount(id int16) int {
	s.lastKnownUsersMu.RLock()
	defer s.lastKnownUsersMu.RUnlock()
	return s.lastKnownUsers[id]
}

// frameBytes prefixes body with opcode, for payloads handed to
// charserver.Table.Broadcast, which has no access to writeFrame's
// net.Conn-bound signature.
func frameBytes(opcode uint16, body []byte) []byte {
	buf := make([]byte, 2+len(body))
	buf[0] = byte(opcode)
	buf[1] = byte(opcode >> 8)
	copy(buf[2:], body)
	return buf
}

// Run listens on cfg.BindIP:cfg.LoginPort and serves until ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	if snapshot, err := s.store.LoadServerStatus(ctx); err != nil {
		slog.Warn("loading persisted server status failed", "error", err)
	} else {
		s.lastKnownUsersMu.Lock()
		s.lastKnownUsers = snapshot
		s.lastKnownUsersMu.Unlock()
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.BindIP, s.cfg.LoginPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		slog.Info("login authority listening", "address", ln.Addr())
		s.acceptLoop(ctx, &wg, ln)
	})
	wg.Wait()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			raw, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("accept failed", "error", err)
				continue
			}

			if tcpConn, ok := raw.(*net.TCPConn); ok {
				_ = tcpConn.SetKeepAlive(true)
				_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
			}

			wg.Go(func() {
				s.handleConn(ctx, raw)
			})
		}
	}
}

func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	peer, _, _ := net.SplitHostPort(raw.RemoteAddr().String())
	c := newConn(raw, s.bufPool)
	defer raw.Close()

	for {
		if c.promoted {
			if err := s.serveCharLinkFrame(ctx, c); err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Debug("char-link connection closing", "char_server_id", c.charServerID, "error", err)
				}
				s.charTbl.Unregister(c.charServerID)
				s.registry.MarkAllOfflineFrom(c.charServerID)
				return
			}
			continue
		}

		if err := s.serveClientFrame(ctx, c, peer); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("client connection closing", "peer", peer, "error", err)
			}
			return
		}
	}
}
