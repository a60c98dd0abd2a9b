package login

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/originline/loginauth/internal/constants"
	"github.com/originline/loginauth/internal/login/serverpackets"
	"github.com/originline/loginauth/internal/model"
)

// serveCharLinkFrame reads and dispatches one post-promotion char-link
// frame for the char-server owning c.
func (s *Server) serveCharLinkFrame(ctx context.Context, c *Conn) error {
	f, err := readCharLinkFrame(c.raw)
	if err != nil {
		return err
	}

	switch f.Opcode {
	case constants.OpValidateToken:
		return s.handleValidateToken(ctx, c, f)
	case constants.OpReportUserCount:
		return s.handleReportUserCount(ctx, c, f)
	case constants.OpFetchAccountInfo:
		return s.handleFetchAccountInfo(ctx, c, f)
	case constants.OpChangeGM:
		return c.write(constants.RepChangeGMResult, serverpackets.ChangeGMResult())
	case constants.OpChangeEmail:
		return s.handleChangeEmail(ctx, c, f)
	case constants.OpSetState:
		return s.handleSetState(ctx, c, f)
	case constants.OpAddBan:
		return s.handleAddBan(ctx, c, f)
	case constants.OpToggleSex:
		return s.handleToggleSex(ctx, c, f)
	case constants.OpReplaceVariables:
		return s.handleReplaceVariables(ctx, c, f)
	case constants.OpClearBan:
		return s.handleClearBan(ctx, c, f)
	case constants.OpPresenceMarkOnline:
		return s.handlePresenceMark(c, f, true)
	case constants.OpPresenceMarkOffline:
		return s.handlePresenceMark(c, f, false)
	case constants.OpPresenceSnapshot:
		return s.handlePresenceSnapshot(c, f)
	case constants.OpFetchVariables:
		return s.handleFetchVariables(ctx, c, f)
	case constants.OpGMListReload:
		return s.handleGMListReload(ctx)
	case constants.OpAdvertiseWANIP:
		return s.handleAdvertiseWANIP(c, f)
	case constants.OpMarkAllOffline:
		s.registry.MarkAllOfflineFrom(c.charServerID)
		return nil
	default:
		return fmt.Errorf("unhandled char-link opcode 0x%04x", f.Opcode)
	}
}

func (s *Server) handleValidateToken(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeValidateToken(f.Body)
	if err != nil {
		return err
	}
	clientIP := fmt.Sprintf("%d.%d.%d.%d", req.clientIP[0], req.clientIP[1], req.clientIP[2], req.clientIP[3])

	tok, found, alreadyConsumed := s.tokens.Consume(req.accountID, req.loginID1, req.loginID2, model.Sex(req.sex), clientIP)
	if !found || alreadyConsumed {
		return c.write(constants.RepTokenValidated, serverpackets.TokenValidated(req.accountID, 1, "", 0))
	}

	acct, err := s.store.LookupByID(ctx, tok.AccountID)
	if err != nil {
		return c.write(constants.RepTokenValidated, serverpackets.TokenValidated(req.accountID, 1, "", 0))
	}

	s.registry.MarkOnline(acct.ID, c.charServerID)
	return c.write(constants.RepTokenValidated, serverpackets.TokenValidated(acct.ID, 0, acct.Email, acct.ConnectUntil))
}

func (s *Server) handleReportUserCount(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeReportUserCount(f.Body)
	if err != nil {
		return err
	}
	s.charTbl.SetUserCount(c.charServerID, int(req.users))

	if info, ok := s.charTbl.Get(c.charServerID); ok {
		if err := s.store.SaveServerStatus(ctx, info.ID, info.Name, int(req.users)); err != nil {
			slog.Warn("saving server status failed", "char_server_id", info.ID, "error", err)
		}
	}
	return c.write(constants.RepUserCountAck, serverpackets.UserCountAck(req.users))
}

func (s *Server) handleFetchAccountInfo(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeFetchAccountInfo(f.Body)
	if err != nil {
		return err
	}
	acct, err := s.store.LookupByID(ctx, req.accountID)
	if err != nil {
		return c.write(constants.RepAccountInfo, serverpackets.AccountInfo(req.accountID, "", 0))
	}
	return c.write(constants.RepAccountInfo, serverpackets.AccountInfo(acct.ID, acct.Email, acct.ConnectUntil))
}

func (s *Server) handleChangeEmail(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeChangeEmail(f.Body)
	if err != nil {
		return err
	}
	_, err = s.store.SetEmail(ctx, req.accountID, req.oldEmail, req.newEmail)
	return err
}

func (s *Server) handleSetState(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeSetState(f.Body)
	if err != nil {
		return err
	}
	if err := s.store.SetState(ctx, req.accountID, int(req.state)); err != nil {
		return err
	}
	s.charTbl.Broadcast(c.charServerID, frameBytes(constants.RepAccountStatusChange,
		serverpackets.AccountStatusChange(constants.StatusChangeKindState, req.accountID, int64(req.state))))
	return nil
}

func (s *Server) handleAddBan(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeAddBan(f.Body)
	if err != nil {
		return err
	}
	if err := s.store.SetBanUntil(ctx, req.accountID, req.banUntil); err != nil {
		return err
	}
	s.charTbl.Broadcast(c.charServerID, frameBytes(constants.RepAccountStatusChange,
		serverpackets.AccountStatusChange(constants.StatusChangeKindBan, req.accountID, req.banUntil)))
	return nil
}

func (s *Server) handleClearBan(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeClearBan(f.Body)
	if err != nil {
		return err
	}
	if err := s.store.SetBanUntil(ctx, req.accountID, 0); err != nil {
		return err
	}
	s.charTbl.Broadcast(c.charServerID, frameBytes(constants.RepAccountStatusChange,
		serverpackets.AccountStatusChange(constants.StatusChangeKindBan, req.accountID, 0)))
	return nil
}

// handleToggleSex reproduces the original toggle-sex handler exactly,
// one-way quirk included: an account already male stays male, and
// anything else (female or a char-server pseudo-account) becomes
// female. The swap only ever works in one direction; it is never
// rewritten to the intended symmetric M<->F toggle.
func (s *Server) handleToggleSex(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeToggleSex(f.Body)
	if err != nil {
		return err
	}
	acct, err := s.store.LookupByID(ctx, req.accountID)
	if err != nil {
		return err
	}
	newSex := model.SexFemale
	if acct.Sex == model.SexMale {
		newSex = model.SexMale
	}
	if err := s.store.SetSex(ctx, req.accountID, newSex); err != nil {
		return err
	}
	s.charTbl.Broadcast(-1, frameBytes(constants.RepSexToggled, serverpackets.SexToggled(req.accountID, byte(newSex))))
	return nil
}

func (s *Server) handleReplaceVariables(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeReplaceVariables(f.Body)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceVariables(ctx, req.accountID, req.vars); err != nil {
		return err
	}
	s.charTbl.Broadcast(c.charServerID, frameBytes(constants.RepVariablesBroadcast,
		serverpackets.VariablesBroadcast(req.accountID, req.vars)))
	return nil
}

func (s *Server) handleFetchVariables(ctx context.Context, c *Conn, f frame) error {
	req, err := decodeFetchVariables(f.Body)
	if err != nil {
		return err
	}
	vars, err := s.store.ReadVariables(ctx, req.accountID)
	if err != nil {
		return err
	}
	return c.write(constants.RepVariablesBroadcast, serverpackets.VariablesBroadcast(req.accountID, vars))
}

func (s *Server) handlePresenceMark(c *Conn, f frame, online bool) error {
	req, err := decodePresenceMark(f.Body)
	if err != nil {
		return err
	}
	if online {
		s.registry.MarkOnline(req.accountID, c.charServerID)
	} else {
		s.registry.MarkOffline(req.accountID)
		s.sched.CancelWatchdog(fmt.Sprintf("kick-%d", req.accountID))
	}
	return nil
}

func (s *Server) handlePresenceSnapshot(c *Conn, f frame) error {
	ids := make([]int32, 0, len(f.Body)/4)
	for off := 0; off+4 <= len(f.Body); off += 4 {
		ids = append(ids, decodeInt32(f.Body[off:off+4]))
	}
	s.registry.SnapshotForCharServer(c.charServerID, ids)
	return nil
}

func (s *Server) handleAdvertiseWANIP(c *Conn, f frame) error {
	req, err := decodeAdvertiseWANIP(f.Body)
	if err != nil {
		return err
	}
	ip := fmt.Sprintf("%d.%d.%d.%d", req.ip[0], req.ip[1], req.ip[2], req.ip[3])
	s.charTbl.SetWANIP(c.charServerID, ip)
	return nil
}

// handleGMListReload reloads the GM roster from the database and
// broadcasts it to every connected char-server, reproducing the
// original reload-and-redistribute behavior the spec's 0x2709 opcode
// entry never itself spelled out. Config validation rejects any
// gm_read_method other than "login" at startup, so this always reads
// through to the store.
func (s *Server) handleGMListReload(ctx context.Context) error {
	rows, err := s.store.LoadGMList(ctx)
	if err != nil {
		return fmt.Errorf("reloading gm list: %w", err)
	}
	entries := make([]serverpackets.GMEntry, len(rows))
	for i, r := range rows {
		entries[i] = serverpackets.GMEntry{AccountID: r.AccountID, Level: r.Level}
	}
	s.charTbl.Broadcast(-1, frameBytes(constants.RepGMListBroadcast, serverpackets.GMListBroadcast(entries)))
	return nil
}

func decodeInt32(b []byte) int32 {
	return int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
}
