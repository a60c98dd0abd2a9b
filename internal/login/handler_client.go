package login

import (
	"context"
	"fmt"
	"time"

	"github.com/originline/loginauth/internal/auth"
	"github.com/originline/loginauth/internal/constants"
	"github.com/originline/loginauth/internal/login/serverpackets"
	"github.com/originline/loginauth/internal/model"
)

// serveClientFrame reads and dispatches one pre-promotion
// client-protocol frame.
func (s *Server) serveClientFrame(ctx context.Context, c *Conn, peer string) error {
	f, err := readClientFrame(c.raw)
	if err != nil {
		return err
	}

	switch f.Opcode {
	case constants.OpClientLoginPlain, constants.OpClientLoginMD5, constants.OpClientLoginExtended:
		return s.handleClientLogin(ctx, c, peer, f)
	case constants.OpClientKeepAlive, constants.OpClientKeepAliveEnc:
		return nil
	case constants.OpClientRequestMD5Key:
		return c.write(constants.RepMD5Key, serverpackets.MD5Key(s.engine.MD5Key()))
	case constants.OpCharServerHandshake:
		return s.handleCharServerHandshake(ctx, c, peer, f)
	case constants.OpVersionProbe:
		return c.write(constants.RepVersionInfo, serverpackets.VersionInfo(1, 0, 0, 0, 0, 0, 0))
	case constants.OpGracefulClose:
		return fmt.Errorf("client requested close")
	default:
		return fmt.Errorf("unhandled client opcode 0x%04x", f.Opcode)
	}
}

func (s *Server) handleClientLogin(ctx context.Context, c *Conn, peer string, f frame) error {
	var req auth.Request
	switch f.Opcode {
	case constants.OpClientLoginPlain:
		decoded, err := decodePlainLogin(f.Body)
		if err != nil {
			return err
		}
		req = auth.Request{
			Username:      decoded.username,
			PasswdEnc:     decoded.passwdEnc,
			PasswordPlain: decoded.passwordPlain,
			ClientVersion: decoded.clientVersion,
		}
	case constants.OpClientLoginMD5:
		decoded, err := decodeMD5Login(f.Body)
		if err != nil {
			return err
		}
		req = auth.Request{
			Username:       decoded.username,
			PasswdEnc:      decoded.passwdEnc,
			PasswordDigest: decoded.digest,
			ClientVersion:  decoded.clientVersion,
		}
	case constants.OpClientLoginExtended:
		decoded, err := decodeExtendedLogin(f.Body)
		if err != nil {
			return err
		}
		req = auth.Request{
			Username:       decoded.username,
			PasswdEnc:      decoded.passwdEnc,
			PasswordDigest: decoded.digest,
			ClientVersion:  decoded.clientVersion,
		}
	}
	req.PeerIP = peer

	outcome, err := s.engine.Authenticate(ctx, req)
	if err != nil {
		return fmt.Errorf("authenticating %q: %w", req.Username, err)
	}

	if !outcome.Granted {
		banDate := ""
		if outcome.RCode == auth.RCodeBannedUntil && outcome.BanUntil != 0 {
			banDate = time.Unix(outcome.BanUntil, 0).Format(s.cfg.DateFormat)
		}
		return c.write(constants.RepLoginRefused, serverpackets.LoginRefused(outcome.RCode, banDate))
	}

	if outcome.Account.GMLevel < s.cfg.MinLevelToConnect {
		return c.write(constants.RepServerClosed, serverpackets.ServerClosed(1))
	}

	entries := s.buildCharServerList(peer)
	if len(entries) == 0 {
		return c.write(constants.RepServerClosed, serverpackets.ServerClosed(1))
	}

	body := serverpackets.LoginAccepted(outcome.Token.LoginID1, outcome.Account.ID, outcome.Token.LoginID2, outcome.Account.Sex, entries)
	return c.write(constants.RepLoginAccepted, body)
}

func (s *Server) buildCharServerList(peer string) []serverpackets.CharServerListEntry {
	servers := s.charTbl.List()
	entries := make([]serverpackets.CharServerListEntry, 0, len(servers))
	for _, srv := range servers {
		ip := srv.IP
		if mapped, ok := s.lan.RewriteCharIP(peer); ok {
			ip = mapped
		}
		entries = append(entries, serverpackets.CharServerListEntry{
			IP:          parseIPv4(ip),
			Port:        srv.Port,
			Name:        srv.Name,
			Users:       uint16(srv.Users),
			Maintenance: boolToUint16(srv.Maintenance),
			IsNew:       boolToUint16(srv.IsNew),
		})
	}
	return entries
}

func boolToUint16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func parseIPv4(s string) [4]byte {
	var out [4]byte
	var a, b, c, d int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return out
	}
	out[0], out[1], out[2], out[3] = byte(a), byte(b), byte(c), byte(d)
	return out
}

func (s *Server) handleCharServerHandshake(ctx context.Context, c *Conn, peer string, f frame) error {
	h, err := decodeCharServerHandshake(f.Body)
	if err != nil {
		return err
	}

	req := auth.Request{
		Username:              h.username,
		PasswdEnc:             auth.PasswdEncNone,
		PasswordPlain:         h.password,
		PeerIP:                peer,
		IsCharServerHandshake: true,
	}
	outcome, err := s.engine.Authenticate(ctx, req)
	if err != nil {
		return fmt.Errorf("authenticating char-server %q: %w", h.username, err)
	}
	if !outcome.Granted {
		return c.write(constants.RepCharServerHandshake, serverpackets.CharServerHandshakeResult(3))
	}

	id := int16(outcome.Account.ID)
	if !s.charTbl.ClaimSlot(id) {
		return c.write(constants.RepCharServerHandshake, serverpackets.CharServerHandshakeResult(3))
	}

	ip := peer
	if mapped, ok := s.lan.RewriteCharIP(peer); ok {
		ip = mapped
	} else if h.ip != ([4]byte{}) {
		ip = fmt.Sprintf("%d.%d.%d.%d", h.ip[0], h.ip[1], h.ip[2], h.ip[3])
	}

	info := model.CharServerEntry{
		ID:          id,
		Name:        h.name,
		IP:          ip,
		Port:        h.port,
		Users:       s.seedUserCount(id),
		Maintenance: h.maintenance,
		IsNew:       h.isNew,
	}
	s.charTbl.Register(info, c)
	c.promote(id)

	return c.write(constants.RepCharServerHandshake, serverpackets.CharServerHandshakeResult(0))
}
