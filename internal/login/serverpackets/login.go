// Package serverpackets encodes every reply the login authority sends
// back over the client and char-link protocols.
package serverpackets

import (
	"encoding/binary"

	"github.com/originline/loginauth/internal/model"
)

// LoginRefused builds the 0x006a body: a 1-byte rcode followed by a
// 20-byte NUL-padded ban-until date string (empty unless rcode is the
// banned-until-T code).
func LoginRefused(rcode byte, banUntilDate string) []byte {
	body := make([]byte, 21)
	body[0] = rcode
	copy(body[1:21], banUntilDate)
	return body
}

// CharServerListEntry is one 32-byte entry in the login-accepted
// reply's variable-length tail.
type CharServerListEntry struct {
	IP          [4]byte
	Port        uint16
	Name        string
	Users       uint16
	Maintenance uint16
	IsNew       uint16
}

// LoginAccepted builds the 0x0069 body: login ids, account id,
// last-login, sex, then one 32-byte entry per connected char-server.
func LoginAccepted(loginID1, accountID, loginID2 int32, sex model.Sex, servers []CharServerListEntry) []byte {
	body := make([]byte, 41+32*len(servers))
	binary.LittleEndian.PutUint32(body[0:4], uint32(loginID1))
	binary.LittleEndian.PutUint32(body[4:8], uint32(accountID))
	binary.LittleEndian.PutUint32(body[8:12], uint32(loginID2))
	binary.LittleEndian.PutUint32(body[12:16], 0)
	// bytes 16..40 reserved for a last-login timestamp string; left
	// zeroed, since spec.md §4.6 does not specify its format.
	body[40] = byte(sex)

	off := 41
	for _, s := range servers {
		copy(body[off:off+4], s.IP[:])
		binary.LittleEndian.PutUint16(body[off+4:off+6], s.Port)
		nameBuf := make([]byte, 20)
		copy(nameBuf, s.Name)
		copy(body[off+6:off+26], nameBuf)
		binary.LittleEndian.PutUint16(body[off+26:off+28], s.Users)
		binary.LittleEndian.PutUint16(body[off+28:off+30], s.Maintenance)
		binary.LittleEndian.PutUint16(body[off+30:off+32], s.IsNew)
		off += 32
	}
	return body
}

// ServerClosed builds the 0x0081 body: a single status byte (1 =
// server closed).
func ServerClosed(code byte) []byte {
	return []byte{code}
}

// MD5Key builds the 0x01dc body: a 2-byte length followed by the raw
// salt bytes.
func MD5Key(key []byte) []byte {
	body := make([]byte, 2+len(key))
	binary.LittleEndian.PutUint16(body[0:2], uint16(2+len(key)))
	copy(body[2:], key)
	return body
}

// CharServerHandshakeResult builds the 0x2711 body: 0 ok, 3 refused.
func CharServerHandshakeResult(status byte) []byte {
	return []byte{status}
}

// VersionInfo builds the 0x7531 body. Field meaning mirrors the
// original Athena-information reply: major/minor/revision/release
// flag/official flag/server-type byte, then a 2-byte mod version.
func VersionInfo(major, minor, revision, release, official, serverType byte, mod uint16) []byte {
	body := make([]byte, 8)
	body[0] = major
	body[1] = minor
	body[2] = revision
	body[3] = release
	body[4] = official
	body[5] = serverType
	binary.LittleEndian.PutUint16(body[6:8], mod)
	return body
}
