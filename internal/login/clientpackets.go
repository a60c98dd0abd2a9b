package login

import (
	"encoding/binary"
	"fmt"

	"github.com/originline/loginauth/internal/auth"
)

// loginRequest is the decoded body of a 0x0064/0x01dd/0x0277 client
// login frame.
type loginRequest struct {
	clientVersion int
	username      string
	passwdEnc     auth.PasswdEnc
	passwordPlain string
	digest        [16]byte
}

// decodePlainLogin parses a 0x0064 body: version(4) userid(24) passwd(24).
func decodePlainLogin(body []byte) (loginRequest, error) {
	if len(body) != 53 {
		return loginRequest{}, fmt.Errorf("plain login: body length %d, want 53", len(body))
	}
	return loginRequest{
		clientVersion: int(int32(binary.LittleEndian.Uint32(body[0:4]))),
		username:      cstring(body[4:28]),
		passwdEnc:     auth.PasswdEncNone,
		passwordPlain: cstring(body[28:52]),
	}, nil
}

// decodeMD5Login parses a 0x01dd body: version(4) userid(24) digest(16).
func decodeMD5Login(body []byte) (loginRequest, error) {
	if len(body) != 45 {
		return loginRequest{}, fmt.Errorf("md5 login: body length %d, want 45", len(body))
	}
	req := loginRequest{
		clientVersion: int(int32(binary.LittleEndian.Uint32(body[0:4]))),
		username:      cstring(body[4:28]),
		passwdEnc:     auth.PasswdEncMD5Mode1,
	}
	copy(req.digest[:], body[28:44])
	return req, nil
}

// decodeExtendedLogin parses a 0x0277 body: version(4) userid(24)
// digest(16), followed by 38 bytes of client-type/MAC/IP fields the
// login authority reads but never interprets (`login.c`'s 0x277
// handler shares the same version/userid/passwd memcpy calls as
// 0x01dd and only differs in its minimum packet length).
func decodeExtendedLogin(body []byte) (loginRequest, error) {
	if len(body) != 82 {
		return loginRequest{}, fmt.Errorf("extended login: body length %d, want 82", len(body))
	}
	req := loginRequest{
		clientVersion: int(int32(binary.LittleEndian.Uint32(body[0:4]))),
		username:      cstring(body[4:28]),
		passwdEnc:     auth.PasswdEncMD5Mode1,
	}
	copy(req.digest[:], body[28:44])
	return req, nil
}

// decodeCharServerHandshake parses a 0x2710 body: userid(24) passwd(24)
// reserved(4) ip(4) port(2) name(20) reserved(2) maintenance(2) new_(2).
type charServerHandshake struct {
	username    string
	password    string
	ip          [4]byte
	port        uint16
	name        string
	maintenance bool
	isNew       bool
}

func decodeCharServerHandshake(body []byte) (charServerHandshake, error) {
	if len(body) != 84 {
		return charServerHandshake{}, fmt.Errorf("char-server handshake: body length %d, want 84", len(body))
	}
	var h charServerHandshake
	h.username = cstring(body[0:24])
	h.password = cstring(body[24:48])
	// body[48:52] is a reserved/version field the login authority does
	// not interpret.
	copy(h.ip[:], body[52:56])
	h.port = binary.LittleEndian.Uint16(body[56:58])
	h.name = cstring(body[58:78])
	h.maintenance = binary.LittleEndian.Uint16(body[80:82]) != 0
	h.isNew = binary.LittleEndian.Uint16(body[82:84]) != 0
	return h, nil
}

// cstring trims a fixed-width NUL-padded field down to its printable
// prefix.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
