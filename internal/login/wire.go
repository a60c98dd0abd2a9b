package login

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/originline/loginauth/internal/constants"
)

// charLinkFixedLen gives the total frame length (including the 2-byte
// opcode) for char-link opcodes whose size spec.md states explicitly.
// Every other recognized char-link opcode uses embedded-length
// framing: a 2-byte length-of-remainder field immediately after the
// opcode.
var charLinkFixedLen = map[uint16]int{
	constants.OpValidateToken:    19,
	constants.OpReportUserCount:  6,
	constants.OpFetchAccountInfo: 6,
	constants.OpChangeEmail:      86,
}

// frame is one parsed wire packet: the opcode plus its body (the
// bytes following the 2-byte opcode field).
type frame struct {
	Opcode uint16
	Body   []byte
}

// readClientFrame reads one fixed-length client-protocol frame. An
// unrecognized opcode is a protocol error — the caller closes the
// connection.
func readClientFrame(conn net.Conn) (frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return frame{}, err
	}
	opcode := binary.LittleEndian.Uint16(hdr[:])

	total, ok := constants.ClientFrameLen[opcode]
	if !ok {
		return frame{}, fmt.Errorf("unrecognized client opcode 0x%04x", opcode)
	}

	body := make([]byte, total-2)
	if _, err := io.ReadFull(conn, body); err != nil {
		return frame{}, fmt.Errorf("reading body for opcode 0x%04x: %w", opcode, err)
	}
	return frame{Opcode: opcode, Body: body}, nil
}

// readCharLinkFrame reads one char-link frame, fixed or
// embedded-length depending on the opcode.
func readCharLinkFrame(conn net.Conn) (frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return frame{}, err
	}
	opcode := binary.LittleEndian.Uint16(hdr[:])

	if total, ok := charLinkFixedLen[opcode]; ok {
		body := make([]byte, total-2)
		if _, err := io.ReadFull(conn, body); err != nil {
			return frame{}, fmt.Errorf("reading body for opcode 0x%04x: %w", opcode, err)
		}
		return frame{Opcode: opcode, Body: body}, nil
	}

	if !isKnownCharLinkOpcode(opcode) {
		return frame{}, fmt.Errorf("unrecognized char-link opcode 0x%04x", opcode)
	}

	var lenHdr [2]byte
	if _, err := io.ReadFull(conn, lenHdr[:]); err != nil {
		return frame{}, fmt.Errorf("reading length field for opcode 0x%04x: %w", opcode, err)
	}
	remaining := int(binary.LittleEndian.Uint16(lenHdr[:]))
	body := make([]byte, remaining)
	if remaining > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			return frame{}, fmt.Errorf("reading embedded body for opcode 0x%04x: %w", opcode, err)
		}
	}
	return frame{Opcode: opcode, Body: body}, nil
}

func isKnownCharLinkOpcode(opcode uint16) bool {
	switch opcode {
	case constants.OpGMListReload,
		constants.OpChangeGM,
		constants.OpSetState,
		constants.OpAddBan,
		constants.OpToggleSex,
		constants.OpReplaceVariables,
		constants.OpClearBan,
		constants.OpPresenceMarkOnline,
		constants.OpPresenceMarkOffline,
		constants.OpPresenceSnapshot,
		constants.OpFetchVariables,
		constants.OpAdvertiseWANIP,
		constants.OpMarkAllOffline:
		return true
	default:
		return false
	}
}

// writeFrame sends a raw opcode + body as a single write, avoiding
// partial-packet interleaving on concurrent broadcast + reply writes.
func writeFrame(conn net.Conn, opcode uint16, body []byte) error {
	buf := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(buf, opcode)
	copy(buf[2:], body)
	_, err := conn.Write(buf)
	return err
}
