package serverpackets

import "encoding/binary"

// TokenValidated builds the 0x2713 body for a validate-token reply:
// account id, ok flag (0 ok, 1 already consumed / not found), email,
// connect-until.
func TokenValidated(accountID int32, ok byte, email string, connectUntil int64) []byte {
	body := make([]byte, 4+1+40+8)
	binary.LittleEndian.PutUint32(body[0:4], uint32(accountID))
	body[4] = ok
	emailBuf := make([]byte, 40)
	copy(emailBuf, email)
	copy(body[5:45], emailBuf)
	binary.LittleEndian.PutUint64(body[45:53], uint64(connectUntil))
	return body
}

// UserCountAck builds the 0x2718 acknowledgment body: just the
// account count the char-server reported, echoed back.
func UserCountAck(users uint16) []byte {
	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, users)
	return body
}

// AccountInfo builds the 0x2717 body: account id, email,
// connect-until.
func AccountInfo(accountID int32, email string, connectUntil int64) []byte {
	body := make([]byte, 4+40+8)
	binary.LittleEndian.PutUint32(body[0:4], uint32(accountID))
	emailBuf := make([]byte, 40)
	copy(emailBuf, email)
	copy(body[4:44], emailBuf)
	binary.LittleEndian.PutUint64(body[44:52], uint64(connectUntil))
	return body
}

// ChangeGMResult builds the 0x2721 body. The GM-change opcode is
// reproduced as always-fail, so new_acc is always 0.
func ChangeGMResult() []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, 0)
	return body
}

// SexToggled builds the 0x2723 broadcast body: account id, new sex.
func SexToggled(accountID int32, sex byte) []byte {
	body := make([]byte, 5)
	binary.LittleEndian.PutUint32(body[0:4], uint32(accountID))
	body[4] = sex
	return body
}

// VariablesBroadcast builds the 0x2729 broadcast body: account id
// followed by a length-prefixed key/value run.
func VariablesBroadcast(accountID int32, vars map[string]string) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(accountID))
	for k, v := range vars {
		entry := make([]byte, 2+len(k)+1+2+len(v)+1)
		off := 0
		binary.LittleEndian.PutUint16(entry[off:off+2], uint16(len(k)+1))
		off += 2
		copy(entry[off:], k)
		off += len(k) + 1
		binary.LittleEndian.PutUint16(entry[off:off+2], uint16(len(v)+1))
		off += 2
		copy(entry[off:], v)
		body = append(body, entry...)
	}
	return body
}

// AccountStatusChange builds the 0x2731 broadcast body: kind (0
// state, 1 ban), account id, new value.
func AccountStatusChange(kind byte, accountID int32, value int64) []byte {
	body := make([]byte, 1+4+8)
	body[0] = kind
	binary.LittleEndian.PutUint32(body[1:5], uint32(accountID))
	binary.LittleEndian.PutUint64(body[5:13], uint64(value))
	return body
}

// KickNotice builds the 0x2734 broadcast body telling char-servers to
// disconnect an already-online account that just tried a second
// login.
func KickNotice(accountID int32) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(accountID))
	return body
}

// GMListBroadcast builds the 0x2732 body: a run of (account id,
// level) pairs.
func GMListBroadcast(entries []GMEntry) []byte {
	body := make([]byte, 8*len(entries))
	for i, e := range entries {
		binary.LittleEndian.PutUint32(body[i*8:i*8+4], uint32(e.AccountID))
		binary.LittleEndian.PutUint32(body[i*8+4:i*8+8], uint32(e.Level))
	}
	return body
}

// GMEntry is one (account id, level) pair in the GM list broadcast.
type GMEntry struct {
	AccountID int32
	Level     int32
}
