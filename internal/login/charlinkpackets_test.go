package login

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/originline/loginauth/internal/model"
)

func TestDecodeValidateToken(t *testing.T) {
	body := make([]byte, 17)
	binary.LittleEndian.PutUint32(body[0:4], 42)
	binary.LittleEndian.PutUint32(body[4:8], 111)
	binary.LittleEndian.PutUint32(body[8:12], 222)
	body[12] = byte(model.SexFemale)
	copy(body[13:17], []byte{10, 0, 0, 1})

	req, err := decodeValidateToken(body)
	if err != nil {
		t.Fatalf("decodeValidateToken: %v", err)
	}
	if req.accountID != 42 || req.loginID1 != 111 || req.loginID2 != 222 {
		t.Errorf("got %+v", req)
	}
	if req.clientIP != ([4]byte{10, 0, 0, 1}) {
		t.Errorf("clientIP = %v", req.clientIP)
	}
}

func TestDecodeValidateToken_WrongLength(t *testing.T) {
	if _, err := decodeValidateToken(make([]byte, 16)); err == nil {
		t.Fatal("expected an error for a malformed body length")
	}
}

func TestDecodeChangeEmail(t *testing.T) {
	body := make([]byte, 84)
	binary.LittleEndian.PutUint32(body[0:4], 7)
	copy(body[4:44], "old@example.com")
	copy(body[44:84], "new@example.com")

	req, err := decodeChangeEmail(body)
	if err != nil {
		t.Fatalf("decodeChangeEmail: %v", err)
	}
	if req.accountID != 7 || req.oldEmail != "old@example.com" || req.newEmail != "new@example.com" {
		t.Errorf("got %+v", req)
	}
}

func TestDecodeAddBan(t *testing.T) {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint32(body[0:4], 9)
	binary.LittleEndian.PutUint64(body[4:12], 1893456000)

	req, err := decodeAddBan(body)
	if err != nil {
		t.Fatalf("decodeAddBan: %v", err)
	}
	if req.accountID != 9 || req.banUntil != 1893456000 {
		t.Errorf("got %+v", req)
	}
}

func encodeVariablesBody(accountID int32, pairs [][2]string) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body[0:4], uint32(accountID))
	for _, kv := range pairs {
		k, v := []byte(kv[0]), []byte(kv[1])
		lenbuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(lenbuf, uint16(len(k)))
		body = append(body, lenbuf...)
		body = append(body, k...)
		binary.LittleEndian.PutUint16(lenbuf, uint16(len(v)))
		body = append(body, lenbuf...)
		body = append(body, v...)
	}
	return body
}

func TestDecodeReplaceVariables(t *testing.T) {
	body := encodeVariablesBody(5, [][2]string{
		{"quest1", "done"},
		{"intro_seen", "1"},
	})

	req, err := decodeReplaceVariables(body)
	if err != nil {
		t.Fatalf("decodeReplaceVariables: %v", err)
	}
	if req.accountID != 5 {
		t.Errorf("accountID = %d, want 5", req.accountID)
	}
	if len(req.vars) != 2 || req.vars["quest1"] != "done" || req.vars["intro_seen"] != "1" {
		t.Errorf("vars = %+v", req.vars)
	}
}

func TestDecodeReplaceVariables_KeyTooLong(t *testing.T) {
	longKey := strings.Repeat("k", model.MaxVariableKeyLen+1)
	body := encodeVariablesBody(1, [][2]string{{longKey, "v"}})

	if _, err := decodeReplaceVariables(body); err == nil {
		t.Fatal("expected an error for an oversized variable key")
	}
}

func TestDecodeReplaceVariables_ValueTooLong(t *testing.T) {
	longValue := strings.Repeat("v", model.MaxVariableValueLen+1)
	body := encodeVariablesBody(1, [][2]string{{"k", longValue}})

	if _, err := decodeReplaceVariables(body); err == nil {
		t.Fatal("expected an error for an oversized variable value")
	}
}

func TestDecodeReplaceVariables_TruncatedKey(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint16(body[4:6], 10) // claims a 10-byte key but body ends at 8
	if _, err := decodeReplaceVariables(body); err == nil {
		t.Fatal("expected an error for a truncated key")
	}
}

func TestDecodeReportUserCount(t *testing.T) {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint16(body[0:2], 37)

	req, err := decodeReportUserCount(body)
	if err != nil {
		t.Fatalf("decodeReportUserCount: %v", err)
	}
	if req.users != 37 {
		t.Errorf("users = %d, want 37", req.users)
	}
}

func TestDecodeAdvertiseWANIP(t *testing.T) {
	body := []byte{203, 0, 113, 7}
	req, err := decodeAdvertiseWANIP(body)
	if err != nil {
		t.Fatalf("decodeAdvertiseWANIP: %v", err)
	}
	if req.ip != ([4]byte{203, 0, 113, 7}) {
		t.Errorf("ip = %v", req.ip)
	}
}
