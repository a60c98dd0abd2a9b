package login

import (
	"encoding/binary"
	"fmt"

	"github.com/originline/loginauth/internal/model"
)

// validateTokenRequest is the decoded body of a 0x2712 frame: account
// id, login id pair, sex, client ip (as four octets).
type validateTokenRequest struct {
	accountID int32
	loginID1  int32
	loginID2  int32
	sex       byte
	clientIP  [4]byte
}

func decodeValidateToken(body []byte) (validateTokenRequest, error) {
	if len(body) != 17 {
		return validateTokenRequest{}, fmt.Errorf("validate token: body length %d, want 17", len(body))
	}
	var r validateTokenRequest
	r.accountID = int32(binary.LittleEndian.Uint32(body[0:4]))
	r.loginID1 = int32(binary.LittleEndian.Uint32(body[4:8]))
	r.loginID2 = int32(binary.LittleEndian.Uint32(body[8:12]))
	r.sex = body[12]
	copy(r.clientIP[:], body[13:17])
	return r, nil
}

// reportUserCountRequest is the decoded body of a 0x2714 frame.
type reportUserCountRequest struct {
	users uint16
}

func decodeReportUserCount(body []byte) (reportUserCountRequest, error) {
	if len(body) != 4 {
		return reportUserCountRequest{}, fmt.Errorf("report user count: body length %d, want 4", len(body))
	}
	return reportUserCountRequest{users: binary.LittleEndian.Uint16(body[0:2])}, nil
}

// fetchAccountInfoRequest is the decoded body of a 0x2716 frame.
type fetchAccountInfoRequest struct {
	accountID int32
}

func decodeFetchAccountInfo(body []byte) (fetchAccountInfoRequest, error) {
	if len(body) != 4 {
		return fetchAccountInfoRequest{}, fmt.Errorf("fetch account info: body length %d, want 4", len(body))
	}
	return fetchAccountInfoRequest{accountID: int32(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// changeEmailRequest is the decoded body of a 0x2722 frame: account id
// followed by old and new 40-byte email fields.
type changeEmailRequest struct {
	accountID int32
	oldEmail  string
	newEmail  string
}

func decodeChangeEmail(body []byte) (changeEmailRequest, error) {
	if len(body) != 84 {
		return changeEmailRequest{}, fmt.Errorf("change email: body length %d, want 84", len(body))
	}
	return changeEmailRequest{
		accountID: int32(binary.LittleEndian.Uint32(body[0:4])),
		oldEmail:  cstring(body[4:44]),
		newEmail:  cstring(body[44:84]),
	}, nil
}

// setStateRequest is the decoded body of a 0x2724 frame.
type setStateRequest struct {
	accountID int32
	state     int32
}

func decodeSetState(body []byte) (setStateRequest, error) {
	if len(body) != 8 {
		return setStateRequest{}, fmt.Errorf("set state: body length %d, want 8", len(body))
	}
	return setStateRequest{
		accountID: int32(binary.LittleEndian.Uint32(body[0:4])),
		state:     int32(binary.LittleEndian.Uint32(body[4:8])),
	}, nil
}

// addBanRequest is the decoded body of a 0x2725 frame: account id plus
// a ban-until timestamp.
type addBanRequest struct {
	accountID int32
	banUntil  int64
}

func decodeAddBan(body []byte) (addBanRequest, error) {
	if len(body) != 12 {
		return addBanRequest{}, fmt.Errorf("add ban: body length %d, want 12", len(body))
	}
	return addBanRequest{
		accountID: int32(binary.LittleEndian.Uint32(body[0:4])),
		banUntil:  int64(binary.LittleEndian.Uint64(body[4:12])),
	}, nil
}

// toggleSexRequest is the decoded body of a 0x2727 frame.
type toggleSexRequest struct {
	accountID int32
}

func decodeToggleSex(body []byte) (toggleSexRequest, error) {
	if len(body) != 4 {
		return toggleSexRequest{}, fmt.Errorf("toggle sex: body length %d, want 4", len(body))
	}
	return toggleSexRequest{accountID: int32(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// replaceVariablesRequest is the decoded body of a 0x2728 frame:
// account id followed by a run of length-prefixed key/value pairs.
type replaceVariablesRequest struct {
	accountID int32
	vars      map[string]string
}

func decodeReplaceVariables(body []byte) (replaceVariablesRequest, error) {
	if len(body) < 4 {
		return replaceVariablesRequest{}, fmt.Errorf("replace variables: body too short")
	}
	r := replaceVariablesRequest{
		accountID: int32(binary.LittleEndian.Uint32(body[0:4])),
		vars:      make(map[string]string),
	}
	off := 4
	for off < len(body) {
		if off+2 > len(body) {
			return replaceVariablesRequest{}, fmt.Errorf("replace variables: truncated key length")
		}
		klen := int(binary.LittleEndian.Uint16(body[off : off+2]))
		off += 2
		if off+klen > len(body) {
			return replaceVariablesRequest{}, fmt.Errorf("replace variables: truncated key")
		}
		key := cstring(body[off : off+klen])
		off += klen
		if len(key) > model.MaxVariableKeyLen {
			return replaceVariablesRequest{}, fmt.Errorf("replace variables: key %q exceeds %d bytes", key, model.MaxVariableKeyLen)
		}

		if off+2 > len(body) {
			return replaceVariablesRequest{}, fmt.Errorf("replace variables: truncated value length")
		}
		vlen := int(binary.LittleEndian.Uint16(body[off : off+2]))
		off += 2
		if off+vlen > len(body) {
			return replaceVariablesRequest{}, fmt.Errorf("replace variables: truncated value")
		}
		value := cstring(body[off : off+vlen])
		off += vlen
		if len(value) > model.MaxVariableValueLen {
			return replaceVariablesRequest{}, fmt.Errorf("replace variables: value for %q exceeds %d bytes", key, model.MaxVariableValueLen)
		}

		r.vars[key] = value
	}
	return r, nil
}

// clearBanRequest is the decoded body of a 0x272a frame.
type clearBanRequest struct {
	accountID int32
}

func decodeClearBan(body []byte) (clearBanRequest, error) {
	if len(body) != 4 {
		return clearBanRequest{}, fmt.Errorf("clear ban: body length %d, want 4", len(body))
	}
	return clearBanRequest{accountID: int32(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// presenceMarkRequest is the decoded body of a 0x272b/0x272c frame.
type presenceMarkRequest struct {
	accountID int32
}

func decodePresenceMark(body []byte) (presenceMarkRequest, error) {
	if len(body) != 4 {
		return presenceMarkRequest{}, fmt.Errorf("presence mark: body length %d, want 4", len(body))
	}
	return presenceMarkRequest{accountID: int32(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// fetchVariablesRequest is the decoded body of a 0x272e frame.
type fetchVariablesRequest struct {
	accountID int32
}

func decodeFetchVariables(body []byte) (fetchVariablesRequest, error) {
	if len(body) != 4 {
		return fetchVariablesRequest{}, fmt.Errorf("fetch variables: body length %d, want 4", len(body))
	}
	return fetchVariablesRequest{accountID: int32(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// advertiseWANIPRequest is the decoded body of a 0x2736 frame: the
// char-server's externally reachable IP as four octets. The body
// carries no id; the sending link identifies the char-server.
type advertiseWANIPRequest struct {
	ip [4]byte
}

func decodeAdvertiseWANIP(body []byte) (advertiseWANIPRequest, error) {
	if len(body) != 4 {
		return advertiseWANIPRequest{}, fmt.Errorf("advertise wan ip: body length %d, want 4", len(body))
	}
	var r advertiseWANIPRequest
	copy(r.ip[:], body[0:4])
	return r, nil
}
