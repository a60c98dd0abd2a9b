// Package constants holds the fixed wire opcodes, packet sizes, and
// field-width limits shared across the login authority's client and
// char-link protocols.
package constants

// Client-protocol opcodes, pre-promotion.
const (
	OpClientLoginPlain    = 0x0064 // 55 bytes
	OpClientLoginMD5      = 0x01dd // 47 bytes
	OpClientLoginExtended = 0x0277 // 84 bytes
	OpClientKeepAlive     = 0x0200 // 26 bytes, discarded
	OpClientKeepAliveEnc  = 0x0204 // 18 bytes, discarded
	OpClientRequestMD5Key = 0x01db // 2 bytes
	OpCharServerHandshake = 0x2710 // 86 bytes, triggers promotion
	OpVersionProbe        = 0x7530 // 2 bytes
	OpGracefulClose       = 0x7532 // 2 bytes
)

// Client-protocol reply opcodes.
const (
	RepLoginRefused         = 0x006a
	RepLoginAccepted        = 0x0069
	RepServerClosed         = 0x0081
	RepMD5Key               = 0x01dc
	RepCharServerHandshake  = 0x2711
	RepVersionInfo          = 0x7531
)

// Fixed request frame lengths, opcode -> total byte length including
// the 2-byte opcode itself.
var ClientFrameLen = map[uint16]int{
	OpClientLoginPlain:    55,
	OpClientLoginMD5:      47,
	OpClientLoginExtended: 84,
	OpClientKeepAlive:     26,
	OpClientKeepAliveEnc:  18,
	OpClientRequestMD5Key: 2,
	OpCharServerHandshake: 86,
	OpVersionProbe:        2,
	OpGracefulClose:       2,
}

// Char-link protocol opcodes, post-promotion.
const (
	OpGMListReload        = 0x2709
	OpValidateToken       = 0x2712 // 19 bytes
	OpReportUserCount     = 0x2714 // 6 bytes
	OpFetchAccountInfo    = 0x2716 // 6 bytes
	OpChangeGM            = 0x2720 // deprecated, always fails
	OpChangeEmail         = 0x2722 // 86 bytes
	OpSetState            = 0x2724
	OpAddBan              = 0x2725
	OpToggleSex           = 0x2727
	OpReplaceVariables    = 0x2728
	OpClearBan            = 0x272a
	OpPresenceMarkOnline  = 0x272b
	OpPresenceMarkOffline = 0x272c
	OpPresenceSnapshot    = 0x272d
	OpFetchVariables      = 0x272e
	OpAdvertiseWANIP      = 0x2736
	OpMarkAllOffline      = 0x2737
)

// Char-link protocol reply/broadcast opcodes.
const (
	RepGMListBroadcast     = 0x2732
	RepTokenValidated      = 0x2713
	RepUserCountAck        = 0x2718
	RepAccountInfo         = 0x2717
	RepChangeGMResult      = 0x2721 // always failure
	RepSexToggled          = 0x2723
	RepVariablesBroadcast  = 0x2729
	RepAccountStatusChange = 0x2731 // kind 0 = state, kind 1 = ban
	RepKickNotice          = 0x2734
	RepRequestWANIPSync    = 0x2735
)

// StatusChangeKind distinguishes the two uses of RepAccountStatusChange.
const (
	StatusChangeKindState byte = 0
	StatusChangeKindBan   byte = 1
)

// Field-width limits, mirrored from the wire formats above.
const (
	MaxUserIDLen     = 23
	MaxPasswordLen   = 23
	MaxEmailLen      = 39
	MaxServerNameLen = 20
	CharServerEntrySize = 32

	AuthFIFOSize = 256

	MD5KeyMinLen = 12
	MD5KeyMaxLen = 15

	StartAccountNum = 2000000

	AccountPurgeSentinel = 99 // account id used to request admin-initiated presence purge
)
