package model

// CharServerEntry is one row of the in-memory char-server table: a
// char-server that completed the link handshake and is available to
// receive tokens and broadcasts.
type CharServerEntry struct {
	ID          int16
	Name        string // max 20 chars
	IP          string // advertised IPv4, as seen by players
	Port        uint16
	Users       int
	Maintenance bool
	IsNew       bool
}

const MaxCharServers = 30
const MaxServerNameLen = 20
