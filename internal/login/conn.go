package login

import (
	"encoding/binary"
	"net"
	"sync"
)

// Conn wraps one client connection, pre- or post-promotion to a
// char-link. Writes are serialized so a broadcast can't interleave
// with a direct reply.
type Conn struct {
	raw     net.Conn
	bufPool *BytePool

	mu sync.Mutex

	charServerID int16
	promoted     bool
}

// newConn wraps raw. pool may be nil, in which case write falls back
// to a fresh allocation per call.
func newConn(raw net.Conn, pool *BytePool) *Conn {
	return &Conn{raw: raw, bufPool: pool}
}

// Send writes a single framed packet, satisfying charserver.Link once
// this connection is promoted.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.raw.Write(payload)
	return err
}

// write frames opcode+body as one packet and sends it, reusing a
// pooled buffer when one is available.
func (c *Conn) write(opcode uint16, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bufPool == nil {
		return writeFrame(c.raw, opcode, body)
	}

	buf := c.bufPool.Get(2 + len(body))
	binary.LittleEndian.PutUint16(buf, opcode)
	copy(buf[2:], body)
	_, err := c.raw.Write(buf)
	c.bufPool.Put(buf)
	return err
}

// promote marks this connection as a char-server link under id.
func (c *Conn) promote(id int16) {
	c.promoted = true
	c.charServerID = id
}
