package login

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/originline/loginauth/internal/constants"
)

func pipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestWriteFrameThenReadClientFrame(t *testing.T) {
	client, server := pipe(t)

	go func() {
		body := make([]byte, 53)
		writeFrame(client, constants.OpClientLoginPlain, body)
	}()

	f, err := readClientFrame(server)
	if err != nil {
		t.Fatalf("readClientFrame: %v", err)
	}
	if f.Opcode != constants.OpClientLoginPlain {
		t.Errorf("opcode = 0x%04x", f.Opcode)
	}
	if len(f.Body) != 53 {
		t.Errorf("body length = %d, want 53", len(f.Body))
	}
}

func TestReadClientFrame_UnrecognizedOpcode(t *testing.T) {
	client, server := pipe(t)

	go writeFrame(client, 0xffff, nil)

	if _, err := readClientFrame(server); err == nil {
		t.Fatal("expected an error for an unrecognized client opcode")
	}
}

func TestReadCharLinkFrame_FixedLength(t *testing.T) {
	client, server := pipe(t)

	go func() {
		writeFrame(client, constants.OpReportUserCount, make([]byte, 4))
	}()

	f, err := readCharLinkFrame(server)
	if err != nil {
		t.Fatalf("readCharLinkFrame: %v", err)
	}
	if len(f.Body) != 4 {
		t.Errorf("body length = %d, want 4", len(f.Body))
	}
}

func TestReadCharLinkFrame_EmbeddedLength(t *testing.T) {
	client, server := pipe(t)

	go func() {
		hdr := make([]byte, 4)
		binary.LittleEndian.PutUint16(hdr[0:2], constants.OpAddBan)
		binary.LittleEndian.PutUint16(hdr[2:4], 12)
		client.Write(hdr)
		client.Write(make([]byte, 12))
	}()

	f, err := readCharLinkFrame(server)
	if err != nil {
		t.Fatalf("readCharLinkFrame: %v", err)
	}
	if f.Opcode != constants.OpAddBan {
		t.Errorf("opcode = 0x%04x", f.Opcode)
	}
	if len(f.Body) != 12 {
		t.Errorf("body length = %d, want 12", len(f.Body))
	}
}
