package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types used by the server-console protocol.
const (
	typeResponse = 0
	typeCommand  = 2
	typeLogin    = 3
)

// maxPayload caps inbound frames so a corrupt length prefix cannot make us
// allocate unbounded memory.
const maxPayload = 1 << 20

// packet is one frame of the console protocol:
//
//	length:int32 | request_id:int32 | type:int32 | payload\x00 | pad:u8
//
// all little-endian. length counts everything after itself.
type packet struct {
	RequestID int32
	Type      int32
	Payload   string
}

// encode serializes the packet into wire format.
func (p *packet) encode() []byte {
	// request_id + type + payload + NUL + pad
	length := 4 + 4 + len(p.Payload) + 2
	buf := make([]byte, 0, 4+length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.RequestID))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Type))
	buf = append(buf, p.Payload...)
	buf = append(buf, 0, 0)
	return buf
}

// readPacket reads one frame from r.
func readPacket(r io.Reader) (*packet, error) {
	var length int32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length < 10 || length > maxPayload {
		return nil, fmt.Errorf("frame length %d out of range", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	p := &packet{
		RequestID: int32(binary.LittleEndian.Uint32(body[0:4])),
		Type:      int32(binary.LittleEndian.Uint32(body[4:8])),
	}
	payload := body[8:]
	// Strip the NUL terminator and pad byte.
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	p.Payload = string(payload)
	return p, nil
}
