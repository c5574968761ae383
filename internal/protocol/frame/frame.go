package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderLen is the fixed length+opcode prefix of every datagram.
	HeaderLen = 4
	// MaxLen bounds a single packet; the length field is 16 bits but no Z21 packet
	// comes close to that.
	MaxLen = 1472
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrLengthTooSmall  = errors.New("frame: length smaller than header")
	ErrLengthMismatch  = errors.New("frame: length does not match buffer")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrChecksum        = errors.New("frame: checksum mismatch")
	ErrNoChecksum      = errors.New("frame: payload has no checksum byte")
)

// Header is the fixed wire header. Both fields are little endian on the wire.
type Header struct {
	Length uint16
	Opcode uint16
}

// Frame is one complete packet. Payload excludes the header and, for the
// X-bus family, still carries the trailing checksum byte.
type Frame struct {
	Header  Header
	Payload []byte
}

// DecodeHeader reads the header without checking it against the buffer.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	return Header{
		Length: binary.LittleEndian.Uint16(b[0:2]),
		Opcode: binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// Decode parses exactly one packet. The declared length must match len(b).
func Decode(b []byte) (Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	if h.Length < HeaderLen {
		return Frame{}, ErrLengthTooSmall
	}
	if int(h.Length) != len(b) {
		return Frame{}, fmt.Errorf("%w: declared=%d actual=%d", ErrLengthMismatch, h.Length, len(b))
	}
	payload := make([]byte, len(b)-HeaderLen)
	copy(payload, b[HeaderLen:])
	return Frame{Header: h, Payload: payload}, nil
}

// Split cuts a datagram into its packets. A Z21 client may concatenate several
// packets into one datagram; each one carries its own length prefix.
func Split(datagram []byte) ([][]byte, error) {
	out := make([][]byte, 0, 1)
	for i := 0; i < len(datagram); {
		h, err := DecodeHeader(datagram[i:])
		if err != nil {
			return nil, err
		}
		if h.Length < HeaderLen {
			return nil, ErrLengthTooSmall
		}
		end := i + int(h.Length)
		if end > len(datagram) {
			return nil, fmt.Errorf("%w: declared=%d remaining=%d", ErrLengthMismatch, h.Length, len(datagram)-i)
		}
		out = append(out, datagram[i:end])
		i = end
	}
	return out, nil
}

// Encode builds a packet: length, opcode, payload and, when withChecksum is
// set, one trailing byte holding the XOR of the payload.
func Encode(opcode uint16, payload []byte, withChecksum bool) ([]byte, error) {
	n := HeaderLen + len(payload)
	if withChecksum {
		n++
	}
	if n > MaxLen {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, n)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(n))
	binary.LittleEndian.PutUint16(buf[2:4], opcode)
	copy(buf[HeaderLen:], payload)
	if withChecksum {
		buf[n-1] = Checksum(payload)
	}
	return buf, nil
}

// Checksum is the XOR of every byte in p.
func Checksum(p []byte) byte {
	var x byte
	for _, b := range p {
		x ^= b
	}
	return x
}

// VerifyChecksum checks that the last payload byte is the XOR of the others
// and returns the payload without it.
func VerifyChecksum(payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, ErrNoChecksum
	}
	body := payload[:len(payload)-1]
	if Checksum(body) != payload[len(payload)-1] {
		return nil, ErrChecksum
	}
	return body, nil
}
