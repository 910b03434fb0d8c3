package iluminize

import "fmt"

// Frame layout:
//
//	[0]     0x55 start marker
//	[1..3]  device address
//	[4]     command class
//	[5]     sub-opcode
//	[6..8]  payload
//	[9]     checksum (sum of [4..8] mod 256)
//	[10..11] 0xAA 0xAA end marker
const (
	FrameLen = 12

	frameStart   = 0x55
	frameEnd     = 0xAA
	offClass     = 4
	offSub       = 5
	offPayload   = 6
	offChecksum  = FrameLen - 3
	payloadLen   = 3
	whitePrefix0 = 0x08
	whitePrefix1 = 0x4B
)

// Command classes and sub-opcodes.
const (
	ClassRGB   byte = 0xF2
	ClassWhite byte = 0x00
	SubSet     byte = 0x01
)

// Frame is a checksummed command frame.
type Frame [FrameLen]byte

// Encode builds a frame for addr and writes its checksum.
func Encode(addr Address, class, sub byte, payload [payloadLen]byte) Frame {
	b := []byte{
		frameStart,
		addr[0], addr[1], addr[2],
		class, sub,
		payload[0], payload[1], payload[2],
		0x00,
		frameEnd, frameEnd,
	}
	injectChecksum(b)

	var f Frame
	copy(f[:], b)
	return f
}

// RGBFrame builds a colour command.
func RGBFrame(addr Address, red, green, blue uint8) Frame {
	return Encode(addr, ClassRGB, SubSet, [payloadLen]byte{red, green, blue})
}

// WhiteFrame builds a white channel command. The first two payload bytes are
// fixed; the third carries the level.
func WhiteFrame(addr Address, white uint8) Frame {
	return Encode(addr, ClassWhite, SubSet, [payloadLen]byte{whitePrefix0, whitePrefix1, white})
}

// Checksum returns the 8-bit sum of b[4:len(b)-3].
func Checksum(b []byte) byte {
	var sum byte
	for i := offClass; i < len(b)-3; i++ {
		sum += b[i]
	}
	return sum
}

// injectChecksum writes the checksum into b in place. A buffer of the wrong
// size is a programming error.
func injectChecksum(b []byte) {
	if len(b) != FrameLen {
		panic(fmt.Sprintf("iluminize: frame must be %d bytes, got %d", FrameLen, len(b)))
	}
	b[offChecksum] = Checksum(b)
}

// Address returns the target address.
func (f Frame) Address() Address {
	return Address{f[1], f[2], f[3]}
}

// Class returns the command class byte.
func (f Frame) Class() byte { return f[offClass] }

// Sub returns the sub-command byte.
func (f Frame) Sub() byte { return f[offSub] }

// Payload returns the three payload bytes.
func (f Frame) Payload() [payloadLen]byte {
	return [payloadLen]byte{f[offPayload], f[offPayload+1], f[offPayload+2]}
}

// Valid reports whether markers and checksum are intact.
func (f Frame) Valid() bool {
	return f[0] == frameStart && f[FrameLen-2] == frameEnd && f[FrameLen-1] == frameEnd &&
		f[offChecksum] == Checksum(f[:])
}

// Doubled returns the wire payload: the frame sent twice back to back.
// The appliance never acknowledges, so repetition is the only delivery aid.
func (f Frame) Doubled() []byte {
	out := make([]byte, 0, 2*FrameLen)
	out = append(out, f[:]...)
	return append(out, f[:]...)
}

// String renders the frame as spaced hex, matching debug logs.
func (f Frame) String() string {
	return fmt.Sprintf("% X", f[:])
}

// ParseFrame decodes and verifies a single frame.
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameLen {
		return f, fmt.Errorf("%w: got %d bytes", ErrFrameLength, len(b))
	}
	copy(f[:], b)
	if f[0] != frameStart || f[FrameLen-2] != frameEnd || f[FrameLen-1] != frameEnd {
		return f, fmt.Errorf("%w: %s", ErrFrameMarker, f)
	}
	if want := Checksum(b); f[offChecksum] != want {
		return f, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksum, f[offChecksum], want)
	}
	return f, nil
}
