package codec

// Header layout: two length-derived bytes followed by the fixed signature
// 0x80 0xCB. The first two bytes are not a conventional size field; the
// formulas below were derived from observed traffic and the client's Lua
// source and reproduce it exactly.
const (
	HeaderSize = 4

	sigByte0 = 0x80
	sigByte1 = 0xCB
)

// PacketHeader computes the 4-byte header for a MessagePack body of length l.
//
//	l <= 512: hdr0 = (0x80 + (l-384)) mod 256, hdr1 = 0x01
//	l  > 512: off = l-768; hdr0 = off mod 256, hdr1 = 3 + off/256
//
// The off arithmetic uses floor division, so lengths in (512, 768) wrap to
// hdr1 = 2 with a positive hdr0. Verified against live traffic at l=516.
func PacketHeader(l int) [HeaderSize]byte {
	var hdr0, hdr1 byte
	if l > 512 {
		off := l - 768
		segment, rem := off/256, off%256
		if rem < 0 {
			rem += 256
			segment--
		}
		hdr0 = byte(rem)
		hdr1 = byte(3 + segment)
	} else {
		hdr0 = byte((0x80 + (l - 384)) & 0xFF)
		hdr1 = 0x01
	}
	return [HeaderSize]byte{hdr0, hdr1, sigByte0, sigByte1}
}

// ValidSignature reports whether b starts a plausible frame. Only bytes 2..3
// are checked; the first two vary with payload size and the server-to-client
// direction is not re-derived.
func ValidSignature(b []byte) bool {
	return len(b) >= HeaderSize && b[2] == sigByte0 && b[3] == sigByte1
}
