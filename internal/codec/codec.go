package codec

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrNeedMore signals an incomplete frame; feed more bytes and retry.
	ErrNeedMore = errors.New("codec: need more data")
	// ErrBadHeader signals a header signature mismatch at the buffer start.
	ErrBadHeader = errors.New("codec: bad frame header")
	// ErrDecode signals an unrecoverable payload decode failure.
	ErrDecode = errors.New("codec: decode failed")
)

// BuildPayload assembles the plaintext payload for a command. Login frames
// (seqNo 1) carry no trailing account field.
func BuildPayload(seqNo int, body, account string) string {
	if seqNo == 1 {
		return fmt.Sprintf("%d%s%s%s", seqNo, Separator, body, Separator)
	}
	return fmt.Sprintf("%d%s%s%s%s", seqNo, Separator, body, Separator, account)
}

// EncodeFrame produces the complete wire frame for a command: plaintext
// payload, substitution cipher, MessagePack single-element array envelope,
// dynamic 4-byte header.
func EncodeFrame(seqNo int, body, account string) ([]byte, error) {
	cipher, err := Encrypt(BuildPayload(seqNo, body, account))
	if err != nil {
		return nil, err
	}
	return EncodeRaw(cipher)
}

// EncodeRaw wraps an already-encrypted payload in the MessagePack envelope
// and dynamic header. Server responses on the wire have this exact shape.
func EncodeRaw(cipher string) ([]byte, error) {
	packed, err := msgpack.Marshal([]string{cipher})
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	hdr := PacketHeader(len(packed))
	frame := make([]byte, 0, HeaderSize+len(packed))
	frame = append(frame, hdr[:]...)
	frame = append(frame, packed...)
	return frame, nil
}

// DecodeBody unwraps a MessagePack body (header already stripped) and
// decrypts the ciphertext it carries. The body must contain the complete
// MessagePack object and nothing else.
func DecodeBody(body []byte) (string, error) {
	cipher, err := unwrapEnvelope(body)
	if err != nil {
		return "", err
	}
	return Decrypt(cipher)
}

// unwrapEnvelope decodes the single-element array envelope and returns the
// ciphertext element.
func unwrapEnvelope(body []byte) (string, error) {
	var envelope []string
	if err := msgpack.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("%w: msgpack: %v", ErrDecode, err)
	}
	if len(envelope) == 0 {
		return "", fmt.Errorf("%w: empty envelope", ErrDecode)
	}
	return envelope[0], nil
}
