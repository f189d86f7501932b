package codec

import (
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Framer splits the raw TCP byte stream into decoded ciphertext payloads.
// The wire carries no usable length field, so the MessagePack body length is
// discovered by probing: binary search for the smallest prefix that decodes
// as a complete object. Feed and Next must be called from a single goroutine
// (the connection read loop).
type Framer struct {
	buf []byte

	// probes counts MessagePack decode attempts for the frame most recently
	// returned by Next; it bounds the length search.
	probes int
}

// Feed appends a received chunk to the rolling buffer.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Pending returns the number of buffered, not yet consumed bytes.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Next extracts the next complete frame and returns its ciphertext payload.
// It returns ErrNeedMore when the buffer holds no complete frame. Corrupt
// input never stalls the stream: a signature mismatch or an undecodable body
// advances the buffer by one byte and the scan resumes.
func (f *Framer) Next() (string, error) {
	for {
		if len(f.buf) < HeaderSize {
			return "", ErrNeedMore
		}
		if !ValidSignature(f.buf) {
			f.buf = f.buf[1:]
			continue
		}

		body := f.buf[HeaderSize:]
		if len(body) == 0 {
			return "", ErrNeedMore
		}

		n, err := f.consumedLength(body)
		if errors.Is(err, ErrNeedMore) {
			return "", ErrNeedMore
		}
		if err != nil {
			f.buf = f.buf[1:]
			continue
		}

		cipher, err := unwrapEnvelope(body[:n])
		f.buf = f.buf[HeaderSize+n:]
		if err != nil {
			return "", err
		}
		return cipher, nil
	}
}

// consumedLength finds how many bytes of body the next MessagePack object
// occupies. The library does not report consumed bytes on a partial-buffer
// decode, so the smallest decodable prefix is located by binary search;
// decodability is monotone in the prefix length for this stream.
func (f *Framer) consumedLength(body []byte) (int, error) {
	f.probes = 0

	if err := f.tryDecode(body); err != nil {
		if isShortData(err) {
			return 0, ErrNeedMore
		}
		return 0, err
	}

	low, high := 1, len(body)
	result := len(body)
	for low <= high {
		mid := (low + high) / 2
		if f.tryDecode(body[:mid]) == nil {
			result = mid
			high = mid - 1
		} else {
			low = mid + 1
		}
	}
	return result, nil
}

func (f *Framer) tryDecode(b []byte) error {
	f.probes++
	var v interface{}
	return msgpack.Unmarshal(b, &v)
}

func isShortData(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
