package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []string{
		"112345*-*12345hello12345*-*12345",
		"hello world",
		"1" + Separator + `do local ret={["密码"]="123456",["账号"]="a123456"} return ret end` + Separator,
		`do local ret={序号=7,内容="#Y/登录成功"} return ret end`,
		"充值仙玉:玩家id=10001,数额=8888",
		strings.Repeat("abcDEF012+/=混合内容", 40),
		"",
	}
	for _, in := range cases {
		enc, err := Encrypt(in)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", in, err)
		}
		out, err := Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt of Encrypt(%q): %v", in, err)
		}
		if out != in {
			t.Errorf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestDecryptToleratesStrippedPadding(t *testing.T) {
	enc, err := Encrypt("padfix")
	if err != nil {
		t.Fatal(err)
	}
	trimmed := strings.TrimRight(enc, "=")
	out, err := Decrypt(trimmed)
	if err != nil {
		t.Fatalf("Decrypt without padding: %v", err)
	}
	if out != "padfix" {
		t.Errorf("got %q want %q", out, "padfix")
	}
}

func TestPacketHeader(t *testing.T) {
	cases := []struct {
		length int
		want   [4]byte
	}{
		{376, [4]byte{0x78, 0x01, 0x80, 0xCB}},
		{384, [4]byte{0x80, 0x01, 0x80, 0xCB}},
		{386, [4]byte{0x82, 0x01, 0x80, 0xCB}},
		{512, [4]byte{0x00, 0x01, 0x80, 0xCB}},
		{513, [4]byte{0x01, 0x02, 0x80, 0xCB}},
		{516, [4]byte{0x04, 0x02, 0x80, 0xCB}},
		{768, [4]byte{0x00, 0x03, 0x80, 0xCB}},
		{939, [4]byte{0xAB, 0x03, 0x80, 0xCB}},
	}
	for _, tc := range cases {
		if got := PacketHeader(tc.length); got != tc.want {
			t.Errorf("PacketHeader(%d) = % x, want % x", tc.length, got, tc.want)
		}
	}
}

func TestEncodeFrameLoginShape(t *testing.T) {
	body := `do local ret={["密码"]="123456",["账号"]="a123456"} return ret end`
	frame, err := EncodeFrame(1, body, "a123456")
	if err != nil {
		t.Fatal(err)
	}
	if !ValidSignature(frame) {
		t.Fatalf("frame header % x lacks signature", frame[:4])
	}
	if hdr := PacketHeader(len(frame) - HeaderSize); !bytes.Equal(frame[:4], hdr[:]) {
		t.Errorf("header % x, want % x for body length %d", frame[:4], hdr, len(frame)-HeaderSize)
	}

	plain, err := DecodeBody(frame[HeaderSize:])
	if err != nil {
		t.Fatal(err)
	}
	// Login payload: seq 1, the Lua body, and no trailing account field.
	want := "1" + Separator + body + Separator
	if plain != want {
		t.Errorf("decrypted payload %q, want %q", plain, want)
	}
}

func TestEncodeFrameAppendsAccount(t *testing.T) {
	frame, err := EncodeFrame(6, `do local ret={["文本"]="发送广播",["数据"]="hi"} return ret end`, "a123456")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := DecodeBody(frame[HeaderSize:])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(plain, Separator+"a123456") {
		t.Errorf("payload %q missing account suffix", plain)
	}
	if !strings.HasPrefix(plain, "6"+Separator) {
		t.Errorf("payload %q missing seq prefix", plain)
	}
}

func mustFrame(t *testing.T, seqNo int, body, account string) []byte {
	t.Helper()
	frame, err := EncodeFrame(seqNo, body, account)
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestFramerEmitsSingleFrame(t *testing.T) {
	frame := mustFrame(t, 2, "ping", "a123456")

	var f Framer
	f.Feed(frame)
	cipher, err := f.Next()
	if err != nil {
		t.Fatal(err)
	}
	plain, err := Decrypt(cipher)
	if err != nil {
		t.Fatal(err)
	}
	if want := BuildPayload(2, "ping", "a123456"); plain != want {
		t.Errorf("got %q want %q", plain, want)
	}
	if _, err := f.Next(); err != ErrNeedMore {
		t.Errorf("drained framer returned %v, want ErrNeedMore", err)
	}
	if f.Pending() != 0 {
		t.Errorf("pending %d bytes after drain", f.Pending())
	}
}

func TestFramerResyncAfterJunk(t *testing.T) {
	frame := mustFrame(t, 3, "resync", "a123456")

	// Junk chosen so no 4-byte alignment matches the 0x80 0xCB signature.
	junk := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}

	var f Framer
	f.Feed(junk)
	f.Feed(frame)

	cipher, err := f.Next()
	if err != nil {
		t.Fatalf("Next after junk: %v", err)
	}
	plain, err := Decrypt(cipher)
	if err != nil {
		t.Fatal(err)
	}
	if want := BuildPayload(3, "resync", "a123456"); plain != want {
		t.Errorf("got %q want %q", plain, want)
	}
	if _, err := f.Next(); err != ErrNeedMore {
		t.Errorf("expected no spurious frame, got %v", err)
	}
}

func TestFramerByteAtATime(t *testing.T) {
	frame := mustFrame(t, 7, "incremental", "a123456")

	var f Framer
	for i := 0; i < len(frame)-1; i++ {
		f.Feed(frame[i : i+1])
		if _, err := f.Next(); err != ErrNeedMore {
			t.Fatalf("frame emitted after %d of %d bytes (err=%v)", i+1, len(frame), err)
		}
	}
	f.Feed(frame[len(frame)-1:])
	cipher, err := f.Next()
	if err != nil {
		t.Fatalf("Next on complete frame: %v", err)
	}
	if cipher == "" {
		t.Fatal("empty ciphertext")
	}

	// The length search is a binary search plus one whole-buffer probe.
	bodyLen := len(frame) - HeaderSize
	bound := 2
	for 1<<bound < bodyLen {
		bound++
	}
	if f.probes > bound+2 {
		t.Errorf("length discovery used %d probes for %d-byte body, want <= %d", f.probes, bodyLen, bound+2)
	}
}

func TestFramerBackToBackFrames(t *testing.T) {
	a := mustFrame(t, 2, "first", "a123456")
	b := mustFrame(t, 2, "second", "a123456")

	var f Framer
	f.Feed(append(append([]byte{}, a...), b...))

	for _, want := range []string{"first", "second"} {
		cipher, err := f.Next()
		if err != nil {
			t.Fatalf("Next(%q): %v", want, err)
		}
		plain, err := Decrypt(cipher)
		if err != nil {
			t.Fatal(err)
		}
		if plain != BuildPayload(2, want, "a123456") {
			t.Errorf("got %q want payload for %q", plain, want)
		}
	}
}

func TestEnvelopeTruncationNeedsMore(t *testing.T) {
	frame := mustFrame(t, 9, strings.Repeat("cdk", 50), "a123456")

	var f Framer
	f.Feed(frame[:len(frame)/2])
	if _, err := f.Next(); err != ErrNeedMore {
		t.Fatalf("half frame returned %v, want ErrNeedMore", err)
	}
	f.Feed(frame[len(frame)/2:])
	if _, err := f.Next(); err != nil {
		t.Fatalf("complete frame returned %v", err)
	}
}

func TestMsgpackEnvelopeIsSingleElementArray(t *testing.T) {
	frame := mustFrame(t, 1, "x", "")
	var envelope []string
	if err := msgpack.Unmarshal(frame[HeaderSize:], &envelope); err != nil {
		t.Fatal(err)
	}
	if len(envelope) != 1 {
		t.Fatalf("envelope has %d elements, want 1", len(envelope))
	}
}
