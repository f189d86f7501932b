// Package codec implements the wire codec spoken by the game server:
// a Base64-alphabet substitution cipher over GBK-encoded payloads, wrapped
// in a single-element MessagePack array with a dynamic 4-byte header.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Separator delimits the seq-no, command text and account fields inside the
// plaintext payload. The game server matches it literally.
const Separator = "12345*-*12345"

// encryptMap replaces each Base64 character with a fixed three-character
// token (two printable characters plus a trailing comma). The table comes
// from the game client's Lua source and must not change; + / = pass through.
var encryptMap = map[byte]string{
	'A': "f4,", 'B': "Cb,", 'C': "cK,", 'D': "2W,", 'E': "cj,", 'F': "pF,",
	'G': "Ve,", 'H': "D2,", 'I': "Au,", 'J': "DT,", 'K': "XC,", 'L': "PW,",
	'M': "qL,", 'N': "23,", 'O': "A2,", 'P': "is,", 'Q': "vd,", 'R': "gZ,",
	'S': "3C,", 'T': "de,", 'U': "u2,", 'V': "es,", 'W': "j6,", 'X': "NR,",
	'Y': "Qi,", 'Z': "Pf,", 'a': "Lq,", 'b': "vt,", 'c': "dc,", 'd': "mP,",
	'e': "ET,", 'f': "aW,", 'g': "JA,", 'h': "Uc,", 'i': "hY,", 'j': "ab,",
	'k': "Yx,", 'l': "P8,", 'm': "DG,", 'n': "Hu,", 'o': "m9,", 'p': "Sw,",
	'q': "0W,", 'r': "fN,", 's': "j1,", 't': "nB,", 'u': "Aa,", 'v': "My,",
	'w': "Cx,", 'x': "S9,", 'y': "xi,", 'z': "CO,", '0': "q6,", '1': "VP,",
	'2': "Zu,", '3': "Iv,", '4': "yP,", '5': "6D,", '6': "wd,", '7': "7R,",
	'8': "9v,", '9': "Wa,",
}

var decryptMap = func() map[string]byte {
	m := make(map[string]byte, len(encryptMap))
	for c, token := range encryptMap {
		m[token] = c
	}
	return m
}()

// Encrypt turns a plaintext payload into the ciphertext carried on the wire:
// GBK bytes, standard Base64, then per-character token substitution.
func Encrypt(s string) (string, error) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("gbk encode: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString([]byte(gbk))

	var sb strings.Builder
	sb.Grow(len(b64) * 3)
	for i := 0; i < len(b64); i++ {
		if token, ok := encryptMap[b64[i]]; ok {
			sb.WriteString(token)
		} else {
			sb.WriteByte(b64[i])
		}
	}
	return sb.String(), nil
}

// Decrypt reverses Encrypt. Tokens are self-delimiting (every substitution
// consumes exactly three ciphertext bytes), so a single left-to-right walk
// recovers the Base64 text; unknown bytes pass through unchanged.
func Decrypt(s string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(s) / 3)
	for i := 0; i < len(s); {
		if i+3 <= len(s) {
			if c, ok := decryptMap[s[i:i+3]]; ok {
				sb.WriteByte(c)
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
		i++
	}

	b64 := sb.String()
	// The server strips Base64 padding; restore it before decoding.
	if m := len(b64) % 4; m != 0 {
		b64 += strings.Repeat("=", 4-m)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	plain, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: gbk decode: %v", ErrDecode, err)
	}
	return string(plain), nil
}
