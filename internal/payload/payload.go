// Package payload decides the transport representation for artifact content.
// Text files travel as-is; anything that fails the text sniff is base64
// encoded, matching the only representation the remote store's write API
// accepts for non-text payloads. The integrity digest is always computed
// over the original bytes so it survives the transport encoding.
package payload

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"unicode/utf8"

	"shipyard/internal/manifest"
)

// DefaultSniffLen bounds how much of the file the binary sniff inspects.
const DefaultSniffLen = 8192

// Encoder classifies content as text or binary and produces transport bytes.
// The zero value uses the default sniff window and allow-set.
type Encoder struct {
	// SniffLen overrides the sniff window when positive.
	SniffLen int
	// AllowControl extends the set of control bytes accepted in text beyond
	// the defaults (tab, LF, CR, form feed).
	AllowControl []byte
}

// Encode produces the payload for the given content. Total: content that
// cannot be represented as text falls back to binary, never an error.
func (e Encoder) Encode(data []byte) manifest.Payload {
	sum := sha256.Sum256(data)
	p := manifest.Payload{Checksum: hex.EncodeToString(sum[:])}

	if e.isText(data) {
		p.Encoding = manifest.EncodingText
		p.Transport = data
		return p
	}

	p.Encoding = manifest.EncodingBinary
	p.Transport = []byte(base64.StdEncoding.EncodeToString(data))
	return p
}

// Decode reverses the transport encoding, recovering the original bytes.
func Decode(p manifest.Payload) ([]byte, error) {
	if p.Encoding == manifest.EncodingText {
		return p.Transport, nil
	}
	return base64.StdEncoding.DecodeString(string(p.Transport))
}

// isText reports whether data is safe to transport as UTF-8 text. A NUL or
// disallowed control byte inside the sniff window, or invalid UTF-8
// anywhere, forces the binary path.
func (e Encoder) isText(data []byte) bool {
	sniff := e.SniffLen
	if sniff <= 0 {
		sniff = DefaultSniffLen
	}
	if len(data) < sniff {
		sniff = len(data)
	}
	for _, b := range data[:sniff] {
		if b == 0x00 {
			return false
		}
		if b < 0x20 && !e.controlAllowed(b) {
			return false
		}
	}
	return utf8.Valid(data)
}

func (e Encoder) controlAllowed(b byte) bool {
	switch b {
	case '\t', '\n', '\r', '\f':
		return true
	}
	for _, a := range e.AllowControl {
		if b == a {
			return true
		}
	}
	return false
}
