package payload

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard/internal/manifest"
)

func TestEncodeText(t *testing.T) {
	data := []byte("# README\n\nPlain markdown with tabs\tand returns\r\n")
	p := Encoder{}.Encode(data)

	assert.Equal(t, manifest.EncodingText, p.Encoding)
	assert.Equal(t, data, p.Transport, "text travels as-is")
}

func TestEncodeBinary(t *testing.T) {
	t.Run("NUL byte", func(t *testing.T) {
		p := Encoder{}.Encode([]byte{'P', 'K', 0x00, 0x01})
		assert.Equal(t, manifest.EncodingBinary, p.Encoding)
	})
	t.Run("disallowed control byte", func(t *testing.T) {
		p := Encoder{}.Encode([]byte{'a', 0x07, 'b'})
		assert.Equal(t, manifest.EncodingBinary, p.Encoding)
	})
	t.Run("invalid UTF-8", func(t *testing.T) {
		p := Encoder{}.Encode([]byte{0xff, 0xfe, 'x'})
		assert.Equal(t, manifest.EncodingBinary, p.Encoding)
	})
	t.Run("allow-set extension", func(t *testing.T) {
		enc := Encoder{AllowControl: []byte{0x07}}
		p := enc.Encode([]byte{'a', 0x07, 'b'})
		assert.Equal(t, manifest.EncodingText, p.Encoding)
	})
}

func TestEncodeSniffWindow(t *testing.T) {
	// Control byte past the sniff window is not inspected, but the content
	// must still be valid UTF-8 to take the text path.
	data := append(bytes.Repeat([]byte{'a'}, 16), 0x01)
	p := Encoder{SniffLen: 16}.Encode(data)
	assert.Equal(t, manifest.EncodingText, p.Encoding)

	p = Encoder{SniffLen: 32}.Encode(data)
	assert.Equal(t, manifest.EncodingBinary, p.Encoding)
}

func TestRoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte("plain text"),
		{0x00, 0x01, 0x02, 0xff},
		{},
		bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1000),
	}
	for _, in := range inputs {
		p := Encoder{}.Encode(in)
		out, err := Decode(p)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestChecksumOverOriginalBytes(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02}
	p := Encoder{}.Encode(data)
	require.Equal(t, manifest.EncodingBinary, p.Encoding)

	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), p.Checksum,
		"digest covers original bytes, not the base64 transport")
}

func TestChecksumStability(t *testing.T) {
	a := Encoder{}.Encode([]byte("same content"))
	b := Encoder{}.Encode([]byte("same content"))
	c := Encoder{}.Encode([]byte("same content!"))

	assert.Equal(t, a.Checksum, b.Checksum)
	assert.NotEqual(t, a.Checksum, c.Checksum)
	assert.Len(t, a.Checksum, 64, "hex of a 256-bit digest")
}
