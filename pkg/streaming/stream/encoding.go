package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Canonical encoding names.
const (
	EncodingUTF8    = "utf8"
	EncodingLatin1  = "latin1"
	EncodingUTF16LE = "utf16le"
	EncodingHex     = "hex"
	EncodingBase64  = "base64"
)

var encodingAliases = map[string]string{
	"utf8":       EncodingUTF8,
	"utf-8":      EncodingUTF8,
	"latin1":     EncodingLatin1,
	"binary":     EncodingLatin1,
	"iso-8859-1": EncodingLatin1,
	"utf16le":    EncodingUTF16LE,
	"utf-16le":   EncodingUTF16LE,
	"ucs2":       EncodingUTF16LE,
	"ucs-2":      EncodingUTF16LE,
	"hex":        EncodingHex,
	"base64":     EncodingBase64,
}

// NormalizeEncoding returns the canonical name for enc or ErrUnknownEncoding.
func NormalizeEncoding(enc string) (string, error) {
	return normalizeEncoding(enc)
}

func normalizeEncoding(enc string) (string, error) {
	if name, ok := encodingAliases[strings.ToLower(enc)]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
}

func textEncoding(name string) encoding.Encoding {
	switch name {
	case EncodingLatin1:
		return charmap.ISO8859_1
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF8
}

// encodeString converts s to bytes the way a writable side does for string
// chunks.
func encodeString(s, enc string) ([]byte, error) {
	name, err := normalizeEncoding(enc)
	if err != nil {
		return nil, err
	}
	switch name {
	case EncodingUTF8:
		return []byte(s), nil
	case EncodingHex:
		return hex.DecodeString(s)
	case EncodingBase64:
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b, nil
		}
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	e := encoding.ReplaceUnsupported(textEncoding(name).NewEncoder())
	return e.Bytes([]byte(s))
}

// decoder turns a byte stream into text, holding back incomplete
// multi-byte sequences until the next Write.
type decoder interface {
	Write(b []byte) string
	End() string
}

func newDecoder(enc string) (decoder, string, error) {
	name, err := normalizeEncoding(enc)
	if err != nil {
		return nil, "", err
	}
	switch name {
	case EncodingHex:
		return hexDecoder{}, name, nil
	case EncodingBase64:
		return &base64Decoder{}, name, nil
	}
	return &textDecoder{t: textEncoding(name).NewDecoder()}, name, nil
}

type textDecoder struct {
	t       transform.Transformer
	pending []byte
	buf     [4096]byte
}

func (d *textDecoder) Write(b []byte) string { return d.run(b, false) }

func (d *textDecoder) End() string {
	s := d.run(nil, true)
	d.t.Reset()
	return s
}

func (d *textDecoder) run(b []byte, atEOF bool) string {
	src := append(d.pending, b...)
	d.pending = nil
	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.buf[:], src, atEOF)
		out.Write(d.buf[:nDst])
		src = src[nSrc:]
		if err == transform.ErrShortDst {
			continue
		}
		if err == transform.ErrShortSrc {
			d.pending = bytes.Clone(src)
		}
		return out.String()
	}
}

type hexDecoder struct{}

func (hexDecoder) Write(b []byte) string { return hex.EncodeToString(b) }
func (hexDecoder) End() string           { return "" }

type base64Decoder struct {
	pending []byte
}

func (d *base64Decoder) Write(b []byte) string {
	src := append(d.pending, b...)
	n := len(src) - len(src)%3
	d.pending = bytes.Clone(src[n:])
	return base64.StdEncoding.EncodeToString(src[:n])
}

func (d *base64Decoder) End() string {
	s := base64.StdEncoding.EncodeToString(d.pending)
	d.pending = nil
	return s
}
