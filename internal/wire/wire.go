package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version     byte = 1
	kindEntry   byte = 1
	kindMarker  byte = 2
	kindCounter byte = 3

	hdrLen  = 4 + 1 + 1
	maxTags = 0xFFFF
)

var (
	ErrCorrupt = errors.New("distcache: corrupt record")
	magic4     = [...]byte{'D', 'S', 'T', 'C'}
)

func hasHeader(b []byte, kind byte) bool {
	return len(b) >= hdrLen && bytes.Equal(b[:4], magic4[:]) && b[4] == version && b[5] == kind
}

func writeHeader(buf *bytes.Buffer, kind byte) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)
}

// Entry is a cached value with its creation time and tag back-references.
// CreatedAt is unix nanoseconds.
type Entry struct {
	CreatedAt int64
	Tags      []string
	Payload   []byte
}

// Entry:
//
//	magic(4) | ver(1) | kind(1=entry) | createdAt(i64 be) | ntags(u16 be)
//	tagLen(u16 be) | tag(tagLen) * ntags | vlen(u32 be) | payload(vlen)
func EncodeEntry(e Entry) ([]byte, error) {
	if len(e.Tags) > maxTags {
		return nil, fmt.Errorf("distcache: too many tags: %d", len(e.Tags))
	}
	total := hdrLen + 8 + 2 + 4 + len(e.Payload)
	for _, t := range e.Tags {
		if l := len(t); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("distcache: invalid tag length %d", l)
		}
		total += 2 + len(t)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	writeHeader(&buf, kindEntry)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.CreatedAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])
	for _, t := range e.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(t)))
		buf.Write(u2[:])
		buf.WriteString(t)
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// DecodeEntry parses an entry. Payload aliases b.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < hdrLen+8+2+4 || !hasHeader(b, kindEntry) {
		return Entry{}, ErrCorrupt
	}
	off := hdrLen

	var e Entry
	e.CreatedAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if n > 0 {
		// each tag needs at least 3 bytes; bounds the allocation below
		if n*3 > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		e.Tags = make([]string, 0, n)
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Entry{}, ErrCorrupt
		}
		tl := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tl == 0 || tl > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		e.Tags = append(e.Tags, string(b[off:off+tl]))
		off += tl
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off { // strict framing: no trailing bytes
		return Entry{}, ErrCorrupt
	}
	e.Payload = b[off : off+vlen]
	return e, nil
}

// Marker: magic(4) | ver(1) | kind(2=marker) | createdAt(i64 be)
func EncodeMarker(createdAt int64) []byte {
	b := make([]byte, hdrLen+8)
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindMarker
	binary.BigEndian.PutUint64(b[hdrLen:], uint64(createdAt))
	return b
}

func DecodeMarker(b []byte) (int64, error) {
	if len(b) != hdrLen+8 || !hasHeader(b, kindMarker) {
		return 0, ErrCorrupt
	}
	return int64(binary.BigEndian.Uint64(b[hdrLen:])), nil
}

// Counter is a fixed-window attempt counter. ExpiresAt is unix nanoseconds.
type Counter struct {
	Attempts    uint32
	MaxAttempts uint32
	ExpiresAt   int64
}

// Counter: magic(4) | ver(1) | kind(3=counter) | attempts(u32 be) | max(u32 be) | expiresAt(i64 be)
func EncodeCounter(c Counter) []byte {
	b := make([]byte, hdrLen+4+4+8)
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindCounter
	off := hdrLen
	binary.BigEndian.PutUint32(b[off:], c.Attempts)
	off += 4
	binary.BigEndian.PutUint32(b[off:], c.MaxAttempts)
	off += 4
	binary.BigEndian.PutUint64(b[off:], uint64(c.ExpiresAt))
	return b
}

func DecodeCounter(b []byte) (Counter, error) {
	if len(b) != hdrLen+4+4+8 || !hasHeader(b, kindCounter) {
		return Counter{}, ErrCorrupt
	}
	off := hdrLen
	var c Counter
	c.Attempts = binary.BigEndian.Uint32(b[off:])
	off += 4
	c.MaxAttempts = binary.BigEndian.Uint32(b[off:])
	off += 4
	c.ExpiresAt = int64(binary.BigEndian.Uint64(b[off:]))
	return c, nil
}
