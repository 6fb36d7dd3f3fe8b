package fstreedb

import (
	"fmt"
	"strconv"
	"strings"
)

// pathSep terminates every segment inside a key.
const pathSep = 0

// Segment identifies a single level of a path. Valid segments are non-empty
// and never contain a zero byte; the root's segment is the only empty one.
type Segment string

func MakeSegment(b []byte) (Segment, error) {
	seg := Segment(b)
	if err := seg.Validate(); err != nil {
		return "", err
	}
	return seg, nil
}

func MustSegment(s string) Segment {
	seg := Segment(s)
	ensure(seg.Validate())
	return seg
}

// Uint64Segment encodes n as decimal digits, which never contain a zero byte.
func Uint64Segment(n uint64) Segment {
	return Segment(strconv.FormatUint(n, 10))
}

func (seg Segment) Uint64() (uint64, error) {
	return strconv.ParseUint(string(seg), 10, 64)
}

func (seg Segment) Validate() error {
	if len(seg) == 0 {
		return fmt.Errorf("empty path segment")
	}
	if i := strings.IndexByte(string(seg), pathSep); i >= 0 {
		return fmt.Errorf("path segment %q contains a zero byte at %d", string(seg), i)
	}
	return nil
}

func (seg Segment) Bytes() []byte {
	return []byte(seg)
}

func (seg Segment) String() string {
	return string(seg)
}

// SplitKey splits a collected key back into its segments. The first segment
// of a well-formed key is the empty root segment.
func SplitKey(key []byte) ([]Segment, error) {
	if len(key) == 0 {
		return nil, dataErrf(key, 0, nil, "empty key")
	}
	if key[len(key)-1] != pathSep {
		return nil, dataErrf(key, len(key)-1, nil, "key is not zero-terminated")
	}
	var segs []Segment
	start := 0
	for i, b := range key {
		if b == pathSep {
			segs = append(segs, Segment(key[start:i]))
			start = i + 1
		}
	}
	if segs[0] != "" {
		return nil, dataErrf(key, 0, nil, "key does not start at root")
	}
	for i, seg := range segs[1:] {
		if seg == "" {
			return nil, dataErrf(key, 0, nil, "empty segment at level %d", i+1)
		}
	}
	return segs, nil
}

// parentKey returns the key of the parent path, or nil for the root key.
func parentKey(key []byte) []byte {
	if len(key) <= 1 {
		return nil
	}
	i := len(key) - 2
	for i >= 0 && key[i] != pathSep {
		i--
	}
	return key[:i+1]
}
