package qgo

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/spaolacci/murmur3"
)

// Names accepted by the HashFunction option.
const (
	HashMurmur3_32  = "murmur3_32"
	HashMurmur3_128 = "murmur3_128"
	HashCRC32       = "crc32"
	HashMD5         = "md5"
)

// hasher streams primitive values into one of the named hash functions and
// finishes as a 32 or 64 bit code. The byte layout is fixed and visible on
// the wire: ints and longs are written big endian, strings as their raw utf8
// bytes. Peers must hash identical byte sequences for assignments to agree.
type hasher struct {
	h     hash.Hash
	fin64 func() int64
}

// hasherForName returns a constructor for the named hash function. Unknown
// names are a startup error.
func hasherForName(name string) (func() *hasher, error) {
	switch name {
	case HashMurmur3_32:
		return func() *hasher { return newHasher32(murmur3.New32()) }, nil
	case HashMurmur3_128:
		return newHasher128, nil
	case HashCRC32:
		return func() *hasher { return newHasher32(crc32.NewIEEE()) }, nil
	case HashMD5:
		return newHasherMD5, nil
	default:
		return nil, fmt.Errorf("unknown hash function %q", name)
	}
}

// 32 bit functions sign extend when read as 64 bits.
func newHasher32(h hash.Hash32) *hasher {
	return &hasher{h: h, fin64: func() int64 { return int64(int32(h.Sum32())) }}
}

// The 128 bit murmur finishes as its first 64 bit half.
func newHasher128() *hasher {
	h := murmur3.New128()
	return &hasher{h: h, fin64: func() int64 { h1, _ := h.Sum128(); return int64(h1) }}
}

// md5 finishes as the first eight digest bytes, big endian.
func newHasherMD5() *hasher {
	h := md5.New()
	return &hasher{h: h, fin64: func() int64 {
		return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
	}}
}

func (h *hasher) putInt(v int32) *hasher {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	h.h.Write(b[:])
	return h
}

func (h *hasher) putLong(v int64) *hasher {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	h.h.Write(b[:])
	return h
}

func (h *hasher) putString(s string) *hasher {
	io.WriteString(h.h, s)
	return h
}

func (h *hasher) asInt64() int64 { return h.fin64() }

func (h *hasher) asInt32() int32 { return int32(h.fin64()) }
