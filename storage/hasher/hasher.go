package hasher

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/minio/highwayhash"
)

const (
	// MD5, the hash recorded for archives in package records and sent to
	// S3 as Content-MD5.
	MD5 = "md5"

	// HighwayHash-64, a fast keyed hash used for change detection of local
	// files (series manifests) where interoperability does not matter.
	HighwayHash = "hh"
)

var (
	// This key was randomly generated but needs to be consistent between
	// builds, otherwise stored fingerprints stop matching.
	highwayHashKey = [32]byte{
		0x07, 0xd7, 0x50, 0xde, 0x39, 0xc4, 0x4c, 0xae,
		0x47, 0x3b, 0x98, 0x8e, 0x5e, 0xb6, 0x7a, 0x31,
		0xa4, 0xab, 0x6c, 0x0b, 0xda, 0xac, 0x47, 0x71,
		0x2a, 0xfc, 0x01, 0x37, 0x3a, 0x09, 0x81, 0xc8,
	}
)

// A Hasher is an io.Writer that passes data through to dest while hashing
// everything that dest accepted.
type Hasher struct {
	dest   io.Writer
	hash   hash.Hash
	expect []byte
	typ    string
	size   int64
}

func newHash(typ string) (hash.Hash, error) {
	switch typ {
	case HighwayHash:
		hh, _ := highwayhash.New64(highwayHashKey[:])
		return hh, nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("Unknown hash type: %s", typ)
	}
}

// Creates a Hasher of the given type writing through to out. A nil out
// discards the data and only hashes it.
func New(typ string, out io.Writer) (*Hasher, error) {
	h, err := newHash(typ)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &Hasher{
		dest: out,
		hash: h,
		typ:  typ,
	}, nil
}

// Creates a Hasher that can Check() the data against a previously returned
// Hash() string ("md5=<base64>").
func Validator(s string, out io.Writer) (*Hasher, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("Unable to determine hash type.")
	}
	expect, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("Unable to decode hash value: %s", err.Error())
	}
	h, err := New(parts[0], out)
	if err != nil {
		return nil, err
	}
	h.expect = expect
	return h, nil
}

// Hashes data in one call, returning the Hash() string.
func Fingerprint(typ string, data []byte) (string, error) {
	h, err := New(typ, nil)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return h.Hash(), nil
}

// Returns true if the data written matches the Validator() string.
func (h *Hasher) Check() bool {
	return bytes.Equal(h.Sum(), h.expect)
}

// Returns the sum as "type=<raw url base64>", the form Validator accepts.
func (h *Hasher) Hash() string {
	return h.typ + "=" + base64.RawURLEncoding.EncodeToString(h.hash.Sum(nil))
}

// Returns the sum as lower case hex, the form md5sum prints.
func (h *Hasher) Hex() string {
	return hex.EncodeToString(h.hash.Sum(nil))
}

// Returns the raw sum.
func (h *Hasher) Sum() []byte {
	return h.hash.Sum(nil)
}

// Returns the number of bytes hashed so far.
func (h *Hasher) Size() int64 {
	return h.size
}

func (h *Hasher) Write(data []byte) (n int, err error) {
	n, err = h.dest.Write(data)
	h.hash.Write(data[:n])
	h.size += int64(n)
	return
}
