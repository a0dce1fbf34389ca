// Package checksum computes content digests for tracked resources.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"
	XXHash = "xxhash"

	DefaultAlgorithm = MD5
)

var algorithms = map[string]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA512: sha512.New,
	XXHash: func() hash.Hash { return xxhash.New() },
}

type (
	Hasher interface {
		Digest(path string) (Sum, error)
	}

	// Sum is the digest of one full read together with the number of bytes read.
	Sum struct {
		Hex    string
		Length int64
	}

	FileHasher struct {
		algorithm string
		newHash   func() hash.Hash
	}
)

var _ Hasher = (*FileHasher)(nil)

func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func New(algorithm string) (*FileHasher, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	algorithm = strings.ToLower(algorithm)

	newHash, ok := algorithms[algorithm]
	if !ok {
		return nil, &DigestError{Algorithm: algorithm, Err: ErrUnsupportedAlgorithm}
	}

	return &FileHasher{
		algorithm: algorithm,
		newHash:   newHash,
	}, nil
}

func (h *FileHasher) Algorithm() string {
	return h.algorithm
}

func (h *FileHasher) Digest(path string) (Sum, error) {
	if h == nil || h.newHash == nil {
		return Sum{}, &DigestError{Path: path, Err: ErrUnsupportedAlgorithm}
	}

	file, err := os.Open(path)
	if err != nil {
		return Sum{}, &IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	return h.digestReader(path, file)
}

func (h *FileHasher) digestReader(path string, r io.Reader) (Sum, error) {
	digest := h.newHash()
	n, err := io.Copy(digest, r)
	if err != nil {
		return Sum{}, &IOError{Op: "read", Path: path, Err: err}
	}

	return Sum{
		Hex:    hex.EncodeToString(digest.Sum(nil)),
		Length: n,
	}, nil
}
