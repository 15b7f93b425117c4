package objectstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// ChecksumFile returns the hex-encoded BLAKE2b-256 digest of the file at
// path. The download paths in this package (S3Source.Download,
// DirSource.Download) do not call it or VerifyChecksum.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("rapidflow: opening %s for checksum: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("rapidflow: initializing blake2b: %w", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("rapidflow: hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum reports whether the file at path's BLAKE2b-256 digest
// matches want (case-insensitive hex).
func VerifyChecksum(path, want string) (bool, error) {
	got, err := ChecksumFile(path)
	if err != nil {
		return false, err
	}
	return got == normalizeHex(want), nil
}

func normalizeHex(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c = c - 'A' + 'a'
		}
		out = append(out, c)
	}
	return string(out)
}
