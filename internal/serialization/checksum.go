package serialization

import (
	"crypto/sha256"
	"fmt"
)

// ComputeChecksum returns the SHA-256 digest of the data section of a .dp
// file, i.e. every tensor payload including alignment padding.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares the digest of the data section read from disk
// with the one stored in the fixed header.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return fmt.Errorf("%w: header has %x..., data hashes to %x...", ErrChecksumMismatch, stored[:4], computed[:4])
	}
	return nil
}
