package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainPayload = "dmpsync/payload/v1"
	DomainMint    = "dmpsync/mint/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lower-case hex.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash returns the content hash of a submitted document. Documents
// that differ only in key order, whitespace or Unicode normalization hash
// identically.
func PayloadHash(payload []byte) (string, error) {
	canonical, err := CanonicalizeJSON(payload)
	if err != nil {
		return "", fmt.Errorf("payload hash: %w", err)
	}
	return HashWithDomain(DomainPayload, canonical), nil
}
