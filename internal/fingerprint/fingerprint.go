// Package fingerprint computes stable content digests used as render cache
// keys and as the "did anything change" test.
//
// Equal content always yields an equal fingerprint. Text is normalized to
// Unicode NFC before hashing so that visually identical edits produced by
// different editors do not defeat change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"cvforge/internal/errors"
)

// Sum returns the hex-encoded SHA-256 digest of content after NFC
// normalization. Content must be valid UTF-8; anything else is an input
// error and no digest is produced.
func Sum(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", errors.NewInputError("content is not valid UTF-8", nil)
	}
	h := sha256.Sum256(norm.NFC.Bytes(content))
	return hex.EncodeToString(h[:]), nil
}

// SumString is a convenience wrapper around Sum for string content.
func SumString(content string) (string, error) {
	return Sum([]byte(content))
}
