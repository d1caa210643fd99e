// Content digests and canonicalization.
//
// Information Hiding:
// - Hash function choice hidden behind the Digest type
// - Canonicalization pluggable via the Canonicalizer interface

package corpus

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Digest identifies a blob by the hash of its canonicalized content.
// Digests are hex strings, so class ids (which start life as digests)
// order lexicographically.
type Digest = string

// HashContent computes the digest of already-canonicalized content.
// Pure function of the bytes: identical content always hashes identically.
func HashContent(content string) Digest {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

// Canonicalizer normalizes raw content into the canonical form that gets
// hashed and stored. Canonicalization of the design language itself belongs
// to an external tool; implementations here only wrap it.
type Canonicalizer interface {
	// Canonicalize returns the canonical form of content.
	// Malformed input returns a *CanonicalizationError.
	Canonicalize(content string) (string, error)
}

// IdentityCanonicalizer accepts content as-is, rejecting only empty input.
// Use when content arrives pre-canonicalized.
type IdentityCanonicalizer struct{}

// Canonicalize returns the content unchanged.
func (IdentityCanonicalizer) Canonicalize(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", &CanonicalizationError{Reason: "empty content"}
	}
	return content, nil
}

// Verify IdentityCanonicalizer implements Canonicalizer
var _ Canonicalizer = IdentityCanonicalizer{}
