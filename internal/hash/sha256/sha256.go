// Package sha256 checksums screenshots before they are recorded.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// Hasher renders SHA-256 digests as lowercase hex.
type Hasher struct{}

var _ crawler.Hasher = Hasher{}

// New returns a Hasher.
func New() Hasher { return Hasher{} }

// Hash never fails; the error satisfies crawler.Hasher.
func (Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
