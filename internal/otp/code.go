// Package otp holds the pure pieces of the one-time passcode flow: code
// generation, hashing, comparison and the reissue throttle.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// CodeDigits is the length of every generated code.
const CodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// Generator produces numeric codes from a random source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from r, or crypto/rand when r is nil.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

// Generate returns a uniformly distributed, zero-padded 6-digit code.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.rand, codeSpace)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// Hash returns the hex-encoded SHA-256 digest of code.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Matches hashes code and compares it with storedHash in constant time.
func Matches(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(code)), []byte(storedHash)) == 1
}
