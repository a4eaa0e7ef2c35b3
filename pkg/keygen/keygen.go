package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// WidgetKeyLength is the length of keys produced by WidgetKey. 16 base62
// characters carry just over 95 bits of entropy.
const WidgetKeyLength = 16

// LicenseKey returns a 32-character lowercase hex token backed by 128 bits of
// cryptographically secure randomness. Uniqueness is probabilistic; the store
// keeps a unique index on the column and issuance retries on collision.
func LicenseKey() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// WidgetKey returns a 16-character mixed-case base62 token, chosen for
// URL-friendliness over maximal entropy density.
func WidgetKey() string {
	max := big.NewInt(int64(len(base62Alphabet)))
	out := make([]byte, WidgetKeyLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = base62Alphabet[n.Int64()]
	}
	return string(out)
}
