package generate

import (
	"crypto/rand"
	"io"
	mrand "math/rand"
)

// Charsets used to construct random strings.
const (
	CharsetCode = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	charset     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
	charsetSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// RandomBytes returns a secure random byte slice of the given length read from
// src.
func RandomBytes(src io.Reader, n int) []byte {
	bs := make([]byte, n)

	if _, err := io.ReadFull(src, bs); err != nil {
		// crypto/rand exhaustion is not recoverable at this level, fall back to
		// a time seeded source rather than failing the operation.
		for i := range bs {
			bs[i] = byte(mrand.Intn(256))
		}
	}

	return bs
}

// RandomString returns a random string of the given length drawn from the full
// charset.
func RandomString(n int) string {
	return fromCharset(charset, n)
}

// RandomStringSafe returns a random string of the given length safe for use in
// URLs and identifiers.
func RandomStringSafe(n int) string {
	return fromCharset(charsetSafe, n)
}

// RandomStringFrom returns a random string of the given length drawn from the
// provided charset.
func RandomStringFrom(charset string, n int) string {
	return fromCharset(charset, n)
}

func fromCharset(cs string, n int) string {
	// Bytes at or above the largest multiple of the charset length are
	// redrawn, reducing them would skew the draw towards the front of the
	// charset.
	limit := 256 - 256%len(cs)

	rs := make([]byte, 0, n)

	for len(rs) < n {
		for _, b := range RandomBytes(rand.Reader, n-len(rs)) {
			if int(b) >= limit {
				continue
			}

			rs = append(rs, cs[int(b)%len(cs)])
		}
	}

	return string(rs)
}
