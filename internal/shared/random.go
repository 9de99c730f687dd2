package shared

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomHex returns n random bytes hex-encoded (2n characters).
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// RandomDigits returns n random decimal digits.
func RandomDigits(n int) (string, error) {
	return randomFrom("0123456789", n)
}

// RandomUpper returns n random characters from [A-Z0-9].
func RandomUpper(n int) string {
	s, _ := randomFrom(upperAlnum, n)
	return s
}

func randomFrom(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[v.Int64()]
	}
	return string(out), nil
}
