package security

import (
	"crypto/rand"
	"io"
	"math/big"
)

// DefaultOTPLength is the number of digits in a confirmation code when none is configured.
const DefaultOTPLength = 6

var ten = big.NewInt(10)

// GenerateNumericOTP returns a numeric code of exactly length digits (leading zeros kept).
// Each digit is drawn uniformly from crypto/rand.
func GenerateNumericOTP(length int) (string, error) {
	return generateNumericOTP(rand.Reader, length)
}

func generateNumericOTP(r io.Reader, length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	s := make([]byte, length)
	for i := range s {
		n, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}
