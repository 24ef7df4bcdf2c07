package utils

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const confirmationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateConfirmationCode returns a 6-character human-readable code.
// The alphabet omits 0/O/1/I so staff can read codes back over the
// phone without ambiguity.
func GenerateConfirmationCode() string {
	code := make([]byte, 6)
	max := big.NewInt(int64(len(confirmationAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			code[i] = confirmationAlphabet[0]
			continue
		}
		code[i] = confirmationAlphabet[n.Int64()]
	}
	return string(code)
}

// GenerateBookingID returns a new booking identifier.
func GenerateBookingID() string {
	return "BK-" + uuid.New().String()
}
