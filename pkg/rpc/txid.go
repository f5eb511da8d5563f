package rpc

import "github.com/google/uuid"

// transactionIDLength is the canonical 8-4-4-4-12 form including dashes.
const transactionIDLength = 36

// NewTransactionID returns a fresh correlator for one request/response
// exchange, in canonical lowercase UUIDv4 form.
func NewTransactionID() string {
	return uuid.NewString()
}

// ValidateTransactionID reports whether id is a well-formed transaction ID:
// 36 characters, dashes at positions 8, 13, 18 and 23, lowercase hex
// everywhere else.
func ValidateTransactionID(id string) bool {
	if len(id) != transactionIDLength {
		return false
	}
	for i := 0; i < transactionIDLength; i++ {
		c := id[i]
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
