package auth

import "crypto/subtle"

// constantTimeEqual reports whether a and b are equal without leaking
// timing information proportional to the length of a shared prefix.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
