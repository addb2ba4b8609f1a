package session

import "crypto/subtle"

// stateMatches compares the callback state with the one persisted when the
// login started. Empty values never match.
func stateMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
