package pickup

import (
	"crypto/rand"
	"fmt"
)

// Alphabet omits 0, 1, O and I so codes can be read out over the phone.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const ReferenceLength = 10

// NewReference returns a random cash-pickup code. Uniqueness is enforced by
// the payout store, callers retry on collision.
func NewReference() (string, error) {
	buf := make([]byte, ReferenceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	// len(Alphabet) is 32, so masking the low 5 bits keeps the draw uniform.
	for i, b := range buf {
		buf[i] = Alphabet[b&31]
	}
	return string(buf), nil
}

// Instructions is shown to the recipient next to the reference code.
func Instructions(provider string) []string {
	return []string{
		fmt.Sprintf("Visit any %s agent location.", provider),
		"Bring a valid government-issued photo ID matching the recipient name.",
		"Provide the reference code to the agent.",
		"Cash is available for collection once the payout is processing.",
	}
}
