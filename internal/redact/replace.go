package redact

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// hashPlaceholder renders [REDACTED:<category>:<hash8>]. The hash is stable
// for a given category and value, so repeated values stay correlated.
func hashPlaceholder(category, content string) string {
	sum := sha256.Sum256([]byte(category + ":" + content))
	return fmt.Sprintf("[REDACTED:%s:%s]", category, hex.EncodeToString(sum[:4]))
}

// fakeValue returns a synthetic value for category, seeded from the matched
// text so the same input always maps to the same fake. ok is false for
// categories without a generator.
func fakeValue(category, content string, salt uint64) (string, bool) {
	kind := strings.TrimPrefix(category, "custom:")

	sum := sha256.Sum256([]byte(kind + ":" + content))
	seed := binary.BigEndian.Uint64(sum[:8]) ^ salt
	if seed == 0 {
		// gofakeit treats a zero seed as a request for a random one.
		seed = 1
	}
	faker := gofakeit.New(seed)

	switch kind {
	case "name", "person":
		return faker.Name(), true
	case "address", "location":
		return faker.Address().Street, true
	case "phone":
		return faker.PhoneFormatted(), true
	case "email":
		return faker.Email(), true
	default:
		return "", false
	}
}
