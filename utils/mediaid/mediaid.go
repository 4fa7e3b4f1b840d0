package mediaid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDLength is the canonical file id length in hex characters.
const IDLength = 16

const jobPrefix = "job_"

var (
	entropyOnce sync.Once
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// FromDigest derives a file id from a hex content digest. The id is the
// digest truncated to IDLength characters, lowercased; identical content
// always maps to the same id.
func FromDigest(digest string) string {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if len(digest) < IDLength {
		return ""
	}
	return digest[:IDLength]
}

// IsValid reports whether the string is a well-formed file id.
func IsValid(value string) bool {
	if len(value) != IDLength {
		return false
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// NewJobID returns a job_* ULID string for migration jobs.
func NewJobID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), newEntropy())
	return jobPrefix + strings.ToLower(id.String())
}

// IsValidJobID reports whether the string is a job_* ULID.
func IsValidJobID(value string) bool {
	if !strings.HasPrefix(value, jobPrefix) {
		return false
	}
	_, err := ParseJobID(value)
	return err == nil
}

// ParseJobID strips the job_ prefix and returns the ULID.
func ParseJobID(value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, jobPrefix)
	return ulid.Parse(value)
}
