package reliablestore

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// UUID is a thin wrapper over github.com/google/uuid.UUID so callers of this
// package never need to import the upstream package directly.
type UUID uuid.UUID

// NilUUID is the zero-value UUID, used as "no id".
var NilUUID UUID

// uuidRetryAttempts and uuidRetryBaseDelay configure NewUUID's backoff. They
// are package variables rather than constants so tests (or an unusually
// entropy-starved host) can tighten or loosen them without touching the
// generation logic itself.
var (
	uuidRetryAttempts  uint64 = 10
	uuidRetryBaseDelay        = time.Millisecond
)

// NewUUID returns a new randomly generated UUID. Generation only fails if the
// system's entropy source is exhausted, which should never happen under
// normal conditions; this retries with the same exponential-backoff
// machinery ExecuteWithRetry uses for transactions (see factory.go) before
// giving up.
func NewUUID() UUID {
	backoff, err := retry.NewExponential(uuidRetryBaseDelay)
	if err != nil {
		panic(err)
	}
	backoff = retry.WithMaxRetries(uuidRetryAttempts, backoff)

	var id uuid.UUID
	err = retry.Do(context.Background(), backoff, func(context.Context) error {
		var genErr error
		id, genErr = uuid.NewRandom()
		if genErr != nil {
			return retry.RetryableError(genErr)
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
	return UUID(id)
}

// ParseUUID parses a canonical UUID string.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	return UUID(u), err
}

// IsNil reports whether id is the zero-value UUID.
func (id UUID) IsNil() bool {
	return bytes.Equal(id[:], NilUUID[:])
}

// String returns the canonical string representation of id.
func (id UUID) String() string {
	return uuid.UUID(id).String()
}
