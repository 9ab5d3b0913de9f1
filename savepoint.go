package reliablestore

import "time"

// Savepoint is an immutable, named marker inside an Active transaction that
// allows partial rollback to the state observed at its creation. Names must
// be unique within a single transaction.
type Savepoint struct {
	Name          string
	TransactionID UUID
	CreatedAt     time.Time
}

// newSavepoint builds a Savepoint for the given transaction, stamped with the
// current time for ordering (§3: "logically ordered by createdAt").
func newSavepoint(txID UUID, name string) Savepoint {
	return Savepoint{
		Name:          name,
		TransactionID: txID,
		CreatedAt:     Now(),
	}
}
