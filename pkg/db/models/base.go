package models

import "github.com/google/uuid"

// ensureID assigns a random id before insert when the caller did not.
// Postgres also defaults ids, the hook keeps SQLite-backed runs consistent.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
