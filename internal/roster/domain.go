package roster

import "time"

// UserRecord is one account as seen by the roster. Records are immutable
// from the roster's perspective; changes arrive only through new snapshots.
type UserRecord struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Snapshot is a complete replacement of the roster's backing set. Record
// order is the store's order (created_at descending) and is never recomputed
// locally.
type Snapshot struct {
	Records []UserRecord `json:"records"`
	Taken   time.Time    `json:"taken"`
}
