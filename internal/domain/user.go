package domain

import (
	"time"
)

// User represents a self-declared identity. The identity is an opaque
// display string chosen by the user and acts as the partition key for
// all persisted agents and transcripts. It is not a security principal.
type User struct {
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
