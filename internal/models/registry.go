package models

import "time"

// Entity is the registry row kept for every client ever observed.
type Entity struct {
	MAC           string    `json:"mac"`
	Name          string    `json:"name"`
	Online        bool      `json:"online"`
	State         string    `json:"state"`
	Signal        *int      `json:"signal,omitempty"`
	Authorized    bool      `json:"authorized"`
	Authenticated bool      `json:"authenticated"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
