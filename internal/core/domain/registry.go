package domain

import "time"

// RegistryID is the primary key of the singleton registry row.
const RegistryID = 1

// Registry is the ledger-wide singleton created once at bootstrap.
type Registry struct {
	Authority  Identity  `json:"authority"`
	TotalCards uint64    `json:"total_cards"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewRegistry returns an empty registry controlled by authority.
func NewRegistry(authority Identity, now time.Time) *Registry {
	return &Registry{
		Authority:  authority,
		TotalCards: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// RecordCardCreated bumps the monotonic card counter.
func (r *Registry) RecordCardCreated(now time.Time) {
	r.TotalCards++
	r.UpdatedAt = now
}
