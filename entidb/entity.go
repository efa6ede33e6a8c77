package entidb

import "github.com/google/uuid"

// NewEntityID generates a fresh random opaque 16-byte entity identifier.
// Backed by a random (v4) UUID so ids are collision-resistant without the
// caller needing to manage a sequence.
func NewEntityID() EntityID {
	return EntityID(uuid.New())
}

// ParseEntityID parses a canonical UUID string (e.g.
// "3fa85f64-5717-4562-b3fc-2c963f66afa6") into an EntityID.
func ParseEntityID(s string) (EntityID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EntityID{}, err
	}
	return EntityID(id), nil
}
