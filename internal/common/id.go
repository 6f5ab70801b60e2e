package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique discovery job ID with the "job_" prefix.
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewPantryID generates a unique pantry ID with the "pantry_" prefix.
func NewPantryID() string {
	return "pantry_" + uuid.New().String()
}
