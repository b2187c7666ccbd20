package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new opaque record identifier.
func GenerateID() string {
	return uuid.NewString()
}
