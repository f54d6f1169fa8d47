package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateRequestID creates a new random request ID
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
