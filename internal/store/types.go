package store

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/propcore/internal/property"
)

// MaxNameLength is the longest accepted object name.
const MaxNameLength = 100

// Record is the persisted snapshot of one root object.
type Record struct {
	ID          string
	Name        string
	ClassName   string
	ContentType string
	Document    []byte
	Frozen      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Entry is a live root object held by the Registry.
// Object is shared: callers operate on the registry's instance.
type Entry struct {
	ID        string
	Name      string
	Object    *property.Object
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GenerateID returns a new random object ID.
func GenerateID() string {
	return uuid.NewString()
}

// ValidateName checks an object name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}
