package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ShortIDPrefix is the prefix of the human-readable diagram identifier.
// Short IDs have the form "LAB-<n>" with <n> strictly increasing from 1
// and never reused.
const ShortIDPrefix = "LAB-"

// DiagramTypes is the fixed whitelist of accepted diagram types.
var DiagramTypes = []string{"labflow", "wiring", "floorplan", "freeform"}

// ValidDiagramType reports whether t is on the type whitelist.
func ValidDiagramType(t string) bool {
	for _, known := range DiagramTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FormatShortID renders a short-ID sequence number as "LAB-<n>".
func FormatShortID(seq int) string {
	return fmt.Sprintf("%s%d", ShortIDPrefix, seq)
}

// ParseShortID extracts the sequence number from a "LAB-<n>" identifier.
// It returns false for anything that is not a well-formed short ID.
func ParseShortID(shortID string) (int, bool) {
	rest, found := strings.CutPrefix(shortID, ShortIDPrefix)
	if !found {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 1 {
		return 0, false
	}
	return seq, true
}

// Diagram represents a user-owned diagram record.
//
// Content is treated as an opaque structured payload; the server stores
// and returns it without interpreting it.
type Diagram struct {
	// ID is the opaque primary key (a UUID).
	ID string `json:"id" db:"id"`

	// ShortID is the human-readable identifier, "LAB-<n>". It is unique
	// and allocated monotonically, even under concurrent creation.
	ShortID string `json:"short_id" db:"short_id"`

	// Type is one of the whitelisted diagram types.
	Type string `json:"type" db:"type"`

	// Name is the user-chosen display name. Duplicate names for the same
	// owner are disambiguated with a " (N)" suffix at creation time.
	Name string `json:"name" db:"name"`

	// Content is the opaque diagram payload.
	Content json.RawMessage `json:"content,omitempty" db:"content"`

	// Tags are free-form labels used for filtering.
	Tags []string `json:"tags" db:"tags"`

	// IsTemplate marks a diagram as a reusable template.
	IsTemplate bool `json:"is_template" db:"is_template"`

	// CreatedBy is the owning user's ID. Immutable after creation; only
	// the owner or an admin may read, update, or delete the diagram.
	CreatedBy int `json:"created_by" db:"created_by"`

	// CreatedAt is the timestamp at which the diagram was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DiagramVersion is one entry in a diagram's append-only version history.
// Version numbers are 1-based and strictly increasing per diagram with no
// gaps or duplicates, even under concurrent saves.
type DiagramVersion struct {
	// DiagramID references the versioned diagram.
	DiagramID string `json:"diagram_id" db:"diagram_id"`

	// VersionNumber orders this entry within the diagram's history.
	VersionNumber int `json:"version_number" db:"version_number"`

	// Content is the diagram payload captured at this version.
	Content json.RawMessage `json:"content,omitempty" db:"content"`

	// CreatedBy is the user who saved this version.
	CreatedBy int `json:"created_by" db:"created_by"`

	// CreatedAt is the timestamp at which the version was saved.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
