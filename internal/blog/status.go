package blog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/marshallshelly/blogstore/pkg/runtime"
)

// ContentStatus is the publication state of a Content.
type ContentStatus string

const (
	StatusDraft     ContentStatus = "DRAFT"
	StatusPublished ContentStatus = "PUBLISHED"
	StatusPrivate   ContentStatus = "PRIVATE"
)

// ContentStatuses lists every status in declaration order.
var ContentStatuses = []ContentStatus{StatusDraft, StatusPublished, StatusPrivate}

// ParseContentStatus returns the status named s.
func ParseContentStatus(s string) (ContentStatus, error) {
	status := ContentStatus(s)
	if err := status.validate(); err != nil {
		return "", err
	}
	return status, nil
}

// Valid reports whether s is one of the declared statuses.
func (s ContentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusPrivate:
		return true
	}
	return false
}

func (s ContentStatus) validate() error {
	if !s.Valid() {
		return runtime.Invalid("status", "unknown content status %q", string(s))
	}
	return nil
}

func (s ContentStatus) String() string { return string(s) }

// MarshalJSON rejects statuses outside the enum.
func (s ContentStatus) MarshalJSON() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON rejects statuses outside the enum.
func (s *ContentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return runtime.Invalid("status", "status must be a string")
	}
	parsed, err := ParseContentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Scan implements sql.Scanner.
func (s *ContentStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return runtime.Invalid("status", "status must not be null")
	default:
		return fmt.Errorf("cannot scan %T into ContentStatus", src)
	}
	parsed, err := ParseContentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s ContentStatus) Value() (driver.Value, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	return string(s), nil
}
