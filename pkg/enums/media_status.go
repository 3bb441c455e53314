package enums

import "fmt"

// MediaStatus describes the lifecycle state of an uploaded moment.
//
// The only legal transitions are pending → processing → active and
// pending → processing → failed. Records in processing or active occupy
// their (activity, name, size) slot for duplicate detection; pending and
// failed records do not.
type MediaStatus string

const (
	MediaStatusPending    MediaStatus = "pending"
	MediaStatusProcessing MediaStatus = "processing"
	MediaStatusActive     MediaStatus = "active"
	MediaStatusFailed     MediaStatus = "failed"
)

var validMediaStatuses = []MediaStatus{
	MediaStatusPending,
	MediaStatusProcessing,
	MediaStatusActive,
	MediaStatusFailed,
}

// String returns the literal string for the status.
func (m MediaStatus) String() string {
	return string(m)
}

// IsValid reports whether the status is known.
func (m MediaStatus) IsValid() bool {
	for _, candidate := range validMediaStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (m MediaStatus) IsTerminal() bool {
	return m == MediaStatusActive || m == MediaStatusFailed
}

// Occupies reports whether a record in this status blocks a duplicate
// upload of the same (activity, name, size).
func (m MediaStatus) Occupies() bool {
	return m == MediaStatusProcessing || m == MediaStatusActive
}

// ParseMediaStatus converts raw input into a MediaStatus.
func ParseMediaStatus(value string) (MediaStatus, error) {
	for _, candidate := range validMediaStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media status %q", value)
}
