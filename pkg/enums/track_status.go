package enums

import "fmt"

// TrackStatus describes the lifecycle state of a GPS track upload. It
// follows the same pending → processing → {active,failed} machine as
// moments.
type TrackStatus string

const (
	TrackStatusPending    TrackStatus = "pending"
	TrackStatusProcessing TrackStatus = "processing"
	TrackStatusActive     TrackStatus = "active"
	TrackStatusFailed     TrackStatus = "failed"
)

var validTrackStatuses = []TrackStatus{
	TrackStatusPending,
	TrackStatusProcessing,
	TrackStatusActive,
	TrackStatusFailed,
}

// String returns the literal string for the status.
func (t TrackStatus) String() string {
	return string(t)
}

// IsValid reports whether the status is known.
func (t TrackStatus) IsValid() bool {
	for _, candidate := range validTrackStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTrackStatus converts raw input into a TrackStatus.
func ParseTrackStatus(value string) (TrackStatus, error) {
	for _, candidate := range validTrackStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid track status %q", value)
}
