package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// UploadJob is the message placed on a queue when an upload is confirmed.
// The media class is implicit in which queue carries the job. Workers match
// the record by storage key; the record id rides along for log correlation.
type UploadJob struct {
	RecordID   uuid.UUID `json:"record_id"`
	StorageKey string    `json:"storage_key"`
	ActivityID uuid.UUID `json:"activity_id"`
}

// Validate reports whether the job carries the fields workers rely on.
func (j UploadJob) Validate() error {
	if j.StorageKey == "" {
		return errors.New("job storage key is required")
	}
	if j.RecordID == uuid.Nil {
		return errors.New("job record id is required")
	}
	return nil
}

// Encode serializes the job for the queue boundary.
func (j UploadJob) Encode() ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// Decode parses a queue payload back into a job.
func Decode(data []byte) (UploadJob, error) {
	var job UploadJob
	if err := json.Unmarshal(data, &job); err != nil {
		return UploadJob{}, fmt.Errorf("decoding upload job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return UploadJob{}, err
	}
	return job, nil
}
