package jobcache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/genqueue/internal/job"
)

// Record is the storage form of a job. Input and Result are JSON documents
// so backends never need to know the concrete job types.
type Record struct {
	ID          string          `json:"id"`
	Namespace   string          `json:"namespace"`
	Type        string          `json:"type"`
	Input       json.RawMessage `json:"input"`
	Status      job.Status      `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EncodeJob converts j into a Record.
func EncodeJob[In, Out any](j job.Job[In, Out]) (Record, error) {
	input, err := json.Marshal(j.Input)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode input of job %s: %w", j.ID, err)
	}

	var result json.RawMessage
	if j.Result != nil {
		result, err = json.Marshal(j.Result)
		if err != nil {
			return Record{}, fmt.Errorf("failed to encode result of job %s: %w", j.ID, err)
		}
	}

	return Record{
		ID:          j.ID,
		Namespace:   j.Namespace,
		Type:        j.Type,
		Input:       input,
		Status:      j.Status,
		Progress:    j.Progress,
		Result:      result,
		Error:       j.Error,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}, nil
}

// DecodeRecord converts r back into a typed job.
func DecodeRecord[In, Out any](r Record) (job.Job[In, Out], error) {
	j := job.Job[In, Out]{
		ID:          r.ID,
		Namespace:   r.Namespace,
		Type:        r.Type,
		Status:      r.Status,
		Progress:    r.Progress,
		Error:       r.Error,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if !r.Status.IsValid() {
		return j, fmt.Errorf("%w: job %s has status %q", ErrCorruptRecord, r.ID, r.Status)
	}
	if len(r.Input) > 0 {
		if err := json.Unmarshal(r.Input, &j.Input); err != nil {
			return j, fmt.Errorf("%w: input of job %s: %v", ErrCorruptRecord, r.ID, err)
		}
	}
	if len(r.Result) > 0 && string(r.Result) != "null" {
		var out Out
		if err := json.Unmarshal(r.Result, &out); err != nil {
			return j, fmt.Errorf("%w: result of job %s: %v", ErrCorruptRecord, r.ID, err)
		}
		j.Result = &out
	}

	return j, nil
}
