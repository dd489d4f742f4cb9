package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a render job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProbing      Status = "probing"
	StatusAllocating   Status = "allocating"
	StatusEncoding     Status = "encoding"
	StatusSizeChecking Status = "size_checking"
	StatusUploading    Status = "uploading"
	StatusDelivered    Status = "delivered"
	StatusRejected     Status = "rejected"
	StatusFailed       Status = "failed"
)

// Result classifies the terminal outcome of a job.
type Result string

const (
	ResultDelivered      Result = "delivered"
	ResultRejectedTooBig Result = "rejected_too_large"
	ResultProbeFailed    Result = "probe_failed"
	ResultEncodeFailed   Result = "encode_failed"
	ResultDeliveryFailed Result = "delivery_failed"
	ResultNoChannel      Result = "no_channel"
	ResultDaemonStopped  Result = "daemon_stopped"
)

// DaemonStopReason is the error message set on jobs failed during shutdown
// or found in flight after a crash.
const DaemonStopReason = "daemon stopped before job finished"

var allStatuses = []Status{
	StatusPending,
	StatusProbing,
	StatusAllocating,
	StatusEncoding,
	StatusSizeChecking,
	StatusUploading,
	StatusDelivered,
	StatusRejected,
	StatusFailed,
}

var terminalStatuses = map[Status]struct{}{
	StatusDelivered: {},
	StatusRejected:  {},
	StatusFailed:    {},
}

// Clip is one uploaded source file owned by a job until cleanup removes it.
type Clip struct {
	Path            string  `json:"path"`
	Filename        string  `json:"filename"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Job represents a render job persisted in SQLite.
type Job struct {
	ID               string
	Title            string
	Status           Status
	Clips            []Clip
	TrimStart        *float64
	TrimEnd          *float64
	OutputPath       string
	VideoBitrateKbps int
	ArtifactBytes    int64
	Result           Result
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the job reached a terminal state.
func (j Job) IsTerminal() bool {
	_, ok := terminalStatuses[j.Status]
	return ok
}

// SetFailed marks the job failed with the given result and message.
func (j *Job) SetFailed(result Result, message string) {
	j.Status = StatusFailed
	j.Result = result
	j.ErrorMessage = message
}

// Clone returns a deep copy that shares no mutable state with the
// original, so it can be read while a worker advances the original.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Clips = append([]Clip(nil), j.Clips...)
	if j.TrimStart != nil {
		start := *j.TrimStart
		cp.TrimStart = &start
	}
	if j.TrimEnd != nil {
		end := *j.TrimEnd
		cp.TrimEnd = &end
	}
	return &cp
}

// TrimWindowSet reports whether both trim bounds are present.
func (j Job) TrimWindowSet() bool {
	return j.TrimStart != nil && j.TrimEnd != nil
}
