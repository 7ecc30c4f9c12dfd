package model

import "time"

// Run represents one attempt to execute a unit of work. Retries of the same
// logical invocation are separate Runs sharing LogicalID with an incremented
// Attempt counter.
type Run struct {
	ID         string     `json:"id"`
	LogicalID  string     `json:"logical_id"`
	TaskName   string     `json:"task_name"`
	FlowRunID  string     `json:"flow_run_id,omitempty"`
	ParentID   string     `json:"parent_id,omitempty"`
	State      State      `json:"state"`
	Attempt    int        `json:"attempt"`
	Tags       []string   `json:"tags,omitempty"`
	CacheKey   string     `json:"cache_key,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a shallow copy of the run. Tags is copied so callers cannot
// mutate the registry's view.
func (r *Run) Clone() *Run {
	c := *r
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	return &c
}
