package pricing

import (
	"encoding/json"
	"time"

	"github.com/coullessi/arcdefender/pkg/azure/discovery"
)

// State is the pricing configuration a read returns. Extensions is kept as
// raw JSON; the tool reports it but never interprets it.
type State struct {
	Tier                   string          `json:"pricingTier"`
	SubPlan                string          `json:"subPlan,omitempty"`
	FreeTrialRemainingTime string          `json:"freeTrialRemainingTime,omitempty"`
	EnablementTime         string          `json:"enablementTime,omitempty"`
	Deprecated             bool            `json:"deprecated,omitempty"`
	Extensions             json.RawMessage `json:"extensions,omitempty"`
}

// ResourceResult is the outcome of one pricing call against one machine.
type ResourceResult struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       discovery.Kind `json:"kind"`
	Action     Action         `json:"action"`
	Succeeded  bool           `json:"succeeded"`
	StatusCode int            `json:"statusCode,omitempty"`
	State      *State         `json:"pricing,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// KindCount tallies outcomes for one machine kind.
type KindCount struct {
	Found     int `json:"found"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Report is the full record of a pricing run: per-kind tallies plus the
// per-machine outcomes with service responses captured verbatim.
type Report struct {
	RunID      string                        `json:"runId"`
	Action     Action                        `json:"action"`
	StartedAt  time.Time                     `json:"startedAt"`
	FinishedAt time.Time                     `json:"finishedAt"`
	Counts     map[discovery.Kind]*KindCount `json:"counts"`
	Results    []ResourceResult              `json:"results"`
}

func newReport(runID string, action Action, startedAt time.Time) *Report {
	counts := make(map[discovery.Kind]*KindCount, len(discovery.Kinds))
	for _, k := range discovery.Kinds {
		counts[k] = &KindCount{}
	}
	return &Report{
		RunID:     runID,
		Action:    action,
		StartedAt: startedAt,
		Counts:    counts,
	}
}

func (r *Report) record(res ResourceResult) {
	r.Results = append(r.Results, res)
	c := r.Counts[res.Kind]
	if c == nil {
		c = &KindCount{}
		r.Counts[res.Kind] = c
	}
	if res.Succeeded {
		c.Succeeded++
	} else {
		c.Failed++
	}
}

// TotalFound returns the number of distinct machines the run targeted.
func (r *Report) TotalFound() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Found
	}
	return n
}

// TotalSucceeded returns the number of machines whose call succeeded.
func (r *Report) TotalSucceeded() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Succeeded
	}
	return n
}

// TotalFailed returns the number of machines whose call failed.
func (r *Report) TotalFailed() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Failed
	}
	return n
}
