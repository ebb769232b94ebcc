package models

import "time"

// RecordStatus is the per-record outcome of a batch operation
type RecordStatus string

const (
	RecordInserted  RecordStatus = "inserted"
	RecordUpdated   RecordStatus = "updated"
	RecordUnchanged RecordStatus = "unchanged"
	RecordComputed  RecordStatus = "computed"
	RecordSkipped   RecordStatus = "skipped"
	RecordFailed    RecordStatus = "failed"
)

// RecordOutcome reports what happened to one record in a batch
type RecordOutcome struct {
	NaturalKey string       `json:"natural_key"`
	Status     RecordStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// UpsertResult summarises an upsert batch
type UpsertResult struct {
	Inserted  int             `json:"inserted"`
	Updated   int             `json:"updated"`
	Unchanged int             `json:"unchanged"`
	Failed    int             `json:"failed"`
	Outcomes  []RecordOutcome `json:"outcomes,omitempty"`
}

// Saved returns the number of records written as new or replaced
func (r *UpsertResult) Saved() int {
	return r.Inserted + r.Updated
}

// Record tallies one outcome
func (r *UpsertResult) Record(key string, status RecordStatus, err error) {
	switch status {
	case RecordInserted:
		r.Inserted++
	case RecordUpdated:
		r.Updated++
	case RecordUnchanged:
		r.Unchanged++
	case RecordFailed:
		r.Failed++
	}
	outcome := RecordOutcome{NaturalKey: key, Status: status}
	if err != nil {
		outcome.Error = err.Error()
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// ReindexResult summarises an embedding pass.
// Computed counts provider calls' results, CacheHits vectors reused from the cache.
type ReindexResult struct {
	Computed  int             `json:"computed"`
	CacheHits int             `json:"cache_hits"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Failures  []RecordOutcome `json:"failures,omitempty"`
}

// Indexed returns how many records received a new embedding
func (r *ReindexResult) Indexed() int {
	return r.Computed + r.CacheHits
}

// Merge folds another pass into r
func (r *ReindexResult) Merge(other *ReindexResult) {
	if other == nil {
		return
	}
	r.Computed += other.Computed
	r.CacheHits += other.CacheHits
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}

// ScoredOutlet is a retrieval hit
type ScoredOutlet struct {
	Outlet *Outlet `json:"outlet"`
	Score  float64 `json:"score"`
}

// GeneratedAnswer is the output of the answer composer.
// GroundingRecords is populated even when generation fails.
type GeneratedAnswer struct {
	Text             string          `json:"text"`
	GroundingRecords []*ScoredOutlet `json:"grounding_records"`
	Model            string          `json:"model,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}
