package statemachine

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Entry is one decision recorded during an iteration, labeled with the stage
// that produced it.
type Entry struct {
	Stage  string `json:"stage"`
	Wallet string `json:"wallet,omitempty"`
	Detail string `json:"detail,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Audit accumulates the decision tree of one iteration and is emitted as a
// single structured log line at iteration end. Entries keep insertion order,
// so serialization is deterministic.
type Audit struct {
	Slice   int     `json:"slice"`
	Entries []Entry `json:"entries"`

	started time.Time
	errs    int
}

func newAudit(slice int) *Audit {
	return &Audit{Slice: slice, started: time.Now()}
}

// Add records a successful decision.
func (a *Audit) Add(stage, detail string) {
	a.Entries = append(a.Entries, Entry{Stage: stage, Detail: detail})
}

// AddUser records a successful per-user decision.
func (a *Audit) AddUser(stage, wallet, detail string) {
	a.Entries = append(a.Entries, Entry{Stage: stage, Wallet: wallet, Detail: detail})
}

// Fail records a stage-level error.
func (a *Audit) Fail(stage string, err error) {
	a.errs++
	a.Entries = append(a.Entries, Entry{Stage: stage, Err: err.Error()})
}

// FailUser records a per-user error.
func (a *Audit) FailUser(stage, wallet string, err error) {
	a.errs++
	a.Entries = append(a.Entries, Entry{Stage: stage, Wallet: wallet, Err: err.Error()})
}

// Errors returns the number of recorded errors.
func (a *Audit) Errors() int {
	return a.errs
}

// Emit logs the whole tree as one record.
func (a *Audit) Emit(log *slog.Logger) {
	raw, err := json.Marshal(a)
	if err != nil {
		log.Error("audit serialization failed", "slice", a.Slice, "err", err)
		return
	}
	log.Info("iteration decision tree",
		"slice", a.Slice,
		"duration", time.Since(a.started).String(),
		"errors", a.errs,
		"tree", string(raw))
}
