package syncjob

import (
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/replset/internal/cluster"
)

// Fingerprint identifies the pending-job slot a sync job occupies. Two jobs
// with the same fingerprint would push the same user to the same target, so
// only one may be pending at a time.
type Fingerprint struct {
	Kind   cluster.SyncKind
	Wallet string
	Target string
}

// Job is one sync dispatch: push the user's content on Source to Target.
// The pointer doubles as the handle returned to enqueuers.
type Job struct {
	ID         string
	Kind       cluster.SyncKind
	Wallet     string
	Source     string
	Target     string
	Immediate  bool
	EnqueuedAt time.Time
}

func newJob(kind cluster.SyncKind, wallet, source, target string, immediate bool) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Wallet:     wallet,
		Source:     source,
		Target:     target,
		Immediate:  immediate,
		EnqueuedAt: time.Now(),
	}
}

// Fingerprint returns the job's de-duplication key.
func (j *Job) Fingerprint() Fingerprint {
	return Fingerprint{
		Kind:   j.Kind,
		Wallet: j.Wallet,
		Target: cluster.NormalizeEndpoint(j.Target),
	}
}
