package syncjob

import "sync"

// Dedup indexes pending jobs by fingerprint. Queues record a job when it
// becomes pending and remove it the moment a worker activates it, so at most
// one pending job exists per fingerprint while an active one may still be
// running.
type Dedup struct {
	mu      sync.Mutex
	pending map[Fingerprint]*Job
}

// NewDedup creates an empty pending index.
func NewDedup() *Dedup {
	return &Dedup{pending: make(map[Fingerprint]*Job)}
}

// TryRecord inserts job under fp if the slot is free and reports whether it
// inserted.
func (d *Dedup) TryRecord(fp Fingerprint, job *Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[fp]; ok {
		return false
	}
	d.pending[fp] = job
	return true
}

// Lookup returns the pending job for fp, or nil.
func (d *Dedup) Lookup(fp Fingerprint) *Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[fp]
}

// Remove erases the slot for fp.
func (d *Dedup) Remove(fp Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, fp)
}

// Len returns the number of pending fingerprints.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
