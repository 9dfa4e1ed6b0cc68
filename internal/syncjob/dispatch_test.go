package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replset/internal/cluster"
	"github.com/dreamware/replset/internal/clockstore"
)

// fakeTarget is a peer node answering /sync and /users/clock_status/{wallet}.
// Clock responses are served from the clocks slice, last value repeating.
type fakeTarget struct {
	t *testing.T

	mu     sync.Mutex
	syncs  []cluster.SyncRequest
	clocks []int64
	polls  int

	srv *httptest.Server
}

func newFakeTarget(t *testing.T, clocks ...int64) *fakeTarget {
	ft := &fakeTarget{t: t, clocks: clocks}
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", ft.handleSync)
	mux.HandleFunc("/users/clock_status/", ft.handleClockStatus)
	ft.srv = httptest.NewServer(mux)
	t.Cleanup(ft.srv.Close)
	return ft
}

func (ft *fakeTarget) handleSync(w http.ResponseWriter, r *http.Request) {
	var req cluster.SyncRequest
	require.NoError(ft.t, json.NewDecoder(r.Body).Decode(&req))
	ft.mu.Lock()
	ft.syncs = append(ft.syncs, req)
	ft.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (ft *fakeTarget) handleClockStatus(w http.ResponseWriter, r *http.Request) {
	ft.mu.Lock()
	i := ft.polls
	if i >= len(ft.clocks) {
		i = len(ft.clocks) - 1
	}
	clock := ft.clocks[i]
	ft.polls++
	ft.mu.Unlock()
	fmt.Fprintf(w, `{"data":{"clockValue":%d}}`, clock)
}

func (ft *fakeTarget) receivedSyncs() []cluster.SyncRequest {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]cluster.SyncRequest(nil), ft.syncs...)
}

func newTestDispatcher(store clockstore.Store) *Dispatcher {
	return &Dispatcher{
		Store:               store,
		MaxExportClockRange: 100,
		RetryDelay:          10 * time.Millisecond,
		MaxMonitoring:       200 * time.Millisecond,
	}
}

func TestDispatchCaughtUp(t *testing.T) {
	store := clockstore.NewMemStore()
	store.Set("0xabc", 10)
	target := newFakeTarget(t, 10) // already equal: caught up on first sample

	d := newTestDispatcher(store)
	job := newJob(cluster.SyncRecurring, "0xabc", "http://self", target.srv.URL, false)

	requeue, err := d.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, requeue, "equal clocks count as caught up")

	syncs := target.receivedSyncs()
	require.Len(t, syncs, 1)
	assert.Equal(t, []string{"0xabc"}, syncs[0].Wallet)
	assert.Equal(t, "http://self", syncs[0].CreatorNodeEndpoint)
	assert.Equal(t, cluster.SyncRecurring, syncs[0].SyncType)
	assert.False(t, syncs[0].Immediate)
}

func TestDispatchCatchesUpAfterPolling(t *testing.T) {
	store := clockstore.NewMemStore()
	store.Set("0xabc", 10)
	target := newFakeTarget(t, 8, 9, 11) // overtakes the captured clock

	d := newTestDispatcher(store)
	job := newJob(cluster.SyncRecurring, "0xabc", "http://self", target.srv.URL, false)

	requeue, err := d.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, requeue)
}

func TestDispatchGapBeyondExportWindow(t *testing.T) {
	store := clockstore.NewMemStore()
	store.Set("0xabc", 500)
	target := newFakeTarget(t, 10) // 10 + 100 < 500: one sync cannot close this

	d := newTestDispatcher(store)
	job := newJob(cluster.SyncRecurring, "0xabc", "http://self", target.srv.URL, false)

	requeue, err := d.Run(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, requeue, "gap beyond one export window needs a successor job")
}

func TestDispatchMonitorTimeout(t *testing.T) {
	store := clockstore.NewMemStore()
	store.Set("0xabc", 10)
	target := newFakeTarget(t, 9) // within the window but never caught up

	d := newTestDispatcher(store)
	job := newJob(cluster.SyncRecurring, "0xabc", "http://self", target.srv.URL, false)

	requeue, err := d.Run(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, requeue, "deadline expiry re-enqueues a successor")
}

func TestDispatchSyncRequestFailure(t *testing.T) {
	store := clockstore.NewMemStore()
	store.Set("0xabc", 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newTestDispatcher(store)
	job := newJob(cluster.SyncManual, "0xabc", "http://self", srv.URL, true)

	_, err := d.Run(context.Background(), job)
	assert.Error(t, err)
}

func TestDispatchPollErrorsKeepPolling(t *testing.T) {
	store := clockstore.NewMemStore()
	store.Set("0xabc", 10)

	var polls int
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/users/clock_status/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		if n < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":{"clockValue":10}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDispatcher(store)
	job := newJob(cluster.SyncRecurring, "0xabc", "http://self", srv.URL, false)

	requeue, err := d.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, requeue, "transient poll failures are retried until the deadline")
}
