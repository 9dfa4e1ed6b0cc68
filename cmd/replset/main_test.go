package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replset/internal/cluster"
	"github.com/dreamware/replset/internal/clockstore"
	"github.com/dreamware/replset/internal/peerset"
	"github.com/dreamware/replset/internal/statemachine"
	"github.com/dreamware/replset/internal/syncjob"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, *syncjob.Job) (bool, error) { return false, nil }

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health_check", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["healthy"])
}

func TestHandleStatus(t *testing.T) {
	dedup := syncjob.NewDedup()
	manual := syncjob.NewQueue(cluster.SyncManual, dedup, nopRunner{}, 1, nil)
	recurring := syncjob.NewQueue(cluster.SyncRecurring, dedup, nopRunner{}, 1, nil)

	// Two pending recurring jobs, workers not started.
	_, err := recurring.Enqueue("0xa", "http://self", "http://s1", false)
	require.NoError(t, err)
	_, err = recurring.Enqueue("0xb", "http://self", "http://s2", false)
	require.NoError(t, err)

	view := &peerset.View{Self: "http://self"}
	engine := statemachine.New(
		"http://self", view, clockstore.NewMemStore(), recurring, nil, time.Hour, nil)
	engine.SetSlice(7)

	rec := httptest.NewRecorder()
	handleStatus(engine, manual, recurring)(rec, httptest.NewRequest(http.MethodGet, "/replset/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Slice)
	assert.Equal(t, 2, resp.Recurring.Depth)
	assert.Zero(t, resp.Manual.Depth)
	assert.Zero(t, resp.Recurring.Active)
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	// No self endpoint anywhere: the command must fail validation before
	// starting anything.
	t.Setenv("REPLSET_SELF_ENDPOINT", "")
	cmd := newRootCommand()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.Error(t, err)
}
