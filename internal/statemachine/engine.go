package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreamware/replset/internal/cluster"
	"github.com/dreamware/replset/internal/clockstore"
	"github.com/dreamware/replset/internal/config"
	"github.com/dreamware/replset/internal/peerset"
	"github.com/dreamware/replset/internal/reconfig"
	"github.com/dreamware/replset/internal/syncjob"
)

// Reconfigurer plans and persists a new replica set for one user.
type Reconfigurer interface {
	Plan(ctx context.Context, op reconfig.Op) error
}

// Summary describes the outcome of the most recent iteration, for the status
// endpoint and tests.
type Summary struct {
	Slice         int       `json:"slice"`
	Users         int       `json:"users"`
	UnhealthyPeer int       `json:"unhealthy_peers"`
	SyncsEnqueued int       `json:"syncs_enqueued"`
	Reconfigs     int       `json:"reconfigs"`
	Errors        int       `json:"errors"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Engine is the state-machine loop. Construct with New, then call Run from a
// single goroutine.
type Engine struct {
	self      string
	view      *peerset.View
	store     clockstore.Store
	recurring syncjob.Enqueuer
	planner   Reconfigurer
	interval  time.Duration
	log       *slog.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	slice int
	last  Summary
}

// New creates an engine starting at a random slice, per the sharding scheme:
// nodes booting at different times land on different slices and the full ring
// is still covered once per ModuloBase iterations.
func New(self string, view *peerset.View, store clockstore.Store, recurring syncjob.Enqueuer, planner Reconfigurer, interval time.Duration, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		self:      self,
		view:      view,
		store:     store,
		recurring: recurring,
		planner:   planner,
		interval:  interval,
		log:       log.With("component", "statemachine"),
		tracer:    otel.Tracer("replset/statemachine"),
		slice:     rand.Intn(config.ModuloBase),
	}
}

// Slice returns the slice the next iteration will process.
func (e *Engine) Slice() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slice
}

// SetSlice fixes the next slice. Used by tests and operational tooling.
func (e *Engine) SetSlice(slice int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.slice = ((slice % config.ModuloBase) + config.ModuloBase) % config.ModuloBase
}

// Last returns the summary of the most recently completed iteration.
func (e *Engine) Last() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Run executes iterations separated by the configured interval until ctx is
// canceled. Iterations never overlap.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("state machine started", "interval", e.interval.String(), "initial_slice", e.Slice())
	for {
		e.RunIteration(ctx)
		select {
		case <-time.After(e.interval):
		case <-ctx.Done():
			e.log.Info("state machine stopped")
			return
		}
	}
}

// RunIteration performs one full pass over the current slice and advances the
// shard selector. Any error inside the pass is captured in the audit log; the
// slice advances regardless.
func (e *Engine) RunIteration(ctx context.Context) Summary {
	slice := e.Slice()
	ctx, span := e.tracer.Start(ctx, "statemachine.iteration",
		trace.WithAttributes(attribute.Int("slice", slice)))
	defer span.End()

	aud := newAudit(slice)
	summary := e.iterate(ctx, slice, aud)
	summary.Errors = aud.Errors()
	summary.CompletedAt = time.Now()
	aud.Emit(e.log)

	e.mu.Lock()
	e.slice = (e.slice + 1) % config.ModuloBase
	e.last = summary
	e.mu.Unlock()
	return summary
}

func (e *Engine) iterate(ctx context.Context, slice int, aud *Audit) Summary {
	summary := Summary{Slice: slice}

	users, err := e.view.ListUsers(ctx)
	if err != nil {
		aud.Fail("list_users", err)
		return summary
	}

	var shard []cluster.UserRecord
	for _, u := range users {
		if int(u.UserID%config.ModuloBase) == slice {
			shard = append(shard, u)
		}
	}
	summary.Users = len(shard)
	aud.Add("shard", fmt.Sprintf("%d of %d users in slice %d", len(shard), len(users), slice))

	probeCtx, probeSpan := e.tracer.Start(ctx, "statemachine.probe")
	unhealthy := e.view.UnhealthyPeers(probeCtx, shard)
	probeSpan.End()
	summary.UnhealthyPeer = len(unhealthy)
	aud.Add("probe", fmt.Sprintf("%d unhealthy peers", len(unhealthy)))

	candidates, ops := e.plan(shard, unhealthy, aud)

	issued, err := e.issueSyncRequests(ctx, candidates, aud)
	if err != nil {
		aud.Fail("issue_syncs", err)
		return summary
	}
	summary.SyncsEnqueued = issued

	reconfigCtx, reconfigSpan := e.tracer.Start(ctx, "statemachine.reconfigure")
	for _, op := range ops {
		if len(op.Unhealthy) == 0 {
			continue
		}
		if err := e.planner.Plan(reconfigCtx, op); err != nil {
			aud.FailUser("reconfigure", op.Wallet, err)
			continue
		}
		summary.Reconfigs++
		aud.AddUser("reconfigure", op.Wallet, "replica set update issued")
	}
	reconfigSpan.End()

	return summary
}

// syncCandidate is one (user, healthy secondary) pair that may need a
// convergence sync.
type syncCandidate struct {
	user   cluster.UserRecord
	target string
}

// plan walks the shard and splits it into convergence-sync candidates and
// reconfiguration ops, per this node's role in each user's replica set.
func (e *Engine) plan(shard []cluster.UserRecord, unhealthy map[string]struct{}, aud *Audit) ([]syncCandidate, []reconfig.Op) {
	var (
		candidates []syncCandidate
		ops        []reconfig.Op
	)
	for _, u := range shard {
		bad := make(map[string]struct{})

		if cluster.SameEndpoint(u.Primary, e.self) {
			for _, s := range u.Secondaries() {
				if _, down := unhealthy[cluster.NormalizeEndpoint(s)]; down {
					bad[cluster.NormalizeEndpoint(s)] = struct{}{}
					aud.AddUser("plan", u.Wallet, "secondary unhealthy: "+s)
				} else {
					candidates = append(candidates, syncCandidate{user: u, target: s})
				}
			}
		} else {
			for _, r := range u.Replicas() {
				if cluster.SameEndpoint(r, e.self) {
					continue
				}
				if _, down := unhealthy[cluster.NormalizeEndpoint(r)]; down {
					bad[cluster.NormalizeEndpoint(r)] = struct{}{}
					aud.AddUser("plan", u.Wallet, "replica unhealthy: "+r)
				}
			}
		}

		ops = append(ops, reconfig.Op{
			UserID:     u.UserID,
			Wallet:     u.Wallet,
			Primary:    u.Primary,
			Secondary1: u.Secondary1,
			Secondary2: u.Secondary2,
			Unhealthy:  bad,
		})
	}
	return candidates, ops
}

// issueSyncRequests fetches per-secondary clock maps for the candidates and
// enqueues a recurring sync wherever this node's clock is ahead. It returns
// the number of syncs enqueued; the iteration is failed only when enqueue
// errors outnumber issued syncs.
func (e *Engine) issueSyncRequests(ctx context.Context, candidates []syncCandidate, aud *Audit) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	walletsByTarget := make(map[string][]string)
	wallets := make([]string, 0, len(candidates))
	for _, c := range candidates {
		target := cluster.NormalizeEndpoint(c.target)
		walletsByTarget[target] = append(walletsByTarget[target], c.user.Wallet)
		wallets = append(wallets, c.user.Wallet)
	}

	fetchCtx, fetchSpan := e.tracer.Start(ctx, "statemachine.fetch_clocks")
	clockMaps, err := e.view.FetchClockMaps(fetchCtx, walletsByTarget)
	fetchSpan.End()
	if err != nil {
		return 0, err
	}

	localClocks, err := e.store.Clocks(ctx, wallets)
	if err != nil {
		return 0, fmt.Errorf("read local clocks: %w", err)
	}

	issued := 0
	var errs []error
	for _, c := range candidates {
		localClock, ok := localClocks[c.user.Wallet]
		if !ok {
			localClock = cluster.ClockNone
		}
		targetClock, ok := clockMaps[cluster.NormalizeEndpoint(c.target)][c.user.Wallet]
		if !ok {
			targetClock = cluster.ClockNone
		}
		if localClock <= targetClock {
			continue
		}
		if _, err := e.recurring.Enqueue(c.user.Wallet, e.self, c.target, false); err != nil {
			errs = append(errs, err)
			aud.FailUser("sync_enqueue", c.user.Wallet, err)
			continue
		}
		issued++
		aud.AddUser("sync_enqueue", c.user.Wallet,
			fmt.Sprintf("recurring sync to %s (local=%d target=%d)", c.target, localClock, targetClock))
	}

	if len(errs) > issued {
		return issued, fmt.Errorf("sync enqueue errors (%d) exceed issued syncs (%d): %w",
			len(errs), issued, errs[0])
	}
	return issued, nil
}
