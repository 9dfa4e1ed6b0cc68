// Package reconfig decides new replica sets for users with unhealthy
// replicas and drives the registry update, seeding the fresh nodes with
// manual syncs so no data is stranded on the old set.
package reconfig

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dreamware/replset/internal/cluster"
	"github.com/dreamware/replset/internal/syncjob"
)

// Selection produces a fresh candidate replica set, excluding every endpoint
// in the blacklist. Geographic and tie-break logic live behind this interface.
type Selection interface {
	AutoSelect(ctx context.Context, blacklist []string) (primary string, secondaries []string, err error)
}

// Registry persists replica-set assignments authoritatively.
type Registry interface {
	UpdateReplicaSet(ctx context.Context, userID int64, primaryID int, secondaryIDs []int) error
}

// Op is one user's reconfiguration request, built by the state machine during
// a scan and discarded at the end of the pass.
type Op struct {
	UserID     int64
	Wallet     string
	Primary    string
	Secondary1 string
	Secondary2 string

	// Unhealthy holds the normalized endpoints of replicas that failed this
	// iteration's health probe.
	Unhealthy map[string]struct{}
}

// Replicas returns the non-empty members of the current set, primary first.
func (op Op) Replicas() []string {
	var out []string
	for _, r := range []string{op.Primary, op.Secondary1, op.Secondary2} {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// healthy returns the surviving replicas in enumeration order.
func (op Op) healthy() []string {
	var out []string
	for _, r := range op.Replicas() {
		if _, bad := op.Unhealthy[cluster.NormalizeEndpoint(r)]; !bad {
			out = append(out, r)
		}
	}
	return out
}

// Planner is the reconfiguration component. One Plan call handles one user;
// failures are reported to the caller, which logs and moves on — the next
// periodic pass re-observes the same unhealthy state and retries.
type Planner struct {
	Sel    Selection
	Reg    Registry
	IDs    *cluster.IDMap
	Manual syncjob.Enqueuer

	// Client fetches survivor clocks in the two-survivor case.
	Client *http.Client
	Log    *slog.Logger
}

// Plan computes and persists the new replica set for op. It is a no-op for
// users whose replicas are all healthy.
func (p *Planner) Plan(ctx context.Context, op Op) error {
	if len(op.Unhealthy) == 0 {
		return nil
	}
	log := p.logger().With("user_id", op.UserID, "wallet", op.Wallet)

	r0, rest, err := p.Sel.AutoSelect(ctx, op.Replicas())
	if err != nil {
		return fmt.Errorf("select candidate replica set: %w", err)
	}
	if len(rest) < 2 {
		return fmt.Errorf("selection returned %d secondaries, need 2", len(rest))
	}
	r1, r2 := rest[0], rest[1]

	var (
		newPrimary     string
		newSecondaries [2]string
		seeds          []seed
	)
	healthy := op.healthy()
	switch len(healthy) {
	case 0:
		// Whole set is gone; the old primary is still the best-known source.
		newPrimary = r0
		newSecondaries = [2]string{r1, r2}
		seeds = []seed{{op.Primary, r0}, {op.Primary, r1}, {op.Primary, r2}}
	case 1:
		newPrimary = op.Primary
		newSecondaries = [2]string{r0, r1}
		seeds = []seed{{op.Primary, r0}, {op.Primary, r1}}
	default:
		// Two survivors: the one holding more data becomes the new primary.
		first, second := healthy[0], healthy[1]
		firstClock := p.survivorClock(ctx, first, op.Wallet, log)
		secondClock := p.survivorClock(ctx, second, op.Wallet, log)
		winner, loser := first, second
		if secondClock > firstClock {
			winner, loser = second, first
		}
		newPrimary = winner
		newSecondaries = [2]string{loser, r0}
		seeds = []seed{{winner, loser}, {winner, r0}}
	}

	for _, s := range seeds {
		if _, err := p.Manual.Enqueue(op.Wallet, s.source, s.target, true); err != nil {
			log.Error("seed sync enqueue failed", "source", s.source, "target", s.target, "err", err)
		}
	}

	primaryID, err := p.IDs.IDFor(newPrimary)
	if err != nil {
		return fmt.Errorf("translate new primary: %w", err)
	}
	secondaryIDs := make([]int, 0, 2)
	for _, s := range newSecondaries {
		id, err := p.IDs.IDFor(s)
		if err != nil {
			return fmt.Errorf("translate new secondary: %w", err)
		}
		secondaryIDs = append(secondaryIDs, id)
	}

	if err := p.Reg.UpdateReplicaSet(ctx, op.UserID, primaryID, secondaryIDs); err != nil {
		return fmt.Errorf("registry update: %w", err)
	}

	log.Info("replica set reconfigured",
		"new_primary", newPrimary,
		"new_secondary1", newSecondaries[0],
		"new_secondary2", newSecondaries[1],
		"unhealthy_count", len(op.Unhealthy))
	return nil
}

type seed struct {
	source string
	target string
}

// survivorClock reads the wallet's clock from a surviving replica. A replica
// that cannot answer counts as holding nothing.
func (p *Planner) survivorClock(ctx context.Context, endpoint, wallet string, log *slog.Logger) int64 {
	url := cluster.NormalizeEndpoint(endpoint) + "/users/clock_status/" + wallet
	var resp cluster.ClockStatusResponse
	if err := cluster.GetJSON(ctx, p.Client, url, &resp); err != nil {
		log.Warn("survivor clock fetch failed", "replica", endpoint, "err", err)
		return cluster.ClockNone
	}
	return resp.Data.ClockValue
}

func (p *Planner) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
