package peerset

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dreamware/replset/internal/cluster"
)

// View is the peer-set component. It is safe for use from a single iteration
// at a time; the probe and clock fetches inside one call fan out in parallel.
type View struct {
	// Self is this node's endpoint; it is never probed.
	Self      string
	Discovery Discovery

	// Probe checks one peer for liveness. Left nil, a GET against the peer's
	// health endpoint with a short timeout is used.
	Probe func(ctx context.Context, endpoint string) error

	// Client issues batch clock requests. Left nil, a client with a default
	// timeout is used.
	Client *http.Client

	Log *slog.Logger
}

var probeClient = &http.Client{Timeout: 2 * time.Second}

// ListUsers returns every user whose replica set includes this node.
func (v *View) ListUsers(ctx context.Context) ([]cluster.UserRecord, error) {
	users, err := v.Discovery.UsersFor(ctx, v.Self)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UnhealthyPeers probes every distinct endpoint appearing in users, excluding
// self, and returns the set that failed. Keys are normalized endpoints.
func (v *View) UnhealthyPeers(ctx context.Context, users []cluster.UserRecord) map[string]struct{} {
	peers := make(map[string]string) // normalized -> as-reported
	for _, u := range users {
		for _, r := range u.Replicas() {
			if cluster.SameEndpoint(r, v.Self) {
				continue
			}
			peers[cluster.NormalizeEndpoint(r)] = r
		}
	}

	probe := v.Probe
	if probe == nil {
		probe = defaultProbe
	}

	var (
		mu        sync.Mutex
		unhealthy = make(map[string]struct{})
		wg        sync.WaitGroup
	)
	for norm, endpoint := range peers {
		wg.Add(1)
		go func(norm, endpoint string) {
			defer wg.Done()
			if err := probe(ctx, endpoint); err != nil {
				v.logger().Warn("peer failed health probe", "peer", endpoint, "err", err)
				mu.Lock()
				unhealthy[norm] = struct{}{}
				mu.Unlock()
			}
		}(norm, endpoint)
	}
	wg.Wait()
	return unhealthy
}

// FetchClockMaps issues one batched clock-status request per target secondary,
// in parallel. walletsByTarget maps each secondary endpoint to the wallets on
// this node that replicate to it. Any single batch failure fails the whole
// fetch: planning against partial clock data risks syncing the wrong way.
func (v *View) FetchClockMaps(ctx context.Context, walletsByTarget map[string][]string) (map[string]map[string]int64, error) {
	type result struct {
		target string
		clocks map[string]int64
		err    error
	}

	results := make(chan result, len(walletsByTarget))
	var wg sync.WaitGroup
	for target, wallets := range walletsByTarget {
		wg.Add(1)
		go func(target string, wallets []string) {
			defer wg.Done()
			clocks, err := v.fetchClockBatch(ctx, target, wallets)
			results <- result{target: target, clocks: clocks, err: err}
		}(target, wallets)
	}
	wg.Wait()
	close(results)

	out := make(map[string]map[string]int64, len(walletsByTarget))
	for r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("batch clock status from %s: %w", r.target, r.err)
		}
		out[r.target] = r.clocks
	}
	return out, nil
}

func (v *View) fetchClockBatch(ctx context.Context, target string, wallets []string) (map[string]int64, error) {
	req := cluster.BatchClockStatusRequest{WalletPublicKeys: wallets}
	var resp cluster.BatchClockStatusResponse
	url := cluster.NormalizeEndpoint(target) + "/users/batch_clock_status"
	if err := cluster.PostJSON(ctx, v.Client, url, req, &resp); err != nil {
		return nil, err
	}
	clocks := make(map[string]int64, len(resp.Data.Users))
	for _, wc := range resp.Data.Users {
		clocks[wc.WalletPublicKey] = wc.Clock
	}
	return clocks, nil
}

func defaultProbe(ctx context.Context, endpoint string) error {
	url := cluster.NormalizeEndpoint(endpoint) + "/health_check"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

func (v *View) logger() *slog.Logger {
	if v.Log != nil {
		return v.Log
	}
	return slog.Default()
}
