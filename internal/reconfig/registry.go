package reconfig

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dreamware/replset/internal/cluster"
)

// HTTPRegistry submits replica-set updates to a registry relay that handles
// the actual on-chain transaction.
type HTTPRegistry struct {
	Endpoint string
	Client   *http.Client
}

type updateReplicaSetRequest struct {
	UserID       int64 `json:"user_id"`
	PrimaryID    int   `json:"primary_spid"`
	SecondaryIDs []int `json:"secondary_spids"`
}

// UpdateReplicaSet implements Registry.
func (r *HTTPRegistry) UpdateReplicaSet(ctx context.Context, userID int64, primaryID int, secondaryIDs []int) error {
	url := cluster.NormalizeEndpoint(r.Endpoint) + "/replica_set"
	req := updateReplicaSetRequest{UserID: userID, PrimaryID: primaryID, SecondaryIDs: secondaryIDs}
	if err := cluster.PostJSON(ctx, r.Client, url, req, nil); err != nil {
		return fmt.Errorf("submit replica set for user %d: %w", userID, err)
	}
	return nil
}
