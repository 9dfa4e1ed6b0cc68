// Package peerset gives the state machine its view of the fleet: the users
// this node serves, the liveness of the peers appearing in their replica
// sets, and snapshots of the clocks those peers report.
package peerset

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dreamware/replset/internal/cluster"
)

// Discovery lists the users whose replica set includes a given node.
type Discovery interface {
	UsersFor(ctx context.Context, endpoint string) ([]cluster.UserRecord, error)
}

// HTTPDiscovery queries a discovery provider over HTTP.
type HTTPDiscovery struct {
	// Endpoint is the discovery provider's base URL.
	Endpoint string
	Client   *http.Client
}

// The discovery provider returns user records under a data envelope.
type usersResponse struct {
	Data struct {
		Users []cluster.UserRecord `json:"users"`
	} `json:"data"`
}

// UsersFor implements Discovery.
func (d *HTTPDiscovery) UsersFor(ctx context.Context, endpoint string) ([]cluster.UserRecord, error) {
	u := fmt.Sprintf("%s/users/content_node/all?creator_node_endpoint=%s",
		cluster.NormalizeEndpoint(d.Endpoint), url.QueryEscape(endpoint))
	var resp usersResponse
	if err := cluster.GetJSON(ctx, d.Client, u, &resp); err != nil {
		return nil, fmt.Errorf("list users from discovery: %w", err)
	}
	return resp.Data.Users, nil
}
