package cluster

// SyncKind selects which of the two sync queues a job belongs to.
type SyncKind string

const (
	// SyncManual is used for reconfiguration-driven urgent pushes.
	SyncManual SyncKind = "MANUAL"
	// SyncRecurring is used for periodic convergence syncs.
	SyncRecurring SyncKind = "RECURRING"
)

// ClockNone stands in for a clock value that was never observed. Real clocks
// are non-negative, so any present clock compares greater.
const ClockNone int64 = -1

// UserRecord is one user's replica assignment as reported by discovery.
// Secondary slots may be empty for incomplete replica sets.
type UserRecord struct {
	UserID     int64  `json:"user_id"`
	Wallet     string `json:"wallet"`
	Primary    string `json:"primary"`
	Secondary1 string `json:"secondary1"`
	Secondary2 string `json:"secondary2"`
}

// Secondaries returns the non-empty secondary endpoints in slot order.
func (u UserRecord) Secondaries() []string {
	var out []string
	for _, s := range []string{u.Secondary1, u.Secondary2} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Replicas returns every non-empty endpoint of the replica set, primary first.
func (u UserRecord) Replicas() []string {
	var out []string
	for _, r := range []string{u.Primary, u.Secondary1, u.Secondary2} {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SyncRequest is the body POSTed to {target}/sync to trigger a pull from the
// source node. Wallet is a slice on the wire even though the engine always
// sends exactly one.
type SyncRequest struct {
	Wallet              []string `json:"wallet"`
	CreatorNodeEndpoint string   `json:"creator_node_endpoint"`
	SyncType            SyncKind `json:"sync_type"`
	Immediate           bool     `json:"immediate"`
}

// BatchClockStatusRequest is the body POSTed to {target}/users/batch_clock_status.
type BatchClockStatusRequest struct {
	WalletPublicKeys []string `json:"walletPublicKeys"`
}

// BatchClockStatusResponse lists the target's clock value per requested wallet.
// Wallets the target has never seen may be omitted from the list.
type BatchClockStatusResponse struct {
	Data struct {
		Users []WalletClock `json:"users"`
	} `json:"data"`
}

// WalletClock pairs a wallet with a clock value observed on some node.
type WalletClock struct {
	WalletPublicKey string `json:"walletPublicKey"`
	Clock           int64  `json:"clock"`
}

// ClockStatusResponse is the body of GET {target}/users/clock_status/{wallet}.
type ClockStatusResponse struct {
	Data struct {
		ClockValue int64 `json:"clockValue"`
	} `json:"data"`
}
