package cluster

import "fmt"

// IDMap translates node endpoints into the integer service-provider IDs the
// registry uses. It is populated once at startup from the registry's service
// list and read-only afterwards, so lookups need no locking.
type IDMap struct {
	ids map[string]int
}

// NewIDMap builds an IDMap from endpoint -> service-provider ID pairs.
// Endpoints are normalized so later lookups tolerate slash and case drift.
func NewIDMap(entries map[string]int) *IDMap {
	ids := make(map[string]int, len(entries))
	for endpoint, id := range entries {
		ids[NormalizeEndpoint(endpoint)] = id
	}
	return &IDMap{ids: ids}
}

// IDFor returns the service-provider ID registered for endpoint.
func (m *IDMap) IDFor(endpoint string) (int, error) {
	id, ok := m.ids[NormalizeEndpoint(endpoint)]
	if !ok {
		return 0, fmt.Errorf("no service provider registered for endpoint %q", endpoint)
	}
	return id, nil
}

// Len returns the number of registered endpoints.
func (m *IDMap) Len() int {
	return len(m.ids)
}
