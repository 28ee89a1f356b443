// Package zonepolicy restricts which zones a request may be offloaded
// into — the data-sovereignty concern the teacher's federation package
// enforces for whole organizations, narrowed here to the zone-pair
// granularity this scheduler actually reasons about (§12). A zone with
// no registered policy is unrestricted, preserving the original
// federated-architecture behavior for anyone who never configures one.
package zonepolicy

import "sync"

// Policy governs what a single zone is allowed to offload into.
type Policy struct {
	// DataSovereignty, if true, forbids this zone from offloading to
	// any other zone regardless of AllowedZones.
	DataSovereignty bool
	// AllowedZones restricts offload targets to this list. An empty
	// list means unrestricted (subject to DataSovereignty).
	AllowedZones []string
}

func (p Policy) allows(toZone string) bool {
	if p.DataSovereignty {
		return false
	}
	if len(p.AllowedZones) == 0 {
		return true
	}
	for _, z := range p.AllowedZones {
		if z == toZone {
			return true
		}
	}
	return false
}

// Registry holds one Policy per zone.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry builds an empty Registry — every zone starts unrestricted.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// Set installs or replaces the policy for a zone.
func (r *Registry) Set(zone string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[zone] = p
}

// Get returns zone's policy and whether one is registered.
func (r *Registry) Get(zone string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[zone]
	return p, ok
}

// AllowsOffload reports whether fromZone may offload a request into
// toZone. A zone with no registered policy is unrestricted.
func (r *Registry) AllowsOffload(fromZone, toZone string) bool {
	if fromZone == toZone {
		return true
	}
	p, ok := r.Get(fromZone)
	if !ok {
		return true
	}
	return p.allows(toZone)
}
