// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — its only dependency is
// github.com/google/uuid, used to generate request tags.
package domain

import "github.com/google/uuid"

// Role is the placement role a node plays in the fabric topology.
type Role string

const (
	RoleCloudController Role = "cloud-controller"
	RoleEdgeController  Role = "edge-controller"
	RoleWorker          Role = "worker"
)

// Arch identifies a placement architecture. Dynamic is only valid at
// ingress — the tail-ratio scheduler resolves it to one of the other
// three before the router ever sees a descriptor.
type Arch string

const (
	ArchCentralized  Arch = "centralized"
	ArchFederated    Arch = "federated"
	ArchDecentralized Arch = "decentralized"
	ArchDynamic      Arch = "dynamic"
)

// Concrete reports whether a is one of the three static architectures.
func (a Arch) Concrete() bool {
	switch a {
	case ArchCentralized, ArchFederated, ArchDecentralized:
		return true
	default:
		return false
	}
}

// Valid reports whether a is one of the four recognized architecture names.
func (a Arch) Valid() bool {
	switch a {
	case ArchCentralized, ArchFederated, ArchDecentralized, ArchDynamic:
		return true
	default:
		return false
	}
}

// Node is immutable at runtime — it is parsed once from the topology
// config and never mutated.
type Node struct {
	ID      string `json:"id" yaml:"id"`
	Address string `json:"address" yaml:"address"`
	Role    Role   `json:"role" yaml:"role"`
	Zone    string `json:"zone" yaml:"zone"`
}

// IsController reports whether the node may initiate scheduling.
func (n Node) IsController() bool {
	return n.Role == RoleCloudController || n.Role == RoleEdgeController
}

// Topology is a mapping from node-id to Node plus the identity of "self".
// Built once at startup from the architecture.yaml and never mutated —
// topology changes require a process restart (or, per §10.3, a SIGHUP
// reload that rebuilds the whole Topology value).
type Topology struct {
	SelfID string
	Nodes  map[string]Node
}

// Self returns the local node.
func (t Topology) Self() Node {
	return t.Nodes[t.SelfID]
}

// All returns every node in the topology, in map-iteration order.
func (t Topology) All() []Node {
	out := make([]Node, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		out = append(out, n)
	}
	return out
}

// ByRole returns every node with the given role.
func (t Topology) ByRole(role Role) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Role == role {
			out = append(out, n)
		}
	}
	return out
}

// ByZone returns every node in the given zone.
func (t Topology) ByZone(zone string) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Zone == zone {
			out = append(out, n)
		}
	}
	return out
}

// Get returns the node with the given id.
func (t Topology) Get(id string) (Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Request is the request descriptor that flows through the router.
// hop is non-negative and strictly non-decreasing across forwards.
type Request struct {
	Tag      string `json:"tag"`
	FnName   string `json:"fn_name"`
	Payload  string `json:"payload"`
	Deadline string `json:"deadline,omitempty"`
	Hop      int    `json:"hop"`
	Arch     Arch   `json:"arch"`
}

// EnsureTag fills in a random tag when the caller didn't supply one.
func (r *Request) EnsureTag() {
	if r.Tag == "" {
		r.Tag = uuid.NewString()
	}
}

// ArchWeights is a probability triple over the three static architectures.
// It always lies in the probability simplex: every component is >= 0 and
// the three sum to 1.0 within rounding tolerance.
type ArchWeights struct {
	Centralized   float64 `json:"centralized"`
	Federated     float64 `json:"federated"`
	Decentralized float64 `json:"decentralized"`
}

// ColdStart is the initial weight triple: all traffic decentralized.
func ColdStart() ArchWeights {
	return ArchWeights{Decentralized: 1.0}
}

// ExecResult is the outcome of invoking a function on a FaaS gateway,
// local or remote — the same shape execution_engine.py returns on both
// success and failure (§4.3).
type ExecResult struct {
	Response          string `json:"resp,omitempty"`
	Error             string `json:"error,omitempty"`
	Status            string `json:"status"`
	ExecutionLocation string `json:"execution_location,omitempty"`
	TargetNode        string `json:"target_node,omitempty"`
}

// LoadReading is an instantaneous host load sample (§4.2).
type LoadReading struct {
	Load1      float64
	CPUPercent float64
}

// overloadedLoad1 is the fixed threshold used by the router's
// local-execution shortcut: "hop >= 2 OR load1 <= 2" (§4.6).
const overloadedLoad1 = 2.0

// Overloaded reports whether this reading crosses the router's
// local-execution threshold.
func (r LoadReading) Overloaded() bool {
	return r.Load1 > overloadedLoad1
}
