package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the router depends on them.

// Execer invokes functions on the local FaaS gateway or forwards a
// scheduling request to a peer agent (§4.3). Implemented by
// infra/execclient.
type Execer interface {
	InvokeLocal(ctx context.Context, fnName, payload string) ExecResult
	InvokeRemote(ctx context.Context, targetID, targetAddress, fnName, payload string) ExecResult
	Forward(ctx context.Context, url string, req any) (body []byte, status int, err error)
}

// LoadSampler reports host load, consulted by the router's
// local-execution shortcut (§4.2, §4.6). Implemented by
// infra/loadprobe.
type LoadSampler interface {
	Sample() LoadReading
}

// Targeter picks a target node or zone weighted by recent performance,
// or uniformly at random as a fallback (§4.4). Implemented by
// the selector package.
type Targeter interface {
	SelectTarget(candidates []Node, fnName string) (Node, error)
	SelectZone(candidates []Node, fnName string) (Node, error)
	SelectRandom(candidates []Node) (Node, error)
}
