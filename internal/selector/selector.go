// Package selector picks a target node or zone for a function call by
// weighting candidates against their recent average response time
// (§4.4). The weighting scheme — product of every other candidate's
// weight, normalized to a probability simplex — is target_selector.py's
// _weighted_selection translated line for line, including its
// degenerate-input fallback to uniform random choice.
package selector

import (
	"math/rand"

	"github.com/edgefaas/scheduler/internal/domain"
	"github.com/edgefaas/scheduler/internal/infra/store"
)

// Selector chooses targets using a response-time window keyed by
// (identifier, fn_name), where identifier is a node id for SelectTarget
// and a zone name for SelectZone (§4.1, §4.4).
type Selector struct {
	responseLog *store.Window
	rand        *rand.Rand
}

var _ domain.Targeter = (*Selector)(nil)

// New builds a Selector backed by responseLog. rnd may be nil, in which
// case a private source seeded with 1 is used; tests pass their own
// seeded *rand.Rand.
func New(responseLog *store.Window, rnd *rand.Rand) *Selector {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	return &Selector{responseLog: responseLog, rand: rnd}
}

// SelectTarget chooses one node from candidates, weighting each by its
// recent average response time for fnName (§4.4).
func (s *Selector) SelectTarget(candidates []domain.Node, fnName string) (domain.Node, error) {
	return s.weightedPick(candidates, fnName, func(n domain.Node) string { return n.ID })
}

// SelectZone chooses one node — representing its zone — from candidates,
// weighting each by the zone's recent average response time for fnName.
func (s *Selector) SelectZone(candidates []domain.Node, fnName string) (domain.Node, error) {
	return s.weightedPick(candidates, fnName, func(n domain.Node) string { return n.Zone })
}

// SelectRandom picks uniformly at random, used when the router has no
// performance signal to weight by.
func (s *Selector) SelectRandom(candidates []domain.Node) (domain.Node, error) {
	if len(candidates) == 0 {
		return domain.Node{}, domain.ErrNoCandidates
	}
	return candidates[s.rand.Intn(len(candidates))], nil
}

func (s *Selector) weightedPick(candidates []domain.Node, fnName string, keyFor func(domain.Node) string) (domain.Node, error) {
	if len(candidates) == 0 {
		return domain.Node{}, domain.ErrNoCandidates
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	weights := make([]float64, len(candidates))
	for i, n := range candidates {
		weights[i] = s.responseLog.Average(store.ResponseKey(keyFor(n), fnName))
	}

	idx, ok := weightedSelection(weights, s.rand)
	if !ok {
		return s.SelectRandom(candidates)
	}
	return candidates[idx], nil
}

// weightedSelection implements the product-of-others weighting: for
// each candidate k, its selection numerator is the product of every
// OTHER candidate's weight, so a candidate with a LOW average response
// time (a fast node) ends up with a HIGH numerator once divided by the
// sum. ok is false when the denominator is zero or any numerator is
// negative, signaling the caller should fall back to uniform random —
// exactly target_selector.py's degenerate-input guard.
func weightedSelection(weights []float64, rnd *rand.Rand) (idx int, ok bool) {
	n := len(weights)
	numerators := make([]float64, n)
	denominator := 0.0

	for k := 0; k < n; k++ {
		product := 1.0
		for i, w := range weights {
			if i == k {
				continue
			}
			product *= w
		}
		numerators[k] = product
		denominator += product
	}

	if denominator == 0 {
		return 0, false
	}
	for _, num := range numerators {
		if num < 0 {
			return 0, false
		}
	}

	r := rnd.Float64() * denominator
	cumulative := 0.0
	for k, num := range numerators {
		cumulative += num
		if r <= cumulative {
			return k, true
		}
	}
	return n - 1, true
}
