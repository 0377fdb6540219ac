package scope

import "sync"

type pairState uint8

const (
	pairIntroducing pairState = 1 << iota
	pairMet
	pairNewerLeft
	pairOlderLeft
)

// pairKey names one introduction. The newer member wires the pair.
type pairKey struct {
	newer, older *entry
}

// pairs records which members have met. A departure reaches a peer only
// once the pair has met; a departure during the introduction itself is
// handed back to the introducer and delivered after the arrivals.
type pairs struct {
	mu sync.Mutex
	m  map[pairKey]pairState
}

func newPairs() *pairs {
	return &pairs{m: make(map[pairKey]pairState)}
}

func (ps *pairs) begin(k pairKey) {
	ps.mu.Lock()
	ps.m[k] = pairIntroducing
	ps.mu.Unlock()
}

// abandon forgets an introduction that delivered nothing.
func (ps *pairs) abandon(k pairKey) {
	ps.mu.Lock()
	delete(ps.m, k)
	ps.mu.Unlock()
}

// finish marks k met and reports which sides left while it was in progress.
func (ps *pairs) finish(k pairKey) (newerLeft, olderLeft bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	st, ok := ps.m[k]
	if !ok {
		return false, false
	}
	newerLeft = st&pairNewerLeft != 0
	olderLeft = st&pairOlderLeft != 0
	if newerLeft || olderLeft {
		delete(ps.m, k)
	} else {
		ps.m[k] = pairMet
	}
	return newerLeft, olderLeft
}

// leave drops e's pairs with members and returns the members that have met
// e. Introductions still in progress are marked and left to finish.
func (ps *pairs) leave(e *entry, members []*entry) []*entry {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var met []*entry
	for _, p := range members {
		for _, k := range [2]pairKey{{newer: e, older: p}, {newer: p, older: e}} {
			st, ok := ps.m[k]
			if !ok {
				continue
			}
			switch {
			case st == pairMet:
				delete(ps.m, k)
				met = append(met, p)
			case k.newer == e:
				ps.m[k] = st | pairNewerLeft
			default:
				ps.m[k] = st | pairOlderLeft
			}
		}
	}
	return met
}

func (ps *pairs) reset() {
	ps.mu.Lock()
	ps.m = make(map[pairKey]pairState)
	ps.mu.Unlock()
}
