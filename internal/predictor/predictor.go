// Package predictor implements the adaptive non-human opponent. It watches
// the running move history of a single duel and proposes a counter-move each
// round by scoring an ensemble of pattern-matching heuristics.
package predictor

import (
	"math/rand"
	"time"

	"github.com/riposte-game/riposte/internal/models"
)

const (
	// maxPatternLen bounds the trailing-substring lookups; longer patterns
	// match rarely and add little.
	maxPatternLen = 5

	// historyCap is the ring capacity per history. Lookups never reach past
	// maxPatternLen+1 symbols, so this is generous.
	historyCap = 64

	numHistories  = 3 // own moves, human moves, interleaved pairs
	histOwn       = 0
	histHuman     = 1
	histJoint     = 2
	numCandidates = numHistories * 2 * 3 * 2
)

// ring is a fixed-length ring buffer of small pattern symbols.
type ring struct {
	buf [historyCap]uint8
	n   int
}

func (r *ring) push(v uint8) {
	r.buf[r.n%historyCap] = v
	r.n++
}

func (r *ring) size() int {
	if r.n < historyCap {
		return r.n
	}
	return historyCap
}

// tail copies the last k symbols into out (oldest first). Reports false when
// fewer than k symbols are retained.
func (r *ring) tail(k int, out []uint8) bool {
	if k > r.size() {
		return false
	}
	start := r.n - k
	for i := 0; i < k; i++ {
		out[i] = r.buf[(start+i)%historyCap]
	}
	return true
}

// patternKey addresses one trailing substring of one history. Patterns are
// integer-encoded (base 3 for the single histories, base 9 for the joint one)
// rather than concatenated strings.
type patternKey struct {
	hist   uint8
	length uint8
	code   uint32
}

// continuation remembers the two moves that immediately followed a pattern
// the last time it was seen.
type continuation struct {
	own   uint8
	human uint8
}

// candidate is one heuristic next-move generator. Its proposal for the
// upcoming round is refreshed after every observed round; its score tracks
// how it would have fared had it been playing all along.
type candidate struct {
	proposal models.Move
	streak   int
	net      int
}

func (c *candidate) score() int {
	return c.streak*c.streak*c.streak + c.net
}

// Predictor holds the per-session pattern state. It is not safe for
// concurrent use; the owning duel serializes access under its own lock.
type Predictor struct {
	rng    *rand.Rand
	hist   [numHistories]ring
	table  map[patternKey]continuation
	cands  [numCandidates]candidate
	rounds int
}

// New creates an empty predictor seeded from the clock.
func New() *Predictor {
	return newWithSource(rand.NewSource(time.Now().UnixNano()))
}

func newWithSource(src rand.Source) *Predictor {
	p := &Predictor{
		rng:   rand.New(src),
		table: make(map[patternKey]continuation),
	}
	for i := range p.cands {
		p.cands[i].proposal = p.randomMove()
	}
	return p
}

func (p *Predictor) randomMove() models.Move {
	return models.Moves[p.rng.Intn(len(models.Moves))]
}

// NextMove returns the move to play this round: the proposal of the
// best-scoring candidate. Scoring is streak³ + net, which strongly prefers a
// candidate on a hot run over one with merely good average accuracy.
func (p *Predictor) NextMove() models.Move {
	best := 0
	for i := 1; i < numCandidates; i++ {
		if p.cands[i].score() > p.cands[best].score() {
			best = i
		}
	}
	return p.cands[best].proposal
}

// Observe feeds a resolved round into the predictor: scores every candidate
// against what the human actually threw, records the round as the
// continuation of every trailing pattern, appends it to the histories, and
// refreshes all 36 proposals for the next round.
func (p *Predictor) Observe(own, human models.Move) {
	if !own.Valid() || !human.Valid() {
		return
	}
	ownSym := uint8(own.Index())
	humanSym := uint8(human.Index())

	for i := range p.cands {
		s := models.Score(p.cands[i].proposal, human)
		p.cands[i].net += s
		if s > 0 {
			p.cands[i].streak++
		} else {
			p.cands[i].streak = 0
		}
	}

	// Record this round as the continuation of every pattern that preceded
	// it, then extend the histories with it.
	cont := continuation{own: ownSym, human: humanSym}
	var window [maxPatternLen]uint8
	for h := 0; h < numHistories; h++ {
		for l := 1; l <= maxPatternLen; l++ {
			if !p.hist[h].tail(l, window[:l]) {
				break
			}
			p.table[p.key(h, window[:l])] = cont
		}
	}
	p.hist[histOwn].push(ownSym)
	p.hist[histHuman].push(humanSym)
	p.hist[histJoint].push(ownSym*3 + humanSym)
	p.rounds++

	p.refreshProposals()
}

func (p *Predictor) key(h int, pattern []uint8) patternKey {
	base := uint32(3)
	if h == histJoint {
		base = 9
	}
	var code uint32
	for _, sym := range pattern {
		code = code*base + uint32(sym)
	}
	return patternKey{hist: uint8(h), length: uint8(len(pattern)), code: code}
}

// lookup finds the continuation for the longest trailing pattern of history h
// currently present in the table.
func (p *Predictor) lookup(h int) (continuation, bool) {
	var window [maxPatternLen]uint8
	max := p.hist[h].size()
	if max > maxPatternLen {
		max = maxPatternLen
	}
	for l := max; l >= 1; l-- {
		if !p.hist[h].tail(l, window[:l]) {
			continue
		}
		if c, ok := p.table[p.key(h, window[:l])]; ok {
			return c, true
		}
	}
	return continuation{}, false
}

// lookupDeeper re-queries the table one level deeper: it extends the trailing
// window with the first-order continuation and looks that pattern up, giving
// the reply-to-the-reply.
func (p *Predictor) lookupDeeper(h int, first continuation) (continuation, bool) {
	sym := first.human
	switch h {
	case histOwn:
		sym = first.own
	case histJoint:
		sym = first.own*3 + first.human
	}
	var window [maxPatternLen]uint8
	max := p.hist[h].size()
	if max > maxPatternLen-1 {
		max = maxPatternLen - 1
	}
	for l := max; l >= 1; l-- {
		if !p.hist[h].tail(l, window[:l]) {
			continue
		}
		extended := append(window[:l:l], sym)
		if c, ok := p.table[p.key(h, extended)]; ok {
			return c, true
		}
	}
	return continuation{}, false
}

// refreshProposals recomputes all candidate moves for the upcoming round.
// The ensemble is 3 histories x 2 continuation sides x 3 transforms x 2
// lookup orders. A candidate whose pattern has no match falls back to a
// uniformly random move.
func (p *Predictor) refreshProposals() {
	i := 0
	for h := 0; h < numHistories; h++ {
		first, firstOK := p.lookup(h)
		second, secondOK := continuation{}, false
		if firstOK {
			second, secondOK = p.lookupDeeper(h, first)
		}
		for _, c := range []struct {
			cont continuation
			ok   bool
		}{{first, firstOK}, {second, secondOK}} {
			for side := 0; side < 2; side++ {
				var guess models.Move
				if c.ok {
					sym := c.cont.human
					if side == 1 {
						sym = c.cont.own
					}
					guess = models.Moves[sym]
				}
				for _, transform := range [3]func(models.Move) models.Move{models.Beats, func(m models.Move) models.Move { return m }, models.Cedes} {
					if c.ok {
						p.cands[i].proposal = transform(guess)
					} else {
						p.cands[i].proposal = p.randomMove()
					}
					i++
				}
			}
		}
	}
}
