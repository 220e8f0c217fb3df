package match

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"
)

// Dealer draws up to n letters from pool for a player's rack.
type Dealer interface {
	Deal(matchID string, turn int, player string, pool []byte, n int) []byte
}

// SeededDealer shuffles the pool with a generator seeded from the match, turn
// and player, so a refill is reproducible.
type SeededDealer struct{}

func (SeededDealer) Deal(matchID string, turn int, player string, pool []byte, n int) []byte {
	h := fnv.New64a()
	h.Write([]byte(matchID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(turn)))
	h.Write([]byte{0})
	h.Write([]byte(player))
	seed := h.Sum64()

	r := rand.New(rand.NewPCG(seed, seed>>1|1))
	out := append([]byte(nil), pool...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// fillRacks drops letters no open cell still needs from both racks and tops
// each back up to the rack size. Letters are only drawn from what open cells
// need, so a non-empty rack can always make progress.
func (e *Engine) fillRacks(m *Match, needed []byte) {
	st := m.Crossword
	if st.Racks == nil {
		st.Racks = make(map[string][]string, 2)
	}
	for _, p := range m.Players {
		pool := make(map[byte]int)
		for _, b := range needed {
			pool[b]++
		}
		kept := make([]string, 0, e.rules.RackSize)
		for _, l := range st.Racks[p] {
			if len(kept) == e.rules.RackSize {
				break
			}
			if pool[l[0]] > 0 {
				pool[l[0]]--
				kept = append(kept, l)
			}
		}
		if free := e.rules.RackSize - len(kept); free > 0 {
			var rest []byte
			for _, b := range needed {
				if pool[b] > 0 {
					pool[b]--
					rest = append(rest, b)
				}
			}
			for _, b := range e.dealer.Deal(m.ID, m.TurnNumber, p, rest, free) {
				if len(kept) == e.rules.RackSize {
					break
				}
				kept = append(kept, string(b))
			}
		}
		st.Racks[p] = kept
	}
}
