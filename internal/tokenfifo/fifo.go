// Package tokenfifo implements the fixed-capacity ring of pending
// auth tokens handed off between the client-login step and the
// char-server validation step.
package tokenfifo

import (
	"sync"

	"github.com/originline/loginauth/internal/constants"
	"github.com/originline/loginauth/internal/model"
)

// FIFO is a fixed-capacity ring buffer of tokens. Allocation always
// succeeds by overwriting the oldest slot — there is no separate
// expiry, pruning happens implicitly on overwrite.
type FIFO struct {
	mu   sync.Mutex
	ring [constants.AuthFIFOSize]model.Token
	next int
}

// New returns an empty FIFO.
func New() *FIFO {
	return &FIFO{}
}

// Allocate writes tok into the next ring slot, wrapping as needed, and
// returns the slot index it landed in.
func (f *FIFO) Allocate(tok model.Token) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot := f.next
	f.ring[slot] = tok
	f.next = (f.next + 1) % constants.AuthFIFOSize
	return slot
}

// Consume scans the ring for the first token matching the given
// tuple, consumed or not. On a match against an unconsumed slot it
// marks the slot consumed and returns (token, true,
// wasAlreadyConsumed=false). A match against an
// already-consumed slot returns (token, true, true) so the caller can
// distinguish first-use from replay.
func (f *FIFO) Consume(accountID, loginID1, loginID2 int32, sex model.Sex, clientIP string) (model.Token, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.ring {
		tok := f.ring[i]
		if tok.Matches(accountID, loginID1, loginID2, sex, clientIP) {
			alreadyConsumed := tok.Consumed
			if !alreadyConsumed {
				f.ring[i].Consumed = true
			}
			return f.ring[i], true, alreadyConsumed
		}
	}
	return model.Token{}, false, false
}
