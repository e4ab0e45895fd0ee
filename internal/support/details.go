package support

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

// Refund is a synthesized refund confirmation. No payment system is involved.
type Refund struct {
	ID     string
	Amount int
	Days   int
}

// Reorder is a synthesized reorder confirmation.
type Reorder struct {
	OrderID    string
	ETAMinutes int
}

var settlementDays = [...]int{3, 5, 7}

// Details produces placeholder refund and reorder values.
type Details struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDetails uses src for randomness, or a time-seeded PCG when src is nil.
func NewDetails(src rand.Source) *Details {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	return &Details{rng: rand.New(src)}
}

// between returns a random integer in [lo, hi].
func (d *Details) between(lo, hi int) int {
	return lo + d.rng.IntN(hi-lo+1)
}

// Refund returns an RF-prefixed 6-digit id, an amount in [150,800] and
// settlement days in {3,5,7}.
func (d *Details) Refund() Refund {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Refund{
		ID:     fmt.Sprintf("RF%d", d.between(100000, 999999)),
		Amount: d.between(150, 800),
		Days:   settlementDays[d.rng.IntN(len(settlementDays))],
	}
}

// Reorder returns a 9-digit order id and an ETA in [30,50] minutes.
func (d *Details) Reorder() Reorder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Reorder{
		OrderID:    strconv.Itoa(d.between(100000000, 999999999)),
		ETAMinutes: d.between(30, 50),
	}
}
