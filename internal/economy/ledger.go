// Package economy provides the colony's shared resource ledger.
// All reads and writes go through a single mutex so completions firing on
// timer goroutines never lose updates.
package economy

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOverdraw is returned when a debit would drive a counter below zero.
// The allocator checks balances first, so seeing this is a scheduling bug.
var ErrOverdraw = errors.New("ledger overdraw")

// Balance is a point-in-time copy of the ledger counters.
type Balance struct {
	RawA      int `json:"raw_a"`
	RawB      int `json:"raw_b"`
	Processed int `json:"processed"`
	Currency  int `json:"currency"`
}

// String renders all counters, used in invariant dumps.
func (b Balance) String() string {
	return fmt.Sprintf("raw_a=%d raw_b=%d processed=%d currency=%d",
		b.RawA, b.RawB, b.Processed, b.Currency)
}

// Covers reports whether b holds at least the amounts in cost.
func (b Balance) Covers(cost Delta) bool {
	return b.RawA >= cost.RawA &&
		b.RawB >= cost.RawB &&
		b.Processed >= cost.Processed &&
		b.Currency >= cost.Currency
}

func (b Balance) add(d Delta) Balance {
	return Balance{
		RawA:      b.RawA + d.RawA,
		RawB:      b.RawB + d.RawB,
		Processed: b.Processed + d.Processed,
		Currency:  b.Currency + d.Currency,
	}
}

func (b Balance) negative() bool {
	return b.RawA < 0 || b.RawB < 0 || b.Processed < 0 || b.Currency < 0
}

// Delta is a signed change applied to the ledger in one step.
type Delta struct {
	RawA      int
	RawB      int
	Processed int
	Currency  int
}

// Neg returns the delta with every component negated.
func (d Delta) Neg() Delta {
	return Delta{RawA: -d.RawA, RawB: -d.RawB, Processed: -d.Processed, Currency: -d.Currency}
}

// InvariantError reports a ledger observed with a negative counter.
type InvariantError struct {
	Tick    uint64
	Balance Balance
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated at tick %d: %s", e.Tick, e.Balance)
}

// Ledger holds the colony's counters.
type Ledger struct {
	mu  sync.Mutex
	bal Balance
}

// NewLedger creates a ledger with the given opening balance.
func NewLedger(opening Balance) *Ledger {
	return &Ledger{bal: opening}
}

// Balance returns a copy of the current counters.
func (l *Ledger) Balance() Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bal
}

// Apply adds d atomically. A delta that would leave any counter negative is
// rejected whole and nothing changes.
func (l *Ledger) Apply(d Delta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.bal.add(d)
	if next.negative() {
		return fmt.Errorf("%w: applying %+v to %s", ErrOverdraw, d, l.bal)
	}
	l.bal = next
	return nil
}

// Debit subtracts cost atomically.
func (l *Ledger) Debit(cost Delta) error {
	return l.Apply(cost.Neg())
}

// Credit adds yield. Yields are never negative, so a failure here means a
// caller built a bad delta.
func (l *Ledger) Credit(yield Delta) {
	if err := l.Apply(yield); err != nil {
		panic(err)
	}
}

// Check returns an *InvariantError if any counter is negative.
func (l *Ledger) Check(tick uint64) error {
	bal := l.Balance()
	if bal.negative() {
		return &InvariantError{Tick: tick, Balance: bal}
	}
	return nil
}
