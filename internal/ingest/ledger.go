package ingest

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Ledger is the set of keys that already produced a notification during this
// client lifetime. Keys never expire; the set is only cleared by Reset.
type Ledger struct {
	set *cache.Cache

	mu         sync.Mutex
	resetTimer *time.Timer
	resetGen   uint64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{set: cache.New(cache.NoExpiration, 0)}
}

// OrderKey is the ledger key for an order.
func OrderKey(orderID string) string { return "order:" + orderID }

// ReadyKey is the ledger key for an order reaching ready_for_pickup.
func ReadyKey(orderID string) string { return "ready:" + orderID }

// MarkProcessed records key and reports whether it was new.
func (l *Ledger) MarkProcessed(key string) bool {
	return l.set.Add(key, struct{}{}, cache.NoExpiration) == nil
}

// Seen reports whether key was recorded.
func (l *Ledger) Seen(key string) bool {
	_, found := l.set.Get(key)
	return found
}

// Len returns the number of recorded keys.
func (l *Ledger) Len() int {
	return l.set.ItemCount()
}

// Reset clears every key and cancels a scheduled reset.
func (l *Ledger) Reset() {
	l.CancelReset()
	l.set.Flush()
}

// ScheduleReset clears the ledger once after d unless CancelReset is called first.
// A reset already scheduled is left in place so the window is measured from the
// first disconnect.
func (l *Ledger) ScheduleReset(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resetTimer != nil {
		return
	}
	l.resetGen++
	gen := l.resetGen
	l.resetTimer = time.AfterFunc(d, func() { l.fireReset(gen) })
}

// fireReset flushes the set unless the reset of generation gen was cancelled
// or replaced after its timer fired.
func (l *Ledger) fireReset(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resetTimer == nil || gen != l.resetGen {
		return
	}
	l.resetTimer = nil
	l.set.Flush()
}

// CancelReset stops a scheduled reset.
func (l *Ledger) CancelReset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resetTimer != nil {
		l.resetTimer.Stop()
		l.resetTimer = nil
	}
	l.resetGen++
}

// ResetPending reports whether a reset is scheduled.
func (l *Ledger) ResetPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetTimer != nil
}
