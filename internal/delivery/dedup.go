// Package delivery holds the push-side idempotency filter. A message that
// was already pushed to a live connection within the retention window is
// never pushed again, regardless of how many times the send step retries.
package delivery

import (
	"log"
	"sync"
	"time"

	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/shardmap"
)

const (
	// DefaultRetention keeps a delivery record long enough to absorb
	// client retries and reconnect replays.
	DefaultRetention = 5 * time.Minute
	// DefaultSweepInterval must stay well below the retention window so
	// memory is reclaimed without risking premature eviction.
	DefaultSweepInterval = time.Minute
)

// Deduplicator records the first successful push per message ID and
// suppresses repeats until the record expires. It knows nothing about
// recipients or transport.
type Deduplicator struct {
	records   *shardmap.Map[time.Time]
	retention time.Duration
	interval  time.Duration

	now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewDeduplicator(retention, sweepInterval time.Duration) *Deduplicator {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	d := &Deduplicator{
		records:   shardmap.New[time.Time](),
		retention: retention,
		interval:  sweepInterval,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	go d.run()
	return d
}

// ShouldDeliver reports whether messageID may be pushed. The first call
// within the retention window returns true and records the delivery; later
// calls return false. Check and insert happen under one shard lock, so two
// concurrent delivery attempts cannot both pass. A repeat hit never renews
// the record.
func (d *Deduplicator) ShouldDeliver(messageID string) bool {
	deliver := false
	d.records.Update(messageID, func(first time.Time, ok bool) (time.Time, bool) {
		if ok && d.now().Sub(first) < d.retention {
			return first, true
		}
		deliver = true
		return d.now(), true
	})
	return deliver
}

// Forget drops the record for messageID so a later attempt may deliver
// again. Callers use it when a recorded push turned out never to reach the
// client's queue.
func (d *Deduplicator) Forget(messageID string) {
	d.records.Delete(messageID)
}

// Stop terminates the background sweep. Safe to call more than once.
func (d *Deduplicator) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Len returns the number of tracked records, expired or not.
func (d *Deduplicator) Len() int {
	return d.records.Len()
}

func (d *Deduplicator) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

func (d *Deduplicator) sweep() {
	cutoff := d.now().Add(-d.retention)
	removed := d.records.Purge(func(_ string, first time.Time) bool {
		return first.Before(cutoff)
	})
	if removed > 0 {
		log.Printf("delivery dedup sweep removed %d records, %d remain", removed, d.records.Len())
	}
}
