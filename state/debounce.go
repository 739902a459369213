package state

import (
	"log/slog"
	"sync"
	"time"
)

const defaultFlushDelay = 500 * time.Millisecond

// Debounced batches snapshot writes. Pipeline runs and log-heavy service
// starts update state many times per second; one write per burst is
// enough.
type Debounced struct {
	store *Store
	delay time.Duration

	mu    sync.Mutex
	snap  Snapshot
	dirty bool
	timer *time.Timer
}

// NewDebounced loads the current snapshot and wraps the store. A zero
// delay uses the default.
func NewDebounced(store *Store, delay time.Duration) (*Debounced, error) {
	if delay <= 0 {
		delay = defaultFlushDelay
	}
	snap, _, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Debounced{store: store, delay: delay, snap: snap}, nil
}

// Snapshot returns the current in-memory snapshot, including not yet
// flushed updates.
func (d *Debounced) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.clone()
}

// Update applies fn to the snapshot and schedules a flush. Consecutive
// updates within the delay window coalesce into one write.
func (d *Debounced) Update(fn func(*Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fn(&d.snap)
	d.dirty = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, func() {
			if err := d.Flush(); err != nil {
				slog.Error("Failed to flush state snapshot.", "err", err)
			}
		})
	} else {
		d.timer.Reset(d.delay)
	}
}

// Flush writes the snapshot now if it has pending updates.
func (d *Debounced) Flush() error {
	d.mu.Lock()
	if !d.dirty {
		d.mu.Unlock()
		return nil
	}
	snap := d.snap.clone()
	d.dirty = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	if err := d.store.Save(snap); err != nil {
		// Keep the batch: the next Flush retries it instead of dropping
		// everything accumulated since the last successful save.
		d.mu.Lock()
		d.dirty = true
		d.mu.Unlock()
		return err
	}
	return nil
}

// Close flushes pending updates. It does not close the underlying store.
func (d *Debounced) Close() error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	return d.Flush()
}
