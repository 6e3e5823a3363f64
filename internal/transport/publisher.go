// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"time"

	"tracktweak/internal/log"
	"tracktweak/internal/meter"
)

// Publisher polls a SnapshotSource at a fixed interval and sends every
// reading as a Frame through a Transport. It is the slow consumer side of
// the meter handoff.
type Publisher struct {
	source    SnapshotSource
	transport Transport
	meterID   string
	interval  time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequence uint64
	snapshot meter.Snapshot // Reused between ticks.
}

// NewPublisher creates a publisher. If interval is not positive it defaults
// to 33ms (~30Hz).
func NewPublisher(source SnapshotSource, transport Transport, meterID string, interval time.Duration) (*Publisher, error) {
	if source == nil {
		return nil, fmt.Errorf("publisher: snapshot source cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("publisher: transport cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		log.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	return &Publisher{
		source:    source,
		transport: transport,
		meterID:   meterID,
		interval:  interval,
	}, nil
}

// Start launches the polling goroutine. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		log.Warnf("Publisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker, done := p.ticker, p.doneChan

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-done:
				return
			}
		}
	}()
}

// Publish takes one snapshot and sends it. Start calls it on every tick;
// it is exported for callers that drive their own cadence.
func (p *Publisher) Publish() {
	p.source.SnapshotInto(&p.snapshot)
	p.sequence++
	frame := NewFrame(p.meterID, p.sequence, time.Now(), &p.snapshot)
	if err := p.transport.Send(frame); err != nil {
		log.Debugf("Publisher: send failed: %v", err)
	}
}

// Stop halts the polling goroutine and waits for it to exit. It does not
// close the transport.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.ticker.Stop()
	close(p.doneChan)
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Close stops the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
