// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "tracktweak/internal/log"
	"tracktweak/internal/meter"
	"tracktweak/internal/transport"
)

// HeaderSize is the number of bytes before the spectrum values.
const HeaderSize = 4 + 8 + 4*4 + 2

var ErrShortPacket = errors.New("udp: packet too short")

// UDPPublisher periodically takes a meter snapshot, packs it into a defined
// binary format, and sends it over UDP using a UDPSender.
// It runs in a separate goroutine managed by Start and Stop methods.
type UDPPublisher struct {
	sender   *UDPSender               // The underlying UDP sender instance.
	source   transport.SnapshotSource // The meter to poll.
	interval time.Duration            // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Monotonically increasing sequence number for packets.

	// Pre-allocated buffers to reduce allocations in buildAndSendPacket.
	snapshot     meter.Snapshot // Reused snapshot, spectrum included.
	udpF32Buffer []float32      // Buffer to hold float32 values for binary packing.
	packetBuffer *bytes.Buffer  // Reusable buffer for constructing the binary packet.
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// It requires a valid UDPSender and snapshot source.
// If the provided interval is invalid (<= 0), it defaults to 33ms (~30Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source transport.SnapshotSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: snapshot source cannot be nil")
	}

	if interval <= 0 {
		interval = 33 * time.Millisecond // Default to ~30Hz if invalid
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process.
// It launches a goroutine that ticks at the configured interval, calling
// buildAndSendPacket on each tick until Stop is called.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture local variables for the goroutine to avoid data races on p.ticker/p.doneChan
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop gracefully signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Level             | float32        | 4            | Linear RMS, channel 0   |
| Momentary         | float32        | 4            | LUFS, ~400 ms           |
| Short-term        | float32        | 4            | LUFS, ~3 s              |
| Integrated        | float32        | 4            | LUFS                    |
| Bin Count         | uint16         | 2            | Number of floats (N)    |
| Spectrum          | []float32      | N * 4        | Display bins in dB      |
+-----------------------------------------------------------------------------+

Readings are sent as measured; receivers treat non-finite values as no data.
*/

// buildAndSendPacket is the core function executed on each ticker interval.
func (p *UDPPublisher) buildAndSendPacket() {
	packet, err := p.buildPacket(time.Now())
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}

	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

// buildPacket snapshots the meter and packs it. The returned slice is valid
// until the next call.
func (p *UDPPublisher) buildPacket(now time.Time) ([]byte, error) {
	p.source.SnapshotInto(&p.snapshot)

	if len(p.udpF32Buffer) != len(p.snapshot.Spectrum) {
		p.udpF32Buffer = make([]float32, len(p.snapshot.Spectrum))
	}
	for i, v := range p.snapshot.Spectrum {
		p.udpF32Buffer[i] = float32(v)
	}
	if len(p.udpF32Buffer) > math.MaxUint16 {
		return nil, fmt.Errorf("spectrum of %d bins does not fit a packet", len(p.udpF32Buffer))
	}

	p.sequenceNum++
	header := struct {
		Sequence   uint32
		Timestamp  int64
		Level      float32
		Momentary  float32
		ShortTerm  float32
		Integrated float32
		Count      uint16
	}{
		Sequence:   p.sequenceNum,
		Timestamp:  now.UnixNano(),
		Level:      float32(p.snapshot.Level),
		Momentary:  float32(p.snapshot.Momentary),
		ShortTerm:  float32(p.snapshot.ShortTerm),
		Integrated: float32(p.snapshot.Integrated),
		Count:      uint16(len(p.udpF32Buffer)),
	}

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, header)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.udpF32Buffer)
	}
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

// Packet is a decoded meter packet.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	Level      float32
	Momentary  float32
	ShortTerm  float32
	Integrated float32
	Spectrum   []float32
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	be := binary.BigEndian
	count := int(be.Uint16(b[28:30]))
	if len(b) < HeaderSize+4*count {
		return Packet{}, fmt.Errorf("%w: %d bins need %d bytes, got %d",
			ErrShortPacket, count, HeaderSize+4*count, len(b))
	}

	pkt := Packet{
		Sequence:   be.Uint32(b[0:4]),
		Timestamp:  time.Unix(0, int64(be.Uint64(b[4:12]))),
		Level:      math.Float32frombits(be.Uint32(b[12:16])),
		Momentary:  math.Float32frombits(be.Uint32(b[16:20])),
		ShortTerm:  math.Float32frombits(be.Uint32(b[20:24])),
		Integrated: math.Float32frombits(be.Uint32(b[24:28])),
		Spectrum:   make([]float32, count),
	}
	for i := range pkt.Spectrum {
		off := HeaderSize + 4*i
		pkt.Spectrum[i] = math.Float32frombits(be.Uint32(b[off : off+4]))
	}
	return pkt, nil
}

// Close implements the io.Closer interface. It gracefully stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
