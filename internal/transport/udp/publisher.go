// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mandersson1024/intonation-toy-sub002/internal/analysis"
	applog "github.com/mandersson1024/intonation-toy-sub002/internal/log"
)

// SnapshotFunc returns the most recent volume and pitch results. It is
// called once per tick from the publisher goroutine and must be safe to
// call concurrently with analysis updates.
type SnapshotFunc func() (analysis.VolumeMeasurement, analysis.PitchResult)

// Publisher periodically packs the latest analysis results into a binary
// packet and sends it over UDP.
type Publisher struct {
	sender   *Sender
	snapshot SnapshotFunc
	interval time.Duration

	sequenceNum  uint32
	packetBuffer *bytes.Buffer

	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPublisher creates a publisher targeting the given address. The
// interval controls the packet rate; 50ms gives 20 packets per second.
func NewPublisher(targetAddress string, interval time.Duration, snapshot SnapshotFunc) (*Publisher, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot function must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("publish interval must be positive, got %s", interval)
	}

	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		sender:       sender,
		snapshot:     snapshot,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publisher goroutine. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDP: Start called but publisher already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDP: publisher started (interval %s)", p.interval)
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

// Stop signals the publisher goroutine to terminate and waits for it,
// then closes the sender. Idempotent.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return p.sender.Close()
}

/*
Packet layout (BigEndian):

| Field           | Type    | Size (Bytes) |
|-----------------|---------|--------------|
| Sequence Number | uint32  | 4            |
| Timestamp       | int64   | 8            |
| RMS             | float32 | 4            |
| Peak            | float32 | 4            |
| Volume Conf.    | float32 | 4            |
| Frequency       | float32 | 4            |
| Clarity         | float32 | 4            |
| Pitch Conf.     | float32 | 4            |

Frequency is -1 when no pitch is detected.
*/

func (p *Publisher) buildAndSendPacket() {
	vol, pitch := p.snapshot()

	p.sequenceNum++
	p.packetBuffer.Reset()

	fields := []any{
		p.sequenceNum,
		time.Now().UnixNano(),
		float32(vol.RMS),
		float32(vol.Peak),
		float32(vol.Confidence),
		float32(pitch.Frequency),
		float32(pitch.Clarity),
		float32(pitch.Confidence),
	}
	for _, f := range fields {
		if err := binary.Write(p.packetBuffer, binary.BigEndian, f); err != nil {
			applog.Errorf("UDP: packet pack error: %v", err)
			return
		}
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Errorf("UDP: send error: %v", err)
	}
}
