package circuit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gridsync/gridsync/internal/core/observability/log"
	"github.com/gridsync/gridsync/internal/core/packets"
	"github.com/gridsync/gridsync/internal/core/wire"
)

// handleFrame decodes one inbound frame and routes it: acks are consumed
// inline, the region handshake wakes Open, everything else goes to the
// sink. Per-frame errors are logged and dropped, never fatal.
func (c *Circuit) handleFrame(frame []byte) {
	c.packetsReceived.Add(1)

	h, err := wire.ParseHeader(frame)
	if err != nil {
		c.decodeDrops.Add(1)
		c.log.Debug("dropping short frame", log.Int("len", len(frame)))
		return
	}
	if h.Zerocoded() {
		if frame, err = wire.ZeroDecode(frame); err != nil {
			c.decodeDrops.Add(1)
			c.log.Warn("dropping frame with bad zero coding", log.Uint32("sequence", h.Sequence), log.Error(err))
			return
		}
	}
	if h.AppendedAcks() {
		var acked []uint32
		if frame, acked, err = stripAppendedAcks(frame); err != nil {
			c.decodeDrops.Add(1)
			c.log.Warn("dropping frame with bad ack trailer", log.Uint32("sequence", h.Sequence), log.Error(err))
			return
		}
		c.processAcks(acked)
	}
	if h.Reliable() {
		c.queueAck(h.Sequence)
	}

	tier, code, n, err := wire.ParseTag(frame[wire.HeaderSize:])
	if err != nil {
		c.decodeDrops.Add(1)
		c.log.Debug("dropping frame without type tag", log.Uint32("sequence", h.Sequence))
		return
	}

	p, err := packets.Decode(tier, code, frame[wire.HeaderSize+n:])
	if err != nil {
		c.decodeDrops.Add(1)
		if errors.Is(err, packets.ErrNoDecoder) {
			c.log.Debug("unknown packet type", log.String("tier", tier.String()), log.Uint8("code", code))
		} else {
			c.log.Warn("malformed packet body", log.String("tier", tier.String()), log.Uint8("code", code), log.Error(err))
		}
		return
	}

	switch v := p.(type) {
	case *packets.PacketAck:
		c.processAcks(v.Sequences)
	case *packets.StartPingCheck:
		if err = c.Send(&packets.CompletePingCheck{PingID: v.PingID}, false); err != nil {
			c.log.Debug("ping reply failed", log.Error(err))
		}
	case *packets.RegionHandshake:
		select {
		case c.handshake <- v:
		default:
		}
		c.sink(Event{Circuit: c, Kind: EventPacket, Packet: p})
	default:
		c.sink(Event{Circuit: c, Kind: EventPacket, Packet: p})
	}
}

// stripAppendedAcks removes the count-suffixed ack trailer from a decoded
// frame and returns the acked sequence numbers.
func stripAppendedAcks(frame []byte) ([]byte, []uint32, error) {
	if len(frame) < wire.HeaderSize+1 {
		return nil, nil, wire.ErrShortBody
	}
	count := int(frame[len(frame)-1])
	trailer := count*4 + 1
	if len(frame)-wire.HeaderSize < trailer {
		return nil, nil, errors.New("circuit: appended acks exceed frame")
	}
	acked := make([]uint32, 0, count)
	r := wire.NewReader(frame[len(frame)-trailer : len(frame)-1])
	for i := 0; i < count; i++ {
		acked = append(acked, r.Uint32())
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	return frame[:len(frame)-trailer], acked, nil
}

// processAcks clears acknowledged entries from the pending table.
func (c *Circuit) processAcks(sequences []uint32) {
	if len(sequences) == 0 {
		return
	}
	c.mu.Lock()
	for _, seq := range sequences {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	c.acksReceived.Add(uint64(len(sequences)))
}

// queueAck records an inbound reliable sequence for the next outbound ack
// batch, waking the batch loop early when the batch is full.
func (c *Circuit) queueAck(seq uint32) {
	c.mu.Lock()
	c.ackQueue = append(c.ackQueue, seq)
	full := len(c.ackQueue) >= c.cfg.AckBatchMax
	c.mu.Unlock()

	if full {
		select {
		case c.ackFull <- struct{}{}:
		default:
		}
	}
}

// PendingCount returns the number of unacknowledged reliable messages.
func (c *Circuit) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ackLoop batches inbound sequence numbers into dedicated ack messages,
// flushing on a full batch or on the batch delay, whichever comes first.
func (c *Circuit) ackLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.AckBatchDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-c.ackFull:
		}
		c.flushAcks()
	}
}

func (c *Circuit) flushAcks() {
	for {
		c.mu.Lock()
		if len(c.ackQueue) == 0 {
			c.mu.Unlock()
			return
		}
		n := len(c.ackQueue)
		if n > c.cfg.AckBatchMax {
			n = c.cfg.AckBatchMax
		}
		batch := make([]uint32, n)
		copy(batch, c.ackQueue[:n])
		c.ackQueue = c.ackQueue[n:]
		c.mu.Unlock()

		if err := c.Send(&packets.PacketAck{Sequences: batch}, false); err != nil {
			c.log.Debug("ack batch send failed", log.Int("count", len(batch)), log.Error(err))
			return
		}
		c.acksSent.Add(uint64(len(batch)))
	}
}

// resendLoop retransmits overdue reliable messages with the resent flag
// set, reporting delivery failure once the resend budget is exhausted.
func (c *Circuit) resendLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.ResendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		c.resendOverdue(time.Now())
	}
}

func (c *Circuit) resendOverdue(now time.Time) {
	var retransmit [][]byte
	var failed []uint32

	c.mu.Lock()
	for seq, entry := range c.pending {
		deadline := time.Duration(float64(c.cfg.ResendTimeout) * float64(entry.resends+1) * c.cfg.BackoffFactor)
		if now.Sub(entry.firstSent) < deadline {
			continue
		}
		if entry.resends >= c.cfg.MaxResends {
			delete(c.pending, seq)
			failed = append(failed, seq)
			continue
		}
		entry.resends++
		entry.frame[0] |= wire.FlagResent
		retransmit = append(retransmit, entry.frame)
	}
	c.mu.Unlock()

	for _, frame := range retransmit {
		if _, err := c.conn.Write(frame); err != nil {
			c.log.Debug("retransmit failed", log.Error(err))
			break
		}
		c.resends.Add(1)
	}
	for _, seq := range failed {
		c.deliveryFailures.Add(1)
		c.log.Warn("reliable delivery failed", log.Uint32("sequence", seq), log.Int("resends", c.cfg.MaxResends))
		c.sink(Event{Circuit: c, Kind: EventDeliveryFailed, Sequence: seq})
	}
}
