// Package bbs implements the time-bounded bulletin-board message store:
// publish/subscribe with per-channel fan-out, per-peer subscription
// teardown, and periodic expiry-driven cleanup.
package bbs

import (
	"time"

	"github.com/duskchain/fullnode/pkg/core"
)

// Message is one stored bulletin-board entry.
type Message struct {
	Channel string
	MsgID   core.HashT
	Payload []byte
	Expiry  time.Time
	size    uint64
}

// Limits bounds total stored messages, in count and bytes.
type Limits struct {
	MaxCount uint64
	MaxBytes uint64
}

// Board owns every stored message and subscription.
type Board struct {
	limits      Limits
	byID        map[core.HashT]*Message
	byChannel   map[string][]*Message
	subsByChan  map[string]map[string]time.Time // channel -> peerID -> since
	subsByPeer  map[string]map[string]bool       // peerID -> channel set
	totalCount  uint64
	totalBytes  uint64
}

// New builds an empty Board.
func New(limits Limits) *Board {
	return &Board{
		limits:     limits,
		byID:       make(map[core.HashT]*Message),
		byChannel:  make(map[string][]*Message),
		subsByChan: make(map[string]map[string]time.Time),
		subsByPeer: make(map[string]map[string]bool),
	}
}

// PublishResult is the discrete outcome of a publish attempt.
type PublishResult int

const (
	Published PublishResult = iota
	Expired
	Duplicate
)

// Publish stores msg, evicting oldest-first until it fits within limits if
// necessary. Returns the set of subscriber peer ids to fan out to.
func (b *Board) Publish(msg Message, now time.Time) (PublishResult, []string) {
	if !msg.Expiry.After(now) {
		return Expired, nil
	}
	if _, ok := b.byID[msg.MsgID]; ok {
		return Duplicate, nil
	}
	msg.size = uint64(len(msg.Payload))
	for (b.totalCount+1 > b.limits.MaxCount || b.totalBytes+msg.size > b.limits.MaxBytes) && b.evictOldest() {
	}
	b.byID[msg.MsgID] = &msg
	b.byChannel[msg.Channel] = append(b.byChannel[msg.Channel], &msg)
	b.totalCount++
	b.totalBytes += msg.size

	subs := b.subsByChan[msg.Channel]
	out := make([]string, 0, len(subs))
	for peerID := range subs {
		out = append(out, peerID)
	}
	return Published, out
}

func (b *Board) evictOldest() bool {
	var oldestChan string
	var oldestIdx = -1
	var oldest time.Time
	for ch, msgs := range b.byChannel {
		if len(msgs) == 0 {
			continue
		}
		candidate := msgs[0]
		if oldestIdx == -1 || candidate.Expiry.Before(oldest) {
			oldest = candidate.Expiry
			oldestChan = ch
			oldestIdx = 0
		}
	}
	if oldestIdx == -1 {
		return false
	}
	victim := b.byChannel[oldestChan][oldestIdx]
	b.removeMessage(victim)
	return true
}

func (b *Board) removeMessage(msg *Message) {
	delete(b.byID, msg.MsgID)
	msgs := b.byChannel[msg.Channel]
	for i, m := range msgs {
		if m.MsgID == msg.MsgID {
			b.byChannel[msg.Channel] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	b.totalCount--
	b.totalBytes -= msg.size
}

// Subscribe registers peerID's interest in channel, idempotently, and
// returns the backlog the peer should receive (the channel's messages whose
// expiry is after `since`).
func (b *Board) Subscribe(peerID, channel string, since time.Time) []*Message {
	if _, ok := b.subsByChan[channel]; !ok {
		b.subsByChan[channel] = make(map[string]time.Time)
	}
	b.subsByChan[channel][peerID] = since
	if _, ok := b.subsByPeer[peerID]; !ok {
		b.subsByPeer[peerID] = make(map[string]bool)
	}
	b.subsByPeer[peerID][channel] = true

	backlog := make([]*Message, 0)
	for _, m := range b.byChannel[channel] {
		if m.Expiry.After(since) {
			backlog = append(backlog, m)
		}
	}
	return backlog
}

// Unsubscribe removes peerID's interest in channel. A no-op if absent.
func (b *Board) Unsubscribe(peerID, channel string) {
	if subs, ok := b.subsByChan[channel]; ok {
		delete(subs, peerID)
	}
	if chans, ok := b.subsByPeer[peerID]; ok {
		delete(chans, channel)
	}
}

// TeardownPeer removes every subscription held by a disconnecting peer.
func (b *Board) TeardownPeer(peerID string) {
	for channel := range b.subsByPeer[peerID] {
		delete(b.subsByChan[channel], peerID)
	}
	delete(b.subsByPeer, peerID)
}

// Cleanup sweeps expired messages, compacting totals. Returns how many
// messages were removed.
func (b *Board) Cleanup(now time.Time) int {
	removed := 0
	for ch, msgs := range b.byChannel {
		kept := make([]*Message, 0, len(msgs))
		for _, m := range msgs {
			if m.Expiry.After(now) {
				kept = append(kept, m)
				continue
			}
			delete(b.byID, m.MsgID)
			b.totalCount--
			b.totalBytes -= m.size
			removed++
		}
		b.byChannel[ch] = kept
	}
	return removed
}

// Get returns a stored message by id, for serving a peer's BbsGetMsg request.
func (b *Board) Get(msgID core.HashT) (*Message, bool) {
	m, ok := b.byID[msgID]
	return m, ok
}

// TotalCount and TotalBytes expose the invariant §8 checks after every mutation.
func (b *Board) TotalCount() uint64 { return b.totalCount }
func (b *Board) TotalBytes() uint64 { return b.totalBytes }
