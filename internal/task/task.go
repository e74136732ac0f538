// Package task implements the outstanding header/body fetch task registry:
// tasks keyed by (block-id, is-body), assignment to eligible peers by
// adjusted-rating, and chocking/drown backpressure bookkeeping. Everything
// here runs on the single reactor thread; there is no internal locking.
package task

import (
	"time"

	"github.com/duskchain/fullnode/pkg/core"
)

// Key uniquely identifies a fetch task.
type Key struct {
	BlockID core.HashT
	IsBody  bool
}

// FastSyncWindow bounds the height range a body task belongs to.
type FastSyncWindow struct {
	H0     uint64
	HTxoLo uint64
}

// Task is one outstanding fetch. A Task is either in the registry's
// unassigned list or bound to exactly one peer's queue, never both.
type Task struct {
	Key          Key
	NeededCount  int
	AssignedPeer string // empty when unassigned
	AssignedTime time.Time
	Window       *FastSyncWindow
	TargetTip    core.HashT
	SizeBytes    uint64
	retries      map[string]int // peerID -> timeout count, for rejected-key promotion
}

// Kind reports the caps bucket a task belongs to.
func (t *Task) Kind() string {
	if t.Key.IsBody {
		return "body"
	}
	return "header"
}

// Candidate is the assignment-relevant view of a peer, supplied by the
// caller (the node orchestrator) so this package never imports the peer
// session type and stays free of the peer/task import cycle.
type Candidate struct {
	PeerID          string
	Connected       bool
	LoggedIn        bool
	TipHeight       uint64
	RejectedKeys    map[Key]bool
	InFlightHeaders int
	InFlightBodies  int
	QueueDepth      int
	LatencyMs       int64
	AdjustedRating  float64
}

// Caps bounds concurrent requests, globally and per peer.
type Caps struct {
	MaxConcurrentHdrPacks int
	MaxConcurrentBodies   int
	MaxPerPeerHeaders     int
	MaxPerPeerBodies      int
}

// Assignment is one task bound to a peer this round.
type Assignment struct {
	Task   *Task
	PeerID string
}

// Registry owns every outstanding task.
type Registry struct {
	byKey      map[Key]*Task
	unassigned []*Task
	queues     map[string][]*Task // peerID -> its bound tasks, in bind order
	inFlight   map[string]int     // "header" | "body" -> global in-flight count
}

// New builds an empty task registry.
func New() *Registry {
	return &Registry{
		byKey:      make(map[Key]*Task),
		unassigned: make([]*Task, 0),
		queues:     make(map[string][]*Task),
		inFlight:   map[string]int{"header": 0, "body": 0},
	}
}

// Request creates and enqueues a task for key if one doesn't already exist,
// returning the (possibly pre-existing) task and whether it was newly created.
func (r *Registry) Request(key Key, targetTip core.HashT, window *FastSyncWindow) (*Task, bool) {
	if existing, ok := r.byKey[key]; ok {
		existing.NeededCount++
		return existing, false
	}
	t := &Task{
		Key:         key,
		NeededCount: 1,
		Window:      window,
		TargetTip:   targetTip,
		retries:     make(map[string]int),
	}
	r.byKey[key] = t
	r.unassigned = append(r.unassigned, t)
	return t, true
}

// eligible implements the assignment-policy predicate from 4.1 rule 1.
func eligible(t *Task, c Candidate, caps Caps) bool {
	if !c.Connected || !c.LoggedIn {
		return false
	}
	if c.TipHeight < heightHint(t) {
		return false
	}
	if c.RejectedKeys != nil && c.RejectedKeys[t.Key] {
		return false
	}
	if t.Key.IsBody {
		return c.InFlightBodies < caps.MaxPerPeerBodies
	}
	return c.InFlightHeaders < caps.MaxPerPeerHeaders
}

// heightHint extracts the height the peer must have reached to serve this
// task; body tasks carry it via their fast-sync window, header tasks via
// the window's upper bound when present, else zero (any tip qualifies).
func heightHint(t *Task) uint64 {
	if t.Window != nil {
		return t.Window.HTxoLo
	}
	return 0
}

// betterCandidate implements rule 3's tie-break chain: highest adjusted
// rating, then lowest queue depth, then lowest recent latency.
func betterCandidate(a, b Candidate) bool {
	if a.AdjustedRating != b.AdjustedRating {
		return a.AdjustedRating > b.AdjustedRating
	}
	if a.QueueDepth != b.QueueDepth {
		return a.QueueDepth < b.QueueDepth
	}
	return a.LatencyMs < b.LatencyMs
}

// AssignPending walks the unassigned list and binds as many tasks as
// possible to eligible candidates, respecting global and per-peer caps.
// Candidates' InFlight counters are treated as a starting snapshot and
// incremented locally as this round makes assignments.
func (r *Registry) AssignPending(now time.Time, candidates []Candidate, caps Caps) []Assignment {
	byPeer := make(map[string]*Candidate, len(candidates))
	for i := range candidates {
		byPeer[candidates[i].PeerID] = &candidates[i]
	}
	out := make([]Assignment, 0)
	remaining := r.unassigned[:0:0]
	globalHdr := r.inFlight["header"]
	globalBody := r.inFlight["body"]

	for _, t := range r.unassigned {
		if t.Key.IsBody && globalBody >= caps.MaxConcurrentBodies {
			remaining = append(remaining, t)
			continue
		}
		if !t.Key.IsBody && globalHdr >= caps.MaxConcurrentHdrPacks {
			remaining = append(remaining, t)
			continue
		}
		var best *Candidate
		for _, c := range byPeer {
			if !eligible(t, *c, caps) {
				continue
			}
			if best == nil || betterCandidate(*c, *best) {
				best = c
			}
		}
		if best == nil {
			remaining = append(remaining, t)
			continue
		}
		t.AssignedPeer = best.PeerID
		t.AssignedTime = now
		r.queues[best.PeerID] = append(r.queues[best.PeerID], t)
		out = append(out, Assignment{Task: t, PeerID: best.PeerID})
		if t.Key.IsBody {
			best.InFlightBodies++
			globalBody++
		} else {
			best.InFlightHeaders++
			globalHdr++
		}
	}
	r.unassigned = remaining
	r.inFlight["header"] = globalHdr
	r.inFlight["body"] = globalBody
	return out
}

// Complete removes a task after its peer successfully delivered it.
func (r *Registry) Complete(key Key) {
	t, ok := r.byKey[key]
	if !ok {
		return
	}
	r.unbind(t)
	delete(r.byKey, key)
}

// Timeout returns a task to unassigned, decrementing its peer's in-flight
// accounting. After maxRetries timeouts from the same peer, that peer is
// reported via the returned bool; the caller (the node, in its per-peer
// state) keeps that rejection for the connection's lifetime.
func (r *Registry) Timeout(key Key, peerID string, maxRetries int) (rejectPeer bool) {
	t, ok := r.byKey[key]
	if !ok || t.AssignedPeer != peerID {
		return false
	}
	r.unbind(t)
	t.retries[peerID]++
	r.unassigned = append(r.unassigned, t)
	if t.retries[peerID] >= maxRetries {
		return true
	}
	return false
}

// ReassignAllOf moves a disconnecting peer's whole queue back to unassigned,
// preserving original order, as required when a peer session tears down.
func (r *Registry) ReassignAllOf(peerID string) {
	queue := r.queues[peerID]
	if len(queue) == 0 {
		return
	}
	delete(r.queues, peerID)
	for _, t := range queue {
		if t.Key.IsBody {
			r.inFlight["body"]--
		} else {
			r.inFlight["header"]--
		}
		t.AssignedPeer = ""
		t.AssignedTime = time.Time{}
	}
	r.unassigned = append(append([]*Task{}, queue...), r.unassigned...)
}

func (r *Registry) unbind(t *Task) {
	if t.AssignedPeer == "" {
		return
	}
	queue := r.queues[t.AssignedPeer]
	for i, q := range queue {
		if q.Key == t.Key {
			r.queues[t.AssignedPeer] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if t.Key.IsBody {
		r.inFlight["body"]--
	} else {
		r.inFlight["header"]--
	}
	t.AssignedPeer = ""
}

// PeerQueueBytes sums the sizes of tasks currently bound to peerID, the
// quantity chocking/drown thresholds are measured against.
func (r *Registry) PeerQueueBytes(peerID string) uint64 {
	var total uint64
	for _, t := range r.queues[peerID] {
		total += t.SizeBytes
	}
	return total
}

// Unassigned returns the current unassigned task count.
func (r *Registry) Unassigned() int { return len(r.unassigned) }

// QueueOf returns a copy of peerID's bound task queue.
func (r *Registry) QueueOf(peerID string) []*Task {
	return append([]*Task{}, r.queues[peerID]...)
}

// All returns every task the registry currently tracks, for invariant checks.
func (r *Registry) All() []*Task {
	out := make([]*Task, 0, len(r.byKey))
	for _, t := range r.byKey {
		out = append(out, t)
	}
	return out
}
