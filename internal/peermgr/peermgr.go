// Package peermgr implements the address book: peer-info rating/backoff,
// connection maintenance (dialing seeds, seeking new peers when below the
// minimum), and beacon-fed discovery. Adapted from the teacher's peer
// factory, generalized from a single-purpose dialer into an address-book
// manager that hands off completed connections to the node for promotion
// into peer sessions.
package peermgr

import (
	"math"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/netconn"
	"github.com/duskchain/fullnode/pkg/set"
	"github.com/duskchain/fullnode/pkg/syncqueue"
	"github.com/duskchain/fullnode/pkg/topic"
)

// ratingDecayHalfLife is how long an adjusted-rating penalty takes to decay
// by half. Open Question in the spec: we resolve it as exponential decay
// with this half-life, applied uniformly to positive and negative ratings.
const ratingDecayHalfLife = 30 * time.Minute

// Info is a persistent address-book entry, independent of whether a
// session is currently open for it.
type Info struct {
	ID        string
	Addr      string
	Rating    float64
	LastSeen  time.Time
	BanUntil  time.Time
	updatedAt time.Time
}

// AdjustedRating applies the time-decaying penalty described in §3: a
// rating drifts toward zero over ratingDecayHalfLife rather than staying
// permanently depressed after a single bad interaction.
func (i Info) AdjustedRating(now time.Time) float64 {
	elapsed := now.Sub(i.updatedAt)
	if elapsed <= 0 {
		return i.Rating
	}
	decay := math.Pow(0.5, elapsed.Hours()/ratingDecayHalfLife.Hours())
	return i.Rating * decay
}

// Params configures a Manager.
type Params struct {
	RuntimeID     string
	ListenAddr    string
	Listen        bool
	MinPeers      int
	MaxPeers      int
	SeekPeersFreq time.Duration
	SeedAddrs     []string
}

type subscriptions struct {
	PeerAnnouncedAddr *topic.SubCh[eventbus.PeerAnnouncedAddrEvent]
	PeerClosing       *topic.SubCh[eventbus.PeerClosingEvent]
	PeersReceived     *topic.SubCh[eventbus.PeersReceivedEvent]
	PeersRequested    *topic.SubCh[eventbus.PeersRequestedEvent]
	BeaconRx          *topic.SubCh[eventbus.BeaconRxEvent]
	TaskTimedOut      *topic.SubCh[eventbus.TaskTimedOutEvent]
}

// Manager owns the address book and connection maintenance loop.
type Manager struct {
	params        Params
	bus           *eventbus.Bus
	log           zerolog.Logger
	subs          *subscriptions
	book          map[string]*Info
	knownPeers    *set.Set[string]
	newConns      chan *netconn.Conn
	newAddrs      *syncqueue.AddrQueue
	listenStarted atomic.Bool
}

// New constructs a Manager subscribed to the bus.
func New(params Params, bus *eventbus.Bus, log zerolog.Logger) *Manager {
	subs := &subscriptions{
		PeerAnnouncedAddr: bus.PeerAnnouncedAddr.SubCh(),
		PeerClosing:       bus.PeerClosing.SubCh(),
		PeersReceived:     bus.PeersReceived.SubCh(),
		PeersRequested:    bus.PeersRequested.SubCh(),
		BeaconRx:          bus.BeaconRx.SubCh(),
		TaskTimedOut:      bus.TaskTimedOut.SubCh(),
	}
	return &Manager{
		params:     params,
		bus:        bus,
		log:        log,
		subs:       subs,
		book:       make(map[string]*Info),
		knownPeers: set.NewSet[string](),
		newConns:   make(chan *netconn.Conn, 256),
		newAddrs:   syncqueue.New(),
	}
}

// NewConns exposes freshly-dialed/accepted connections for the node to
// promote into peer sessions.
func (m *Manager) NewConns() <-chan *netconn.Conn { return m.newConns }

// Rate applies a rating delta to a known peer, e.g. on timeout or protocol fault.
func (m *Manager) Rate(peerID string, delta float64, now time.Time) {
	info, ok := m.book[peerID]
	if !ok {
		return
	}
	info.Rating = info.AdjustedRating(now) + delta
	info.updatedAt = now
}

// Ban marks a peer as banned until the given time.
func (m *Manager) Ban(peerID string, until time.Time) {
	if info, ok := m.book[peerID]; ok {
		info.BanUntil = until
	}
}

// IsBanned reports whether a peer is currently within its ban window.
func (m *Manager) IsBanned(peerID string, now time.Time) bool {
	info, ok := m.book[peerID]
	return ok && now.Before(info.BanUntil)
}

// AdjustedRating returns a peer's current decayed rating, 0 if unknown.
func (m *Manager) AdjustedRating(peerID string, now time.Time) float64 {
	if info, ok := m.book[peerID]; ok {
		return info.AdjustedRating(now)
	}
	return 0
}

func (m *Manager) upsert(id, addr string, now time.Time) {
	if info, ok := m.book[id]; ok {
		info.Addr = addr
		info.LastSeen = now
		return
	}
	m.book[id] = &Info{ID: id, Addr: addr, LastSeen: now, updatedAt: now}
}

// Loop runs the connection-maintenance reactor: dial seeds, optionally
// listen, and periodically seek new peers while below MinPeers.
func (m *Manager) Loop() {
	go m.drainNewAddrs()

	if len(m.params.SeedAddrs) > 0 {
		m.newAddrs.Push(m.params.SeedAddrs...)
	}
	if m.params.Listen && m.params.ListenAddr != "" {
		go m.listen()
	}

	ticker := time.NewTicker(m.params.SeekPeersFreq)
	defer ticker.Stop()
	for {
		select {
		case event := <-m.subs.PeerAnnouncedAddr.C:
			m.upsert(event.PeerID, event.Addr, time.Now())

		case event := <-m.subs.PeerClosing.C:
			m.knownPeers.Remove(event.PeerID)

		case event := <-m.subs.PeersReceived.C:
			for id, addr := range event.PeerAddrs {
				if id != m.params.RuntimeID && !m.knownPeers.Includes(id) {
					m.newAddrs.Push(addr)
				}
			}

		case event := <-m.subs.PeersRequested.C:
			addrs := make(map[string]string, len(m.book))
			for id, info := range m.book {
				addrs[id] = info.Addr
			}
			m.bus.SendPeers.Pub(eventbus.SendPeersEvent{TargetPeerID: event.PeerID, PeerAddrs: addrs})

		case event := <-m.subs.BeaconRx.C:
			if event.NodeID != m.params.RuntimeID && !m.knownPeers.Includes(event.NodeID) {
				m.newAddrs.Push(event.ListenAddr)
			}

		case event := <-m.subs.TaskTimedOut.C:
			m.Rate(event.PeerID, -1, time.Now())

		case <-ticker.C:
			m.seekNewPeers()
		}
	}
}

func (m *Manager) drainNewAddrs() {
	for {
		for addr, ok := m.newAddrs.Pop(); ok; addr, ok = m.newAddrs.Pop() {
			conn, err := netconn.Dial(netconn.HandshakeParams{RuntimeID: m.params.RuntimeID}, addr)
			if err != nil {
				m.log.Debug().Str("addr", addr).Err(err).Msg("dial failed")
				continue
			}
			if conn.HasErr() {
				conn.CloseIfPossible(0)
				continue
			}
			m.newConns <- conn
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func (m *Manager) listen() {
	if m.listenStarted.Load() {
		return
	}
	m.listenStarted.Store(true)
	addr, err := net.ResolveTCPAddr("tcp", m.params.ListenAddr)
	if err != nil {
		m.log.Error().Err(err).Msg("resolve listen addr")
		return
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		m.log.Error().Err(err).Msg("listen")
		return
	}
	defer ln.Close()
	for {
		tcpConn, err := ln.AcceptTCP()
		if err != nil {
			continue
		}
		conn := netconn.NewConn(netconn.HandshakeParams{RuntimeID: m.params.RuntimeID}, tcpConn)
		if conn.HasErr() {
			conn.CloseIfPossible(0)
			continue
		}
		m.newConns <- conn
	}
}

func (m *Manager) seekNewPeers() {
	if m.knownPeers.Size() >= m.params.MinPeers || m.knownPeers.Size() == 0 {
		return
	}
	ids := m.knownPeers.ToList()
	target := ids[rand.Intn(len(ids))]
	m.bus.ShouldRequestPeers.Pub(eventbus.ShouldRequestPeersEvent{TargetPeerID: target})
}

// MarkConnected records that a session for peerID is now open.
func (m *Manager) MarkConnected(peerID string) {
	m.knownPeers.Add(peerID)
}

// ConnectedCount reports how many peer sessions are currently open.
func (m *Manager) ConnectedCount() int {
	return m.knownPeers.Size()
}
