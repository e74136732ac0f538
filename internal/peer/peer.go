// Package peer implements a single peer session: login, message demux, and
// the per-connection reactor loop. Adapted from the teacher's peer.Loop
// command/ack dance into a typed envelope dispatch, generalized to the
// full chain/tx/bbs/dependent-tx message set.
package peer

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/netconn"
	"github.com/duskchain/fullnode/internal/wireproto"
	"github.com/duskchain/fullnode/pkg/core"
	"github.com/duskchain/fullnode/pkg/topic"
)

// Flags is the peer session state bitset described in §3.
type Flags uint16

const (
	FlagConnected Flags = 1 << iota
	FlagLoginReceived
	FlagOwner
	FlagProbe
	FlagSerifSent
	FlagHasTreasury
	FlagChocking
	FlagAccepted
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// DisconnectReason codes why a session was torn down, for the fault log.
type DisconnectReason string

const (
	ReasonGraceful           DisconnectReason = "graceful"
	ReasonProtocolViolation  DisconnectReason = "protocol_violation"
	ReasonTimeout            DisconnectReason = "timeout"
	ReasonDrown              DisconnectReason = "drown"
	ReasonForkTooOld         DisconnectReason = "fork_too_old"
	ReasonBanned             DisconnectReason = "banned"
)

type subscriptions struct {
	SendPeers          *topic.SubCh[eventbus.SendPeersEvent]
	ShouldAnnounceAddr *topic.SubCh[eventbus.ShouldAnnounceAddrEvent]
	ShouldRequestPeers *topic.SubCh[eventbus.ShouldRequestPeersEvent]
	BbsDelivered       *topic.SubCh[eventbus.BbsDeliveredEvent]
	TaskAssigned       *topic.SubCh[eventbus.TaskAssignedEvent]
	TxRelayed          *topic.SubCh[eventbus.TxRelayedEvent]
	HeadersReady       *topic.SubCh[eventbus.HeadersReadyEvent]
	BodiesReady        *topic.SubCh[eventbus.BodiesReadyEvent]
	TxReady            *topic.SubCh[eventbus.TxReadyEvent]
	OpaqueReply        *topic.SubCh[eventbus.OpaqueReplyEvent]
	DataMissing        *topic.SubCh[eventbus.DataMissingEvent]
}

func (s *subscriptions) close() {
	s.SendPeers.Close()
	s.ShouldAnnounceAddr.Close()
	s.ShouldRequestPeers.Close()
	s.BbsDelivered.Close()
	s.TaskAssigned.Close()
	s.TxRelayed.Close()
	s.HeadersReady.Close()
	s.BodiesReady.Close()
	s.TxReady.Close()
	s.OpaqueReply.Close()
	s.DataMissing.Close()
}

// Session is one connection to a peer: exactly the state named in §3.
type Session struct {
	PeerID         string
	RemoteAddr     string
	conn           *netconn.Conn
	bus            *eventbus.Bus
	log            zerolog.Logger
	subs           *subscriptions
	Flags          Flags
	TipHeight      uint64
	TipHash        core.HashT
	RejectedKeys   map[wireKey]bool
	LastActivity   time.Time
	shouldClose    atomic.Bool
	closeReason    DisconnectReason
	chocking       atomic.Bool
	ourMinPeerFork uint64
}

type wireKey struct {
	BlockID core.HashT
	IsBody  bool
}

// New constructs a Session for an already-handshaken connection.
func New(bus *eventbus.Bus, log zerolog.Logger, conn *netconn.Conn, ourMinPeerFork uint64) *Session {
	subs := &subscriptions{
		SendPeers:          bus.SendPeers.SubCh(),
		ShouldAnnounceAddr: bus.ShouldAnnounceAddr.SubCh(),
		ShouldRequestPeers: bus.ShouldRequestPeers.SubCh(),
		BbsDelivered:       bus.BbsDelivered.SubCh(),
		TaskAssigned:       bus.TaskAssigned.SubCh(),
		TxRelayed:          bus.TxRelayed.SubCh(),
		HeadersReady:       bus.HeadersReady.SubCh(),
		BodiesReady:        bus.BodiesReady.SubCh(),
		TxReady:            bus.TxReady.SubCh(),
		OpaqueReply:        bus.OpaqueReply.SubCh(),
		DataMissing:        bus.DataMissing.SubCh(),
	}
	return &Session{
		PeerID:         conn.PeerID(),
		RemoteAddr:     conn.RemoteAddr().String(),
		conn:           conn,
		bus:            bus,
		log:            log.With().Str("peer_id", conn.PeerID()).Logger(),
		subs:           subs,
		Flags:          FlagConnected,
		RejectedKeys:   make(map[wireKey]bool),
		LastActivity:   time.Now(),
		ourMinPeerFork: ourMinPeerFork,
	}
}

// SetChocking records the node's backpressure verdict for this peer,
// called from the node's reactor goroutine, never this session's own.
func (s *Session) SetChocking(chocking bool) {
	s.chocking.Store(chocking)
}

// IsChocking reports the peer's current backpressure state.
func (s *Session) IsChocking() bool { return s.chocking.Load() }

// RequestClose asks the session to close itself at its next reactor tick,
// used by the node to enforce the drown threshold from outside the
// session's own goroutine.
func (s *Session) RequestClose(reason DisconnectReason) {
	s.closeReason = reason
	s.shouldClose.Store(true)
}

// Loop runs the session's single-threaded reactor until it closes.
func (s *Session) Loop() {
	defer func() {
		reason := s.closeReason
		if reason == "" {
			reason = ReasonGraceful
		}
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("peer session panicked")
			reason = ReasonProtocolViolation
		}
		s.bus.PeerClosing.Pub(eventbus.PeerClosingEvent{PeerID: s.PeerID, Reason: string(reason)})
		s.subs.close()
		s.conn.Close()
	}()

	if !s.doLogin() {
		return
	}

	for {
		if s.shouldClose.Load() {
			return
		}
		select {
		case event, ok := <-s.subs.SendPeers.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindPeerInfo, event.PeerAddrs)
			}

		case event, ok := <-s.subs.ShouldAnnounceAddr.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindPeerInfoSelf, wireproto.PeerInfoPayload{Addr: event.Addr})
			}

		case event, ok := <-s.subs.ShouldRequestPeers.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindGetExternalAddr, nil)
			}

		case event, ok := <-s.subs.BbsDelivered.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindBbsMsg, wireproto.BbsMsgPayload{
					Channel: event.Channel, MsgID: event.MsgID, Payload: event.Payload,
				})
			}

		case event, ok := <-s.subs.TaskAssigned.C:
			if !ok {
				return
			}
			if event.TargetPeerID != s.PeerID {
				continue
			}
			if event.IsBody {
				s.send(wireproto.KindGetBodyPack, wireproto.GetBodyPackPayload{BlockIDs: []core.HashT{event.BlockID}})
			} else {
				s.send(wireproto.KindGetHdrPack, wireproto.GetHdrPackPayload{FromHeight: event.FromHeight})
			}

		case event, ok := <-s.subs.TxRelayed.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindNewTransaction, wireproto.NewTransactionPayload{Raw: event.Raw, Fluff: event.Fluff})
			}

		case event, ok := <-s.subs.HeadersReady.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindHdrPack, wireproto.HdrPackPayload{
					ParentHash: event.ParentHash, StartHeight: event.StartHeight, HeaderIDs: event.HeaderIDs,
				})
			}

		case event, ok := <-s.subs.BodiesReady.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindBodyPack, wireproto.BodyPackPayload{Bodies: event.Bodies})
			}

		case event, ok := <-s.subs.TxReady.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindNewTransaction, wireproto.NewTransactionPayload{Raw: event.Raw})
			}

		case event, ok := <-s.subs.OpaqueReply.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.Kind(event.Kind), json.RawMessage(event.Payload))
			}

		case event, ok := <-s.subs.DataMissing.C:
			if !ok {
				return
			}
			if event.TargetPeerID == s.PeerID {
				s.send(wireproto.KindDataMissing, wireproto.DataMissingPayload{Kind: event.Kind, ID: event.ID})
			}

		default:
			env, err := s.readWithTimeout(100 * time.Millisecond)
			if err != nil {
				continue
			}
			s.LastActivity = time.Now()
			if err := s.handle(env); err != nil {
				s.log.Warn().Err(err).Str("kind", string(env.Kind)).Msg("message handling fault")
			}
		}
	}
}

func (s *Session) readWithTimeout(d time.Duration) (netconn.Envelope, error) {
	env, err := s.readTimeoutRaw(d)
	if err != nil {
		return netconn.Envelope{}, err
	}
	return env, nil
}

func (s *Session) readTimeoutRaw(d time.Duration) (netconn.Envelope, error) {
	raw := s.conn.ReadTimeout(d)
	if timeoutErr := s.conn.TimeoutErrOrPanic(); timeoutErr != nil {
		return netconn.Envelope{}, timeoutErr
	}
	if raw == nil {
		return netconn.Envelope{}, fmt.Errorf("empty read")
	}
	return netconn.DecodeEnvelope(raw)
}

func (s *Session) doLogin() bool {
	s.send(wireproto.KindLogin, wireproto.LoginPayload{
		Flags:       wireproto.FlagSpreadingTransactions | wireproto.FlagBbs | wireproto.FlagSendPeers,
		MinPeerFork: s.ourMinPeerFork,
	})
	env, err := s.readWithTimeout(10 * time.Second)
	if err != nil || env.Kind != wireproto.KindLogin {
		s.log.Warn().Err(err).Msg("login handshake failed")
		return false
	}
	var login wireproto.LoginPayload
	if err := env.Unmarshal(&login); err != nil {
		return false
	}
	if login.MinPeerFork > s.ourMinPeerFork {
		s.log.Warn().Msg("peer requires a newer fork than we serve, disconnecting")
		return false
	}
	s.Flags |= FlagLoginReceived | FlagAccepted
	if login.Flags.Has(wireproto.FlagOwner) {
		s.Flags |= FlagOwner
	}
	s.bus.PeerLoggedIn.Pub(eventbus.PeerLoggedInEvent{
		PeerID: s.PeerID, Flags: uint16(login.Flags), MinPeerFork: login.MinPeerFork,
	})
	return true
}

func (s *Session) handle(env netconn.Envelope) error {
	switch env.Kind {
	case wireproto.KindPing:
		s.send(wireproto.KindPong, nil)
		return nil
	case wireproto.KindPong:
		return nil
	case wireproto.KindNewTip:
		var p wireproto.NewTipPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.TipHeight, s.TipHash = p.Height, p.Hash
		s.bus.PeerTipAdvertised.Pub(eventbus.PeerTipAdvertisedEvent{
			PeerID: s.PeerID, TipHeight: p.Height, TipHash: p.Hash,
		})
		return nil
	case wireproto.KindHdrPack:
		var p wireproto.HdrPackPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.HdrPackReceived.Pub(eventbus.HdrPackReceivedEvent{
			PeerID: s.PeerID, ParentHash: p.ParentHash, HeaderHashes: p.HeaderIDs,
		})
		return nil
	case wireproto.KindBodyPack:
		var p wireproto.BodyPackPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		for id := range p.Bodies {
			s.bus.BodyReceived.Pub(eventbus.BodyReceivedEvent{PeerID: s.PeerID, BlockID: id})
		}
		return nil
	case wireproto.KindNewTransaction:
		var p wireproto.NewTransactionPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.TxReceived.Pub(eventbus.TxReceivedEvent{
			FromPeerID: s.PeerID, Raw: p.Raw, Fluff: p.Fluff, DepCtx: p.DepCtx,
		})
		return nil
	case wireproto.KindBbsMsg:
		var p wireproto.BbsMsgPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.BbsPublish.Pub(eventbus.BbsPublishEvent{
			Channel: p.Channel, MsgID: p.MsgID, Payload: p.Payload, Expiry: time.Unix(p.Expiry, 0),
		})
		return nil
	case wireproto.KindBbsSubscribe:
		var p wireproto.BbsSubscribePayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.BbsSubscribe.Pub(eventbus.BbsSubscribeEvent{
			PeerID: s.PeerID, Channel: p.Channel, Since: time.Unix(p.SinceUnix, 0),
		})
		return nil
	case wireproto.KindPeerInfo:
		var addrs map[string]string
		if err := env.Unmarshal(&addrs); err != nil {
			return err
		}
		s.bus.PeersReceived.Pub(eventbus.PeersReceivedEvent{FromPeerID: s.PeerID, PeerAddrs: addrs})
		return nil
	case wireproto.KindPeerInfoSelf:
		var p wireproto.PeerInfoPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.PeerAnnouncedAddr.Pub(eventbus.PeerAnnouncedAddrEvent{PeerID: s.PeerID, Addr: p.Addr})
		return nil
	case wireproto.KindGetExternalAddr:
		s.bus.PeersRequested.Pub(eventbus.PeersRequestedEvent{PeerID: s.PeerID})
		return nil
	case wireproto.KindSetDependentContext:
		var p wireproto.SetDependentContextPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.DependentContextSet.Pub(eventbus.DependentContextSetEvent{
			PeerID: s.PeerID, ParentCtx: p.ParentCtx, NewCtx: p.NewCtx,
		})
		return nil
	case wireproto.KindBye:
		s.shouldClose.Store(true)
		return nil

	case wireproto.KindGetHdr:
		var p wireproto.GetHdrPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.HeadersRequested.Pub(eventbus.HeadersRequestedEvent{PeerID: s.PeerID, FromHeight: p.Height, Count: 1})
		return nil
	case wireproto.KindGetHdrPack:
		var p wireproto.GetHdrPackPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.HeadersRequested.Pub(eventbus.HeadersRequestedEvent{PeerID: s.PeerID, FromHeight: p.FromHeight, Count: p.Count})
		return nil
	case wireproto.KindEnumHdrs:
		var p wireproto.EnumHdrsPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.HeadersRequested.Pub(eventbus.HeadersRequestedEvent{PeerID: s.PeerID, FromHeight: p.FromHeight, Count: p.Count})
		return nil
	case wireproto.KindGetBody:
		var p wireproto.GetBodyPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.BodiesRequested.Pub(eventbus.BodiesRequestedEvent{PeerID: s.PeerID, BlockIDs: []core.HashT{p.ID}})
		return nil
	case wireproto.KindGetBodyPack:
		var p wireproto.GetBodyPackPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.BodiesRequested.Pub(eventbus.BodiesRequestedEvent{PeerID: s.PeerID, BlockIDs: p.BlockIDs})
		return nil
	case wireproto.KindDataMissing:
		// The peer we asked doesn't hold what we wanted; the task/wanted
		// registries' own deadline and expiry already drive a retry against
		// a possibly different peer, so there is nothing further to do here.
		return nil

	case wireproto.KindHaveTransaction:
		// Inventory-only announcement. This node learns transactions via
		// NewTransaction broadcasts and does not run a separate haves-based
		// pull protocol for them.
		return nil
	case wireproto.KindGetTransaction:
		var p wireproto.GetTransactionPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.TxRequested.Pub(eventbus.TxRequestedEvent{PeerID: s.PeerID, TxID: p.ID})
		return nil

	case wireproto.KindBbsHaveMsg:
		// Inventory-only announcement; bbs delivery already pushes messages
		// to every live subscriber, so no pull is needed here either.
		return nil
	case wireproto.KindBbsGetMsg:
		var p wireproto.BbsGetMsgPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.BbsMsgRequested.Pub(eventbus.BbsMsgRequestedEvent{PeerID: s.PeerID, Channel: p.Channel, MsgID: p.MsgID})
		return nil
	case wireproto.KindBbsResetSync:
		var p wireproto.BbsResetSyncPayload
		if err := env.Unmarshal(&p); err != nil {
			return err
		}
		s.bus.BbsSubscribe.Pub(eventbus.BbsSubscribeEvent{PeerID: s.PeerID, Channel: p.Channel, Since: time.Time{}})
		return nil

	case wireproto.KindGetCommonState, wireproto.KindGetProofState, wireproto.KindGetProofChainWork,
		wireproto.KindGetProofKernel, wireproto.KindGetProofKernel2, wireproto.KindGetProofUtxo,
		wireproto.KindGetProofShieldedOutp, wireproto.KindGetProofShieldedInp, wireproto.KindGetProofAsset,
		wireproto.KindGetShieldedList, wireproto.KindGetShieldedOutputsAt, wireproto.KindGetEvents,
		wireproto.KindGetStateSummary, wireproto.KindContractVarsEnum, wireproto.KindContractLogsEnum,
		wireproto.KindGetContractVar, wireproto.KindGetContractLogProof, wireproto.KindAuthentication:
		s.bus.OpaqueQuery.Pub(eventbus.OpaqueQueryEvent{PeerID: s.PeerID, Kind: string(env.Kind), Payload: env.Payload})
		return nil

	default:
		return fmt.Errorf("unhandled message kind: %s", env.Kind)
	}
}

func (s *Session) send(kind wireproto.Kind, payload any) {
	if err := s.conn.WriteEnvelope(kind, payload); err != nil {
		s.log.Debug().Err(err).Str("kind", string(kind)).Msg("write failed")
		s.shouldClose.Store(true)
	}
}
