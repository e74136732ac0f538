// Package eventbus wires every node component together through typed
// pub-sub topics instead of direct references. It is the single event
// reactor's nervous system: every cross-component signal - net traffic,
// timers, worker completions, processor callbacks - passes through it.
package eventbus

import "github.com/duskchain/fullnode/pkg/topic"

// Bus is the full set of topics shared by the node's components.
type Bus struct {
	// Peer lifecycle
	PeerConnected *topic.Topic[PeerConnectedEvent]
	PeerClosing   *topic.Topic[PeerClosingEvent]
	PeerLoggedIn  *topic.Topic[PeerLoggedInEvent]

	// Address book / discovery
	PeerAnnouncedAddr  *topic.Topic[PeerAnnouncedAddrEvent]
	PeersReceived      *topic.Topic[PeersReceivedEvent]
	PeersRequested     *topic.Topic[PeersRequestedEvent]
	SendPeers          *topic.Topic[SendPeersEvent]
	ShouldAnnounceAddr *topic.Topic[ShouldAnnounceAddrEvent]
	ShouldRequestPeers *topic.Topic[ShouldRequestPeersEvent]
	BeaconRx           *topic.Topic[BeaconRxEvent]

	// Chain sync
	PeerTipAdvertised *topic.Topic[PeerTipAdvertisedEvent]
	TaskAssigned      *topic.Topic[TaskAssignedEvent]
	HdrPackReceived   *topic.Topic[HdrPackReceivedEvent]
	BodyReceived      *topic.Topic[BodyReceivedEvent]
	TaskTimedOut      *topic.Topic[TaskTimedOutEvent]
	NewState          *topic.Topic[NewStateEvent]
	RolledBack        *topic.Topic[RolledBackEvent]
	SyncProgress      *topic.Topic[SyncProgressEvent]
	SyncError         *topic.Topic[SyncErrorEvent]
	DependentContextSet *topic.Topic[DependentContextSetEvent]

	// Mempool / dandelion
	TxReceived  *topic.Topic[TxReceivedEvent]
	TxRelayed   *topic.Topic[TxRelayedEvent]

	// Peer-serving: read-side requests raised by peer sessions and the
	// answers the node routes back to them.
	HeadersRequested *topic.Topic[HeadersRequestedEvent]
	HeadersReady     *topic.Topic[HeadersReadyEvent]
	BodiesRequested  *topic.Topic[BodiesRequestedEvent]
	BodiesReady      *topic.Topic[BodiesReadyEvent]
	TxRequested      *topic.Topic[TxRequestedEvent]
	TxReady          *topic.Topic[TxReadyEvent]
	OpaqueQuery      *topic.Topic[OpaqueQueryEvent]
	OpaqueReply      *topic.Topic[OpaqueReplyEvent]
	DataMissing      *topic.Topic[DataMissingEvent]

	// BBS
	BbsPublish      *topic.Topic[BbsPublishEvent]
	BbsSubscribe    *topic.Topic[BbsSubscribeEvent]
	BbsMsgRequested *topic.Topic[BbsMsgRequestedEvent]
	BbsDelivered    *topic.Topic[BbsDeliveredEvent]

	// Miner
	MinerTargetChanged *topic.Topic[MinerTargetChangedEvent]
	MinerSolutionFound *topic.Topic[MinerSolutionFoundEvent]

	// Diagnostics
	PrintUpdate *topic.Topic[PrintUpdateEvent]
	Terminate   *topic.Topic[TerminateCommand]
}

// New constructs a Bus with every topic initialized.
func New() *Bus {
	return &Bus{
		PeerConnected: topic.NewTopic[PeerConnectedEvent](),
		PeerClosing:   topic.NewTopic[PeerClosingEvent](),
		PeerLoggedIn:  topic.NewTopic[PeerLoggedInEvent](),

		PeerAnnouncedAddr:  topic.NewTopic[PeerAnnouncedAddrEvent](),
		PeersReceived:      topic.NewTopic[PeersReceivedEvent](),
		PeersRequested:     topic.NewTopic[PeersRequestedEvent](),
		SendPeers:          topic.NewTopic[SendPeersEvent](),
		ShouldAnnounceAddr: topic.NewTopic[ShouldAnnounceAddrEvent](),
		ShouldRequestPeers: topic.NewTopic[ShouldRequestPeersEvent](),
		BeaconRx:           topic.NewTopic[BeaconRxEvent](),

		PeerTipAdvertised: topic.NewTopic[PeerTipAdvertisedEvent](),
		TaskAssigned:      topic.NewTopic[TaskAssignedEvent](),
		HdrPackReceived:   topic.NewTopic[HdrPackReceivedEvent](),
		BodyReceived:      topic.NewTopic[BodyReceivedEvent](),
		TaskTimedOut:      topic.NewTopic[TaskTimedOutEvent](),
		NewState:          topic.NewTopic[NewStateEvent](),
		RolledBack:        topic.NewTopic[RolledBackEvent](),
		SyncProgress:      topic.NewTopic[SyncProgressEvent](),
		SyncError:         topic.NewTopic[SyncErrorEvent](),
		DependentContextSet: topic.NewTopic[DependentContextSetEvent](),

		TxReceived:  topic.NewTopic[TxReceivedEvent](),
		TxRelayed:   topic.NewTopic[TxRelayedEvent](),

		HeadersRequested: topic.NewTopic[HeadersRequestedEvent](),
		HeadersReady:     topic.NewTopic[HeadersReadyEvent](),
		BodiesRequested:  topic.NewTopic[BodiesRequestedEvent](),
		BodiesReady:      topic.NewTopic[BodiesReadyEvent](),
		TxRequested:      topic.NewTopic[TxRequestedEvent](),
		TxReady:          topic.NewTopic[TxReadyEvent](),
		OpaqueQuery:      topic.NewTopic[OpaqueQueryEvent](),
		OpaqueReply:      topic.NewTopic[OpaqueReplyEvent](),
		DataMissing:      topic.NewTopic[DataMissingEvent](),

		BbsPublish:      topic.NewTopic[BbsPublishEvent](),
		BbsSubscribe:    topic.NewTopic[BbsSubscribeEvent](),
		BbsMsgRequested: topic.NewTopic[BbsMsgRequestedEvent](),
		BbsDelivered:    topic.NewTopic[BbsDeliveredEvent](),

		MinerTargetChanged: topic.NewTopic[MinerTargetChangedEvent](),
		MinerSolutionFound: topic.NewTopic[MinerSolutionFoundEvent](),

		PrintUpdate: topic.NewTopic[PrintUpdateEvent](),
		Terminate:   topic.NewTopic[TerminateCommand](),
	}
}
