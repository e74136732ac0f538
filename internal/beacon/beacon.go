// Package beacon implements the UDP local-network discovery beacon: a
// periodic broadcast of {node-id, listen-addr} and a listener that feeds
// received announcements onto the event bus for the address book to pick
// up, per the node's dedicated-beacon-thread scheduling model. Grounded on
// no pack dependency for the wire format itself - broadcast discovery on a
// LAN has no natural home in any example's dependency stack, so this stays
// on net.UDPConn and encoding/json, both stdlib.
package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
)

// announcement is the wire payload broadcast on the beacon port.
type announcement struct {
	NodeID     string `json:"node_id"`
	ListenAddr string `json:"listen_addr"`
}

// Params configures the beacon.
type Params struct {
	Port          int
	BroadcastFreq time.Duration
	NodeID        string
	ListenAddr    string
}

// Beacon owns the UDP broadcast and listen sockets.
type Beacon struct {
	params Params
	bus    *eventbus.Bus
	log    zerolog.Logger
}

// New constructs a Beacon. Call Run to start broadcasting and listening.
func New(params Params, bus *eventbus.Bus, log zerolog.Logger) *Beacon {
	return &Beacon{params: params, bus: bus, log: log}
}

// Run blocks broadcasting and listening until ctx is cancelled, per the
// node's dedicated-beacon-thread model; the caller starts it with `go`.
func (b *Beacon) Run(ctx context.Context) {
	go b.listen(ctx)
	b.broadcastLoop(ctx)
}

func (b *Beacon) broadcastLoop(ctx context.Context) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("255.255.255.255:%d", b.params.Port))
	if err != nil {
		b.log.Error().Err(err).Msg("resolve beacon broadcast address")
		return
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		b.log.Error().Err(err).Msg("open beacon broadcast socket")
		return
	}
	defer conn.Close()

	payload, err := json.Marshal(announcement{NodeID: b.params.NodeID, ListenAddr: b.params.ListenAddr})
	if err != nil {
		b.log.Error().Err(err).Msg("marshal beacon announcement")
		return
	}

	ticker := time.NewTicker(b.params.BroadcastFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := conn.Write(payload); err != nil {
				b.log.Debug().Err(err).Msg("beacon broadcast write failed")
			}
		}
	}
}

func (b *Beacon) listen(ctx context.Context) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", b.params.Port))
	if err != nil {
		b.log.Error().Err(err).Msg("resolve beacon listen address")
		return
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		b.log.Error().Err(err).Msg("open beacon listen socket")
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Debug().Err(err).Msg("beacon read failed")
			continue
		}
		var a announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil {
			continue
		}
		if a.NodeID == "" || a.NodeID == b.params.NodeID {
			continue
		}
		b.bus.BeaconRx.Pub(eventbus.BeaconRxEvent{NodeID: a.NodeID, ListenAddr: a.ListenAddr})
	}
}
