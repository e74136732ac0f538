package node

import "github.com/duskchain/fullnode/pkg/core"

// Status is a read-only snapshot of node state, safe to read from another
// goroutine (internal/adminhttp) since every field is copied under the
// same mutex the reactor loop itself uses for n.peers.
type Status struct {
	TipHeight       uint64
	TipHash         core.HashT
	SyncState       string
	PeersConnected  int
	TasksUnassigned int
	MempoolCount    uint64
	MempoolBytes    uint64
	StemPoolCount   int
	BbsCount        uint64
	BbsBytes        uint64
}

// Status builds a point-in-time snapshot for the admin HTTP surface.
func (n *Node) Status() Status {
	tip := n.proc.Tip()
	n.mu.Lock()
	peers := len(n.peers)
	n.mu.Unlock()
	return Status{
		TipHeight:       tip.Height,
		TipHash:         tip.Hash,
		SyncState:       n.sync.State().String(),
		PeersConnected:  peers,
		TasksUnassigned: n.tasks.Unassigned(),
		MempoolCount:    n.mem.Count(),
		MempoolBytes:    n.mem.Bytes(),
		StemPoolCount:   n.mem.StemCount(),
		BbsCount:        n.board.TotalCount(),
		BbsBytes:        n.board.TotalBytes(),
	}
}
