package topic_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/pkg/topic"
)

// Multiple subscribers each receive every published message, in order.
func TestTopicFanOut(t *testing.T) {
	tp := topic.NewTopic[int]()
	const numSubs = 5
	const numMsgs = 20

	subs := make([]*topic.SubCh[int], numSubs)
	for i := range subs {
		subs[i] = tp.SubCh()
	}
	require.Equal(t, numSubs, tp.NumSubs())

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		sub := sub
		go func() {
			defer wg.Done()
			for want := 0; want < numMsgs; want++ {
				select {
				case got := <-sub.C:
					require.Equal(t, want, got)
				case <-time.After(time.Second):
					t.Errorf("timed out waiting for message %d", want)
					return
				}
			}
		}()
	}

	for i := 0; i < numMsgs; i++ {
		tp.Pub(i)
	}
	wg.Wait()
}
