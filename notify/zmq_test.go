package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZMQNotifierPublishes(t *testing.T) {
	n, err := NewZMQNotifier("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	require.NoError(t, sub.Dial("tcp://"+n.Addr()))
	require.NoError(t, sub.SetOption(zmq4.OptionSubscribe, TopicCompleted))

	got := make(chan zmq4.Msg, 1)
	go func() {
		msg, err := sub.Recv()
		if err == nil {
			got <- msg
		}
	}()

	event := Event{Topic: TopicCompleted, SessionId: "s1", FileName: "a.tar", TotalSize: 10, Hash: "ab", Time: time.Unix(1700000000, 0).UTC()}

	// PUB drops messages until the subscription propagates, so keep publishing
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg := <-got:
			require.Len(t, msg.Frames, 2)
			assert.Equal(t, TopicCompleted, string(msg.Frames[0]))
			var decoded Event
			require.NoError(t, json.Unmarshal(msg.Frames[1], &decoded))
			assert.Equal(t, event, decoded)
			return
		case <-ticker.C:
			require.NoError(t, n.Notify(ctx, event))
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NoError(t, n.Notify(context.Background(), Event{Topic: TopicFailed}))
	assert.NoError(t, n.Close())
}
