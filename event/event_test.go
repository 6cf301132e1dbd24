package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventKinds(t *testing.T) {
	cases := []struct {
		ev   Event
		kind Kind
	}{
		{Relay{Status: "connected"}, KindRelay},
		{Transport{Info: "peer dialed"}, KindTransport},
		{SyncStarted{Topic: "t", Peer: "p"}, KindSyncStarted},
		{SyncProgress{Topic: "t", Peer: "p", Sent: 1, Received: 2}, KindSyncProgress},
		{SyncCompleted{Topic: "t", Peer: "p"}, KindSyncCompleted},
		{SyncFailed{Topic: "t", Peer: "p", Reason: errors.New("boom")}, KindSyncFailed},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, c.ev.Kind())
		assert.NotEmpty(t, c.ev.String())
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SyncFailed", KindSyncFailed.String())
}
