package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	o := Default()
	assert.Equal(t, 128, o.IngestBufferSize)
	assert.Equal(t, 128, o.IngestMaxAttempts)
	assert.Equal(t, 30*time.Second, o.SyncTimeout)
	assert.Equal(t, 256, o.LiveChannelCapacity)
	assert.False(t, o.PruneOnOverwrite)
	assert.Equal(t, 100*time.Millisecond, o.ShutdownDrain)
}

func TestOptionsOverride(t *testing.T) {
	o := New(
		WithIngestBufferSize(64),
		WithIngestMaxAttempts(10),
		WithSyncTimeout(5*time.Second),
		WithLiveChannelCapacity(32),
		WithPruneOnOverwrite(true),
		WithShutdownDrain(time.Second),
	)
	assert.Equal(t, 64, o.IngestBufferSize)
	assert.Equal(t, 10, o.IngestMaxAttempts)
	assert.Equal(t, 5*time.Second, o.SyncTimeout)
	assert.Equal(t, 32, o.LiveChannelCapacity)
	assert.True(t, o.PruneOnOverwrite)
	assert.Equal(t, time.Second, o.ShutdownDrain)
}
