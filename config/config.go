// Package config collects the tunables enumerated in spec §6 as a single
// Options value, built with the teacher codebase's functional-options
// pattern (see massifs.ReaderOptions/ReaderOption).
package config

import "time"

// Options holds the runtime tunables shared by the ingest pipeline and
// the sync protocol. Of these, only SyncTimeout is read by a package of
// this module (the sync session); the other fields are carried as values
// only. ingest.NewBuffer takes its capacity as an argument and uses it as
// the attempt budget unless WithMaxAttempts overrides it.
type Options struct {
	// IngestBufferSize bounds how many out-of-order operations the
	// ingest buffer holds before back-pressuring the caller.
	IngestBufferSize int

	// IngestMaxAttempts bounds how many times a buffered operation may
	// be retried before the buffer gives up on it.
	IngestMaxAttempts int

	// SyncTimeout bounds how long a sync session waits on a network
	// phase before raising an UnexpectedBehaviour("timeout").
	SyncTimeout time.Duration

	// LiveChannelCapacity sizes the broadcast channel used to fan out
	// freshly-ingested operations to in-progress sync sessions running
	// in live mode.
	LiveChannelCapacity int

	// PruneOnOverwrite selects whether operations superseded by a newer
	// one carrying the prune flag are deleted. No package reads it: the
	// ingest pipeline deletes them whenever the prune flag is set.
	PruneOnOverwrite bool

	// ShutdownDrain is the bound on waiting for in-flight work after
	// cancellation. No package reads it, and no component drains
	// in-flight work on cancellation.
	ShutdownDrain time.Duration
}

// Default returns the option values named in spec §6 and §5.
func Default() Options {
	return Options{
		IngestBufferSize:    128,
		IngestMaxAttempts:   128,
		SyncTimeout:         30 * time.Second,
		LiveChannelCapacity: 256,
		PruneOnOverwrite:    false,
		ShutdownDrain:       100 * time.Millisecond,
	}
}

// Option mutates an Options value under construction.
type Option func(*Options)

// New builds Options from Default(), applying opts in order.
func New(opts ...Option) Options {
	o := Default()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

func WithIngestBufferSize(n int) Option {
	return func(o *Options) { o.IngestBufferSize = n }
}

func WithIngestMaxAttempts(n int) Option {
	return func(o *Options) { o.IngestMaxAttempts = n }
}

func WithSyncTimeout(d time.Duration) Option {
	return func(o *Options) { o.SyncTimeout = d }
}

func WithLiveChannelCapacity(n int) Option {
	return func(o *Options) { o.LiveChannelCapacity = n }
}

func WithPruneOnOverwrite(enabled bool) Option {
	return func(o *Options) { o.PruneOnOverwrite = enabled }
}

func WithShutdownDrain(d time.Duration) Option {
	return func(o *Options) { o.ShutdownDrain = d }
}
