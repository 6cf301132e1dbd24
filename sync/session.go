// Package sync implements the topic/log sync protocol (C9): a symmetric
// two-peer handshake, height exchange, and data-streaming session run
// over a reliable, ordered byte stream, grounded in the teacher's
// `massifreplicator`/`logdircache` pattern of reconciling a local view
// of a log against a remote one and pulling only what is missing.
package sync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/datatrails/groveauth/config"
	"github.com/datatrails/groveauth/event"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/ingest"
	"github.com/datatrails/groveauth/logging"
	"github.com/datatrails/groveauth/operation"
	"github.com/datatrails/groveauth/store"
	"github.com/datatrails/groveauth/wire"
)

var log = logging.Named("sync")

// Deps bundles the collaborators a session needs; Events and Live are
// optional (nil is fine) per spec §5's "broadcast channels (live-mode):
// single-producer-multi-consumer, lossy".
type Deps struct {
	Store   store.Store
	LogMap  TopicLogMap
	Options config.Options
	Events  chan<- event.Event
	Live    <-chan operation.Operation
}

// frameResult is what the background read loop posts for every frame it
// decodes (or the terminal error it hits).
type frameResult struct {
	frame wire.Frame
	err   error
}

// RunInitiator drives the initiator side of a sync session for topic
// against peer, identified for logging/event purposes by peerLabel.
func RunInitiator(ctx context.Context, rw io.ReadWriter, topic, peerLabel string, deps Deps) error {
	return run(ctx, rw, true, topic, peerLabel, deps)
}

// RunAcceptor drives the acceptor side of a sync session; the topic is
// learned from the initiator's handshake frame.
func RunAcceptor(ctx context.Context, rw io.ReadWriter, peerLabel string, deps Deps) error {
	return run(ctx, rw, false, "", peerLabel, deps)
}

// run drives one side of the session. Both sides write eagerly at
// several points (Topic/TopicAck, Heights, Data, Done) without waiting
// for a read first, so a dedicated goroutine keeps pulling frames off
// the wire from the moment the session starts — otherwise two peers
// each blocked writing to an unbuffered stream before either has called
// Read would deadlock each other (spec §5: each task "may suspend only
// at well-defined points... awaiting the next item from an input
// channel"; frames is that channel for this task).
func run(ctx context.Context, rw io.ReadWriter, isInitiator bool, topic, peerLabel string, deps Deps) error {
	fr := wire.NewReader(rw)
	fw := wire.NewWriter(rw)

	frames := make(chan frameResult, 8)
	go func() {
		for {
			f, err := fr.ReadFrame()
			frames <- frameResult{f, err}
			if err != nil {
				return
			}
		}
	}()

	topic, err := handshake(ctx, frames, fw, isInitiator, topic, deps)
	if err != nil {
		sendEvent(deps.Events, event.SyncFailed{Topic: topic, Peer: peerLabel, Reason: err})
		return err
	}
	sendEvent(deps.Events, event.SyncStarted{Topic: topic, Peer: peerLabel})

	logs, ok := deps.LogMap.Resolve(topic)
	if !ok {
		err := unexpected(ErrUnknownTopic)
		sendEvent(deps.Events, event.SyncFailed{Topic: topic, Peer: peerLabel, Reason: err})
		return err
	}

	if err := dataPhase(ctx, frames, fw, topic, peerLabel, logs, deps); err != nil {
		sendEvent(deps.Events, event.SyncFailed{Topic: topic, Peer: peerLabel, Reason: err})
		return err
	}

	sendEvent(deps.Events, event.SyncCompleted{Topic: topic, Peer: peerLabel})
	return nil
}

// handshake implements spec §4.9 phase 1, returning the agreed topic.
func handshake(ctx context.Context, frames <-chan frameResult, fw *wire.Writer, isInitiator bool, topic string, deps Deps) (string, error) {
	if isInitiator {
		if err := fw.WriteFrame(wire.NewTopic(topic)); err != nil {
			return topic, critical(err)
		}
		f, err := nextFrame(ctx, frames, deps.Options.SyncTimeout)
		if err != nil {
			return topic, unexpected(err)
		}
		if f.Kind != wire.KindTopicAck {
			return topic, unexpected(fmt.Errorf("%w: expected TopicAck, got %s", ErrProtocolViolation, f.Kind))
		}
		return topic, nil
	}

	f, err := nextFrame(ctx, frames, deps.Options.SyncTimeout)
	if err != nil {
		return topic, unexpected(err)
	}
	if f.Kind != wire.KindTopic {
		return topic, unexpected(fmt.Errorf("%w: expected Topic, got %s", ErrProtocolViolation, f.Kind))
	}
	topic = f.Topic

	if _, ok := deps.LogMap.Resolve(topic); !ok {
		return topic, unexpected(ErrUnknownTopic)
	}
	if err := fw.WriteFrame(wire.NewTopicAck()); err != nil {
		return topic, critical(err)
	}
	return topic, nil
}

// dataPhase implements spec §4.9 phases 2-4: height exchange, streaming
// of missing operations (with concurrent live forwarding), and
// termination.
func dataPhase(ctx context.Context, frames <-chan frameResult, fw *wire.Writer, topic, peerLabel string, logs []store.LogKey, deps Deps) error {
	localHeights, err := localHeightsFor(ctx, deps.Store, logs)
	if err != nil {
		return critical(fmt.Errorf("sync: loading local heights: %w", err))
	}
	if err := fw.WriteFrame(wire.NewHeights(localHeights)); err != nil {
		return critical(err)
	}

	peerFrame, err := nextFrame(ctx, frames, deps.Options.SyncTimeout)
	if err != nil {
		return unexpected(err)
	}
	if peerFrame.Kind != wire.KindHeights {
		return unexpected(fmt.Errorf("%w: expected Heights, got %s", ErrProtocolViolation, peerFrame.Kind))
	}

	toSend := missingRanges(localHeights, peerFrame.Heights)

	var sent, received uint64

	liveDone := make(chan struct{})
	liveStopped := make(chan struct{})
	go forwardLive(fw, deps.Live, liveDone, liveStopped)

	stopLive := func() {
		close(liveDone)
		<-liveStopped
	}

	for _, r := range toSend {
		for seq := r.From; seq < r.To; seq++ {
			op, err := deps.Store.GetBySeqNum(ctx, r.Author, r.LogID, seq)
			if err != nil {
				stopLive()
				return critical(fmt.Errorf("sync: loading operation %s/%s#%d: %w", r.Author, r.LogID, seq, err))
			}
			headerBytes, err := op.HeaderBytes()
			if err != nil {
				stopLive()
				return critical(err)
			}
			if err := fw.WriteFrame(wire.NewData(headerBytes, op.Body)); err != nil {
				stopLive()
				return critical(err)
			}
			sent++
		}
	}
	sendEvent(deps.Events, event.SyncProgress{Topic: topic, Peer: peerLabel, Sent: sent, Received: received})

	stopLive()

	if err := fw.WriteFrame(wire.NewDone()); err != nil {
		return critical(err)
	}

	for {
		f, err := nextFrame(ctx, frames, deps.Options.SyncTimeout)
		if err != nil {
			return unexpected(err)
		}
		switch f.Kind {
		case wire.KindData, wire.KindLive:
			if _, err := ingest.Ingest(ctx, deps.Store, f.HeaderBytes, f.Body); err != nil {
				return unexpected(fmt.Errorf("sync: peer sent invalid operation: %w", err))
			}
			received++
			sendEvent(deps.Events, event.SyncProgress{Topic: topic, Peer: peerLabel, Sent: sent, Received: received})
		case wire.KindDone:
			return nil
		default:
			return unexpected(fmt.Errorf("%w: unexpected frame %s during data phase", ErrProtocolViolation, f.Kind))
		}
	}
}

// forwardLive relays locally-authored operations arriving on live to the
// peer as Live frames until stop is closed, then signals done. Running
// this concurrently with the main send/receive loop is what lets either
// side "additionally forward live operations ... during this phase"
// (spec §4.9 phase 3) without blocking on the main loop.
func forwardLive(fw *wire.Writer, live <-chan operation.Operation, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if live == nil {
		<-stop
		return
	}
	for {
		select {
		case <-stop:
			return
		case op, ok := <-live:
			if !ok {
				return
			}
			headerBytes, err := op.HeaderBytes()
			if err != nil {
				log.Debugf("sync: dropping unencodable live operation %s: %v", op.Hash, err)
				continue
			}
			if err := fw.WriteFrame(wire.NewLive(headerBytes, op.Body)); err != nil {
				log.Debugf("sync: failed writing live frame: %v", err)
				return
			}
		}
	}
}

func localHeightsFor(ctx context.Context, st store.Store, logs []store.LogKey) ([]store.LogHeight, error) {
	wanted := make(map[store.LogKey]bool, len(logs))
	seenAuthor := make(map[identity.PublicKey]bool)
	var authors []identity.PublicKey
	for _, lk := range logs {
		wanted[lk] = true
		if !seenAuthor[lk.Author] {
			seenAuthor[lk.Author] = true
			authors = append(authors, lk.Author)
		}
	}

	all, err := st.LogHeights(ctx, store.LogFilter{Authors: authors})
	if err != nil {
		return nil, err
	}

	out := make([]store.LogHeight, 0, len(all))
	for _, h := range all {
		if wanted[store.LogKey{Author: h.Author, LogID: h.LogID}] {
			out = append(out, h)
		}
	}
	return out, nil
}

// missingRanges computes, for each of our logs, the contiguous range of
// seq_nums the peer is missing relative to our local height (spec §4.9
// phase 2: "computes the set of operations the other is missing
// (contiguous range per log)"). A log the peer never mentioned is
// treated as fully missing (peer height 0).
func missingRanges(localHeights, peerHeights []store.LogHeight) []wire.Range {
	peerBy := make(map[store.LogKey]uint64, len(peerHeights))
	for _, h := range peerHeights {
		peerBy[store.LogKey{Author: h.Author, LogID: h.LogID}] = h.SeqNum
	}

	var out []wire.Range
	for _, h := range localHeights {
		peerSeq := peerBy[store.LogKey{Author: h.Author, LogID: h.LogID}]
		if h.SeqNum > peerSeq {
			out = append(out, wire.Range{Author: h.Author, LogID: h.LogID, From: peerSeq, To: h.SeqNum})
		}
	}
	return out
}

// nextFrame waits for the next frame the background read loop posts,
// bounding the wait by timeout (zero means wait indefinitely, subject
// only to ctx).
func nextFrame(ctx context.Context, frames <-chan frameResult, timeout time.Duration) (wire.Frame, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case r := <-frames:
		return r.frame, r.err
	case <-timeoutCh:
		return wire.Frame{}, ErrTimeout
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}
}

func sendEvent(events chan<- event.Event, ev event.Event) {
	if events == nil {
		return
	}
	events <- ev
}
