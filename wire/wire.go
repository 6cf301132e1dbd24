// Package wire implements the sync protocol's frame encoding (part of
// C9, spec §6): a sequence of self-delimiting CBOR data items exchanged
// over a reliable, ordered byte stream. There is no extra length prefix
// — CBOR already carries its own length, matching the teacher
// codebase's habit of streaming a sequence of distinct CBOR objects
// straight off blob storage without any outer framing.
package wire

import (
	"fmt"
	"io"
	"sync"

	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
	"github.com/datatrails/groveauth/store"
)

// Kind discriminates the frame variants of spec §6's `Msg` union.
type Kind int

const (
	KindTopic Kind = iota
	KindTopicAck
	KindHeights
	KindHave
	KindData
	KindLive
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindTopic:
		return "Topic"
	case KindTopicAck:
		return "TopicAck"
	case KindHeights:
		return "Heights"
	case KindHave:
		return "Have"
	case KindData:
		return "Data"
	case KindLive:
		return "Live"
	case KindDone:
		return "Done"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Range names a contiguous span of missing seq_nums [From, To) in one
// author's log, as computed during height exchange (spec §4.9 phase 2).
type Range struct {
	_      struct{} `cbor:",toarray"`
	Author identity.PublicKey
	LogID  operation.LogID
	From   uint64
	To     uint64
}

// Frame is the wire representation of spec §6's `Msg` union. Only the
// fields relevant to Kind are populated; this mirrors how the teacher's
// own log formats keep a single record shape with a discriminant rather
// than per-variant wire types, which keeps the CBOR array shape stable
// across all frame kinds.
type Frame struct {
	_ struct{} `cbor:",toarray"`

	Kind Kind

	Topic       string
	Heights     []store.LogHeight
	Have        []Range
	HeaderBytes []byte
	Body        []byte
}

func NewTopic(topic string) Frame { return Frame{Kind: KindTopic, Topic: topic} }

func NewTopicAck() Frame { return Frame{Kind: KindTopicAck} }

func NewHeights(heights []store.LogHeight) Frame {
	return Frame{Kind: KindHeights, Heights: heights}
}

func NewHave(have []Range) Frame { return Frame{Kind: KindHave, Have: have} }

func NewData(headerBytes, body []byte) Frame {
	return Frame{Kind: KindData, HeaderBytes: headerBytes, Body: body}
}

func NewLive(headerBytes, body []byte) Frame {
	return Frame{Kind: KindLive, HeaderBytes: headerBytes, Body: body}
}

func NewDone() Frame { return Frame{Kind: KindDone} }

// Writer writes Frames to an underlying stream, one self-delimiting
// CBOR item per WriteFrame call. A Writer may be shared by more than one
// goroutine (the sync session's main loop and its live-forwarding
// goroutine both write to the same connection); mu serializes them so a
// live frame can never interleave mid-encoding with a data frame.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (fw *Writer) WriteFrame(f Frame) error {
	data, err := operation.Marshal(f)
	if err != nil {
		return fmt.Errorf("wire: encoding frame %s: %w", f.Kind, err)
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("wire: writing frame %s: %w", f.Kind, err)
	}
	return nil
}

// Reader reads Frames from an underlying stream, one at a time.
type Reader struct {
	dec decoder
}

type decoder interface {
	Decode(v any) error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: operation.NewDecoder(r)}
}

// ReadFrame blocks until a complete frame has arrived, or returns the
// underlying stream error (io.EOF on clean close).
func (fr *Reader) ReadFrame() (Frame, error) {
	var f Frame
	if err := fr.dec.Decode(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
