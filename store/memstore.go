package store

import (
	"context"
	"sort"
	"sync"

	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
)

// logEntries is one author's log, ordered by seq_num.
type logEntries struct {
	bySeq map[uint64]hashing.Hash
}

// MemStore is an in-memory Store, the reference implementation used by the
// ingest pipeline's tests and by single-process callers that do not need
// durability.
type MemStore struct {
	mu         sync.Mutex
	operations map[hashing.Hash]operation.Operation
	logs       map[LogKey]*logEntries
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		operations: make(map[hashing.Hash]operation.Operation),
		logs:       make(map[LogKey]*logEntries),
	}
}

func (s *MemStore) HasOperation(_ context.Context, hash hashing.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.operations[hash]
	return ok, nil
}

func (s *MemStore) InsertOperation(_ context.Context, op operation.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operations[op.Hash]; exists {
		return nil
	}

	s.operations[op.Hash] = op

	key := LogKey{Author: op.Header.PublicKey, LogID: op.Header.Extensions.LogID}
	entries, ok := s.logs[key]
	if !ok {
		entries = &logEntries{bySeq: make(map[uint64]hashing.Hash)}
		s.logs[key] = entries
	}
	entries.bySeq[op.Header.SeqNum] = op.Hash

	return nil
}

func (s *MemStore) GetOperation(_ context.Context, hash hashing.Hash) (operation.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operations[hash]
	if !ok {
		return operation.Operation{}, ErrNotFound
	}
	return op, nil
}

func (s *MemStore) GetBySeqNum(_ context.Context, author identity.PublicKey, logID operation.LogID, seqNum uint64) (operation.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.logs[LogKey{Author: author, LogID: logID}]
	if !ok {
		return operation.Operation{}, ErrNotFound
	}
	hash, ok := entries.bySeq[seqNum]
	if !ok {
		return operation.Operation{}, ErrNotFound
	}
	return s.operations[hash], nil
}

func (s *MemStore) LatestOperation(_ context.Context, author identity.PublicKey, logID operation.LogID) (operation.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.logs[LogKey{Author: author, LogID: logID}]
	if !ok || len(entries.bySeq) == 0 {
		return operation.Operation{}, ErrNotFound
	}

	var maxSeq uint64
	found := false
	for seq := range entries.bySeq {
		if !found || seq > maxSeq {
			maxSeq = seq
			found = true
		}
	}

	return s.operations[entries.bySeq[maxSeq]], nil
}

func (s *MemStore) DeleteOperations(_ context.Context, author identity.PublicKey, logID operation.LogID, upToSeqNum uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.logs[LogKey{Author: author, LogID: logID}]
	if !ok {
		return nil
	}

	for seq, hash := range entries.bySeq {
		if seq <= upToSeqNum {
			delete(entries.bySeq, seq)
			delete(s.operations, hash)
		}
	}
	return nil
}

func (s *MemStore) LogHeights(_ context.Context, filter LogFilter) ([]LogHeight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[identity.PublicKey]struct{}, len(filter.Authors))
	for _, a := range filter.Authors {
		wanted[a] = struct{}{}
	}

	var out []LogHeight
	for key, entries := range s.logs {
		if len(filter.Authors) > 0 {
			if _, ok := wanted[key.Author]; !ok {
				continue
			}
		}
		if len(entries.bySeq) == 0 {
			continue
		}
		var maxSeq uint64
		found := false
		for seq := range entries.bySeq {
			if !found || seq > maxSeq {
				maxSeq = seq
				found = true
			}
		}
		out = append(out, LogHeight{Author: key.Author, LogID: key.LogID, SeqNum: maxSeq + 1})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Author != out[j].Author {
			return out[i].Author.String() < out[j].Author.String()
		}
		return out[i].LogID.String() < out[j].LogID.String()
	})

	return out, nil
}
