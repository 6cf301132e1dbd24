package store

import (
	"sync"

	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
)

// blobIndex is the in-memory secondary index BlobStore keeps in front of
// Azure Blob Storage, which has no native hash lookup or per-log "latest"
// query. It mirrors the teacher codebase's ObjectIndexer/CachingReader
// split: the cache answers cheap lookups, the blob service remains the
// source of truth for content.
type blobIndex struct {
	mu        sync.Mutex
	pathByHash map[hashing.Hash]string
	seqByHash  map[hashing.Hash]logSeq
	latest     map[LogKey]uint64
}

type logSeq struct {
	key LogKey
	seq uint64
}

func newBlobIndex() *blobIndex {
	return &blobIndex{
		pathByHash: make(map[hashing.Hash]string),
		seqByHash:  make(map[hashing.Hash]logSeq),
		latest:     make(map[LogKey]uint64),
	}
}

func (b *blobIndex) pathForHash(hash hashing.Hash) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pathByHash[hash]
	return p, ok
}

func (b *blobIndex) put(hash hashing.Hash, path string, author identity.PublicKey, logID operation.LogID, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := LogKey{Author: author, LogID: logID}
	b.pathByHash[hash] = path
	b.seqByHash[hash] = logSeq{key: key, seq: seq}

	if cur, ok := b.latest[key]; !ok || seq > cur {
		b.latest[key] = seq
	}
}

func (b *blobIndex) remove(hash hashing.Hash, author identity.PublicKey, logID operation.LogID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pathByHash, hash)
	delete(b.seqByHash, hash)
}

func (b *blobIndex) latestSeq(author identity.PublicKey, logID operation.LogID) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq, ok := b.latest[LogKey{Author: author, LogID: logID}]
	return seq, ok
}

func (b *blobIndex) belowOrEqual(author identity.PublicKey, logID operation.LogID, upToSeqNum uint64) ([]string, []hashing.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := LogKey{Author: author, LogID: logID}
	var paths []string
	var hashes []hashing.Hash
	for hash, ls := range b.seqByHash {
		if ls.key != key || ls.seq > upToSeqNum {
			continue
		}
		paths = append(paths, b.pathByHash[hash])
		hashes = append(hashes, hash)
	}
	return paths, hashes
}

func (b *blobIndex) heights(filter LogFilter) []LogHeight {
	b.mu.Lock()
	defer b.mu.Unlock()

	wanted := make(map[identity.PublicKey]struct{}, len(filter.Authors))
	for _, a := range filter.Authors {
		wanted[a] = struct{}{}
	}

	var out []LogHeight
	for key, seq := range b.latest {
		if len(filter.Authors) > 0 {
			if _, ok := wanted[key.Author]; !ok {
				continue
			}
		}
		out = append(out, LogHeight{Author: key.Author, LogID: key.LogID, SeqNum: seq + 1})
	}
	return out
}
