package store

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"pawtalk/pkg/logger"
)

// Indexer receives fire-and-forget search refresh requests for message
// content changes. The store never blocks on indexing; a search
// immediately after a write may transiently miss the newest content.
type Indexer interface {
	EnqueueIndex(convID, msgID string, payload []byte)
	EnqueueRemove(msgID string)
}

// Store is a pebble-backed durable store for conversations, participants
// and messages. Writes on the same conversation are serialized through a
// striped lock so concurrent edits cannot interleave into an inconsistent
// reaction or read-receipt set; writes on different conversations proceed
// concurrently.
type Store struct {
	db      *pebble.DB
	indexer Indexer

	// seq reduces key collisions when messages share a nanosecond timestamp.
	seq   uint64
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

// Open opens (or creates) a pebble database at path.
func Open(path string) (*Store, error) {
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Log.Info("pebble_closed")
	return err
}

// SetIndexer installs the search refresh hook. Must be called before the
// store receives writes.
func (s *Store) SetIndexer(ix Indexer) { s.indexer = ix }

// lockFor returns the stripe lock serializing writes for a conversation.
func (s *Store) lockFor(convID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(convID))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) nextSeq() uint64 { return atomic.AddUint64(&s.seq, 1) }

// Key layout, sortable namespaces:
//   conv:<id>:meta                        conversation JSON
//   conv:<id>:part:<userID>               participant JSON
//   conv:<id>:msg:<ts padded>-<seq>       message JSON (current version)
//   version:msg:<msgID>:<ts padded>-<seq> append-only versions
//   msgkey:<msgID>                        message id -> conversation msg key
//   user:<userID>:conv:<convID>           membership index for listing

func convMetaKey(convID string) []byte {
	return []byte("conv:" + convID + ":meta")
}

func partKey(convID, userID string) []byte {
	return []byte("conv:" + convID + ":part:" + userID)
}

func msgPrefix(convID string) []byte {
	return []byte("conv:" + convID + ":msg:")
}

// MsgKey builds the sortable message key for a conversation.
func MsgKey(convID string, ts int64, seq uint64) string {
	return fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, seq)
}

// VersionKey builds the append-only version key for a message id.
func VersionKey(msgID string, ts int64, seq uint64) string {
	return fmt.Sprintf("version:msg:%s:%020d-%06d", msgID, ts, seq)
}

func msgIDKey(msgID string) []byte {
	return []byte("msgkey:" + msgID)
}

func userConvKey(userID, convID string) []byte {
	return []byte("user:" + userID + ":conv:" + convID)
}

func userConvPrefix(userID string) []byte {
	return []byte("user:" + userID + ":conv:")
}

// get reads a raw value; ErrNotFound when the key is absent.
func (s *Store) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

func (s *Store) set(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}
