package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
)

// PurgeTombstones hard-deletes soft-deleted messages whose deletion is
// older than cutoff (ns), removing the primary row, the id mapping and
// every retained version. Returns the number of messages purged. With
// dryRun only the count is produced.
func (s *Store) PurgeTombstones(cutoff int64, batch int, dryRun bool) (int, error) {
	if batch <= 0 {
		batch = 500
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("conv:"),
		UpperBound: []byte("conv;"),
	})
	if err != nil {
		return 0, err
	}

	type victim struct {
		key    []byte
		msgID  string
		convID string
	}
	var victims []victim
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.Contains(iter.Key(), []byte(":msg:")) {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if !m.Deleted {
			continue
		}
		ts := m.EditedTS
		if ts == 0 {
			ts = m.CreatedTS
		}
		if ts >= cutoff {
			continue
		}
		victims = append(victims, victim{
			key:    append([]byte(nil), iter.Key()...),
			msgID:  m.ID,
			convID: m.ConversationID,
		})
		if len(victims) >= batch {
			break
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	iter.Close()

	if dryRun {
		return len(victims), nil
	}

	purged := 0
	for _, v := range victims {
		if err := s.db.Delete(v.key, pebble.Sync); err != nil {
			return purged, err
		}
		if err := s.db.Delete(msgIDKey(v.msgID), pebble.Sync); err != nil {
			return purged, err
		}
		if err := s.deleteVersions(v.msgID); err != nil {
			return purged, err
		}
		if s.indexer != nil {
			s.indexer.EnqueueRemove(v.msgID)
		}
		purged++
	}
	return purged, nil
}

// MessageIndexer rebuilds a search index from durable rows.
type MessageIndexer interface {
	IndexMessage(m models.Message)
}

// Reindex replays every live message into the index. Run at startup:
// the index is in memory and starts empty.
func (s *Store) Reindex(ix MessageIndexer) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("conv:"),
		UpperBound: []byte("conv;"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.Contains(iter.Key(), []byte(":msg:")) {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Deleted {
			continue
		}
		ix.IndexMessage(m)
		n++
	}
	logger.Info("search_reindex_complete", "messages", n)
	return iter.Error()
}

func (s *Store) deleteVersions(msgID string) error {
	prefix := []byte(fmt.Sprintf("version:msg:%s:", msgID))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix})
	if err != nil {
		return err
	}
	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return err
	}
	iter.Close()
	for _, k := range keys {
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			return err
		}
	}
	return nil
}
