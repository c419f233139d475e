package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "firstsync/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.runs.jsonl           (append-only JSON Lines)
//   - <prefix>.hashes.snapshot.json (periodic snapshot)
//   - <prefix>.hashes.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile *os.File

	hashSnapshotPath string
	hashJournalFile  *os.File
	hashes           map[string]uint64

	hashWrites int
}

type hashRecord struct {
	Key  string `json:"key"`
	Hash uint64 `json:"hash"`
}

const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".hashes.snapshot.json"
	journalPath := prefix + ".hashes.journal.jsonl"

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load hashes from snapshot + journal.
	hashes := map[string]uint64{}
	_ = loadHashSnapshot(snapPath, hashes)
	_ = replayHashJournal(journalPath, hashes)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		runsFile:         rf,
		hashSnapshotPath: snapPath,
		hashJournalFile:  jf,
		hashes:           hashes,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.runsFile != nil {
		err1 = s.runsFile.Close()
		s.runsFile = nil
	}
	if s.hashJournalFile != nil {
		err2 = s.hashJournalFile.Close()
		s.hashJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendRun(ctx context.Context, e RunEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("runs file closed")
	}
	enc := json.NewEncoder(s.runsFile)
	return enc.Encode(e)
}

func (s *fileStore) PutEventHash(ctx context.Context, externalID string, hash uint64) error {
	_ = ctx
	key := strings.TrimSpace(externalID)
	if key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashJournalFile == nil {
		return errors.New("hash journal closed")
	}
	if s.hashes == nil {
		s.hashes = map[string]uint64{}
	}
	s.hashes[key] = hash

	enc := json.NewEncoder(s.hashJournalFile)
	if err := enc.Encode(hashRecord{Key: key, Hash: hash}); err != nil {
		return err
	}
	s.hashWrites++
	if s.hashWrites%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("hash compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetEventHash(ctx context.Context, externalID string) (uint64, bool, error) {
	_ = ctx
	key := strings.TrimSpace(externalID)
	if key == "" {
		return 0, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes == nil {
		return 0, false, nil
	}
	h, ok := s.hashes[key]
	return h, ok, nil
}

// compactLocked writes the in-memory hash map to the snapshot atomically
// (tmp + rename) then truncates the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.hashSnapshotPath + ".tmp"
	b, err := json.Marshal(s.hashes)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.hashSnapshotPath); err != nil {
		return err
	}

	if s.hashJournalFile != nil {
		if err := s.hashJournalFile.Truncate(0); err != nil {
			return err
		}
		if _, err := s.hashJournalFile.Seek(0, 0); err != nil {
			return err
		}
	}
	return nil
}

func loadHashSnapshot(path string, dst map[string]uint64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &dst)
}

func replayHashJournal(path string, dst map[string]uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec hashRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Skip torn/corrupt trailing lines.
			continue
		}
		if rec.Key != "" {
			dst[rec.Key] = rec.Hash
		}
	}
	return sc.Err()
}
