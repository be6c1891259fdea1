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

	logx "eagertimer/pkg/logx"
)

const (
	fileCompactEvery = 500
	maxLineBytes     = 1 << 20
)

// fileStore is a dependency-free backend writing <prefix>.fires.jsonl
// (append-only JSON Lines). When Retain is set the file is rewritten on open
// and every fileCompactEvery writes to keep only the newest records.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	f      *os.File
	retain int
	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:    log,
		path:   filepath.Join(dir, base) + ".fires.jsonl",
		retain: cfg.Retain,
	}
	if err := s.openAppendLocked(); err != nil {
		return nil, err
	}
	// the write counter starts over on every open, so trim leftovers from
	// earlier runs now
	if s.retain > 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("history compact failed", logx.Err(err))
		}
	}
	return s, nil
}

func (s *fileStore) openAppendLocked() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendFire(ctx context.Context, r FireRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("history file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.retain > 0 && s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentFires(ctx context.Context, name string, limit int) ([]FireRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ring []FireRecord
	err := s.scanLocked(ctx, func(r FireRecord) {
		if name != "" && r.Name != name {
			return
		}
		ring = append(ring, r)
		if limit > 0 && len(ring) > limit {
			ring = ring[1:]
		}
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
	return ring, nil
}

// scanLocked calls fn for every decodable record, oldest first. Corrupt
// lines (e.g. a torn final write) are skipped.
func (s *fileStore) scanLocked(ctx context.Context, fn func(FireRecord)) error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for n := 0; sc.Scan(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		var r FireRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		fn(r)
	}
	return sc.Err()
}

// compactLocked rewrites the file with only the newest retain records.
func (s *fileStore) compactLocked() error {
	var keep []FireRecord
	err := s.scanLocked(context.Background(), func(r FireRecord) {
		keep = append(keep, r)
		if len(keep) > s.retain {
			keep = keep[1:]
		}
	})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range keep {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = s.openAppendLocked()
		return err
	}
	return s.openAppendLocked()
}
