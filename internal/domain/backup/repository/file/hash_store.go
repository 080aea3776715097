package file

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/pkg/jsonfile"
)

// MaxHashes bounds the number of remembered content hashes
const MaxHashes = 50000

// HashStore remembers SHA-256 hashes of uploaded attachments.
// With an empty path it is disabled and never reports a hash as known.
type HashStore struct {
	mu     sync.RWMutex
	saveMu sync.Mutex
	hashes map[string]struct{}
	order  []string
	path   string
	logger zerolog.Logger
}

// NewHashStore loads hashes from path
func NewHashStore(path string, logger zerolog.Logger) *HashStore {
	s := &HashStore{
		hashes: make(map[string]struct{}),
		path:   path,
		logger: logger,
	}
	s.load()
	return s
}

// Enabled reports whether hashes are tracked
func (s *HashStore) Enabled() bool {
	return s.path != ""
}

func (s *HashStore) load() {
	if s.path == "" {
		return
	}

	var raw json.RawMessage
	ok, err := jsonfile.Read(s.path, &raw)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn().Err(err).Str("file", s.path).Msg("Could not load uploaded hashes")
		}
		return
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Hashes []string `json:"hashes"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			s.logger.Warn().Err(err).Str("file", s.path).Msg("Unrecognized uploaded hashes format")
			return
		}
		list = wrapped.Hashes
	}

	for _, h := range list {
		s.insertLocked(h)
	}
	s.logger.Info().Int("count", len(s.hashes)).Msg("Loaded uploaded hashes")
}

// Contains reports whether hash was uploaded before
func (s *HashStore) Contains(hash string) bool {
	if s.path == "" || hash == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[hash]
	return ok
}

// Add records hash and persists the store
func (s *HashStore) Add(hash string) error {
	if s.path == "" || hash == "" {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if _, ok := s.hashes[hash]; ok {
		s.mu.Unlock()
		return nil
	}
	s.insertLocked(hash)
	snapshot := make([]string, len(s.order))
	copy(snapshot, s.order)
	s.mu.Unlock()

	return jsonfile.WriteAtomic(s.path, snapshot)
}

func (s *HashStore) insertLocked(hash string) {
	if _, ok := s.hashes[hash]; ok {
		return
	}
	s.hashes[hash] = struct{}{}
	s.order = append(s.order, hash)
	for len(s.order) > MaxHashes {
		delete(s.hashes, s.order[0])
		s.order = s.order[1:]
	}
}
