package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/pkg/jsonfile"
)

const (
	// DefaultCapacity bounds the number of remembered ids
	DefaultCapacity = 10000
	saveEveryN      = 50
	saveInterval    = 60 * time.Second
)

// Store is an in-process dedup store with optional file persistence.
// Committed ids are kept in arrival order and the oldest are evicted past capacity.
type Store struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	done     map[string]struct{}
	order    []string
	capacity int

	file     string
	dirty    int
	lastSave time.Time
	saveMu   sync.Mutex

	stop   chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
	logger zerolog.Logger
}

// NewStore creates a store and loads ids from file when it exists
func NewStore(file string, capacity int, logger zerolog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := &Store{
		pending:  make(map[string]struct{}),
		done:     make(map[string]struct{}),
		capacity: capacity,
		file:     file,
		now:      time.Now,
		logger:   logger,
	}
	s.lastSave = s.now()
	s.load()

	return s
}

func (s *Store) load() {
	if s.file == "" {
		return
	}

	var raw json.RawMessage
	ok, err := jsonfile.Read(s.file, &raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", s.file).Msg("Could not load processed ids")
		return
	}
	if !ok {
		return
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		var wrapped struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			s.logger.Warn().Err(err).Str("file", s.file).Msg("Unrecognized processed ids format")
			return
		}
		ids = wrapped.IDs
	}

	if len(ids) > s.capacity {
		ids = ids[len(ids)-s.capacity:]
	}
	for _, id := range ids {
		s.insertLocked(id)
	}

	s.logger.Info().Str("file", s.file).Int("count", len(s.done)).Msg("Loaded processed ids")
}

// Has reports whether id was committed
func (s *Store) Has(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[id]
	return ok, nil
}

// TryBegin reserves id for processing. It returns false when id is committed or in flight.
func (s *Store) TryBegin(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.done[id]; ok {
		return false, nil
	}
	if _, ok := s.pending[id]; ok {
		return false, nil
	}
	s.pending[id] = struct{}{}
	return true, nil
}

// Commit marks id processed. Committing twice is a no-op.
func (s *Store) Commit(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.pending, id)
	if _, ok := s.done[id]; ok {
		s.mu.Unlock()
		return nil
	}
	s.insertLocked(id)
	s.dirty++
	due := s.file != "" && (s.dirty >= saveEveryN || s.now().Sub(s.lastSave) >= saveInterval)
	s.mu.Unlock()

	if due {
		s.Flush()
	}
	return nil
}

// Release drops an in-flight reservation so a redelivery is processed again
func (s *Store) Release(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) insertLocked(id string) {
	if _, ok := s.done[id]; ok {
		return
	}
	s.done[id] = struct{}{}
	s.order = append(s.order, id)

	for len(s.order) > s.capacity {
		delete(s.done, s.order[0])
		s.order[0] = ""
		s.order = s.order[1:]
	}
}

// Len returns the number of committed ids
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done)
}

// Flush writes committed ids to the file if anything changed
func (s *Store) Flush() {
	if s.file == "" {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.dirty == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.dirty = 0
	s.lastSave = s.now()
	s.mu.Unlock()

	if err := jsonfile.WriteAtomic(s.file, ids); err != nil {
		s.logger.Warn().Err(err).Str("file", s.file).Msg("Could not save processed ids")
		s.mu.Lock()
		s.dirty += len(ids)
		s.mu.Unlock()
		return
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Saved processed ids")
}

// Start runs the periodic flush loop
func (s *Store) Start() {
	if s.file == "" {
		return
	}

	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(saveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Flush()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the flush loop and writes pending changes
func (s *Store) Stop() {
	if s.stop != nil {
		close(s.stop)
		s.wg.Wait()
		s.stop = nil
	}
	s.Flush()
}
