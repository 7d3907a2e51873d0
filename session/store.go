package session

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"webnavigator/replay"
	"webnavigator/utils/io"
)

type entry struct {
	replay *replay.Replay
	mu     *sync.Mutex
}

// Store maps session ids to their replay and lock. Entries are never removed.
type Store struct {
	mu      *sync.Mutex
	entries map[string]*entry
	gauge   prometheus.Gauge
	now     func() time.Time
	logger  zerolog.Logger
}

type Options struct {
	// Sessions is set to the number of known sessions.
	Sessions prometheus.Gauge
	Now      func() time.Time
	Logger   *zerolog.Logger
}

func NewStore(options *Options) *Store {
	s := &Store{
		mu:      &sync.Mutex{},
		entries: make(map[string]*entry),
		logger:  zerolog.Nop(),
	}
	if options != nil {
		s.gauge = options.Sessions
		s.now = options.Now
		if options.Logger != nil {
			s.logger = *options.Logger
		}
	}
	return s
}

// GetOrCreate returns the replay of a session and the lock guarding it. The
// caller must hold the lock for the whole read-modify-write sequence.
func (s *Store) GetOrCreate(sessionID string) (*replay.Replay, *sync.Mutex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{
			replay: replay.New(sessionID, &replay.Options{Now: s.now}),
			mu:     &sync.Mutex{},
		}
		s.entries[sessionID] = e
		if s.gauge != nil {
			s.gauge.Set(float64(len(s.entries)))
		}
		s.logger.Debug().Str("session_id", sessionID).Msg("created session")
	}
	return e.replay, e.mu
}

// Acquire locks the session and returns its replay with the matching unlock.
func (s *Store) Acquire(sessionID string) (*replay.Replay, func()) {
	r, mu := s.GetOrCreate(sessionID)
	mu.Lock()
	return r, mu.Unlock
}

// Get returns the replay of an existing session without creating one.
func (s *Store) Get(sessionID string) (*replay.Replay, *sync.Mutex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, nil, false
	}
	return e.replay, e.mu, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dump writes every session replay to dir as <session id>.json. Each session
// is locked while it is encoded.
func (s *Store) Dump(dir string) error {
	for _, id := range s.SessionIDs() {
		r, unlock := s.Acquire(id)
		data, err := json.MarshalIndent(r, "", "  ")
		unlock()
		if err != nil {
			return errors.Wrapf(err, "encode session %s", id)
		}
		path := filepath.Join(dir, sanitizeFilename(id)+".json")
		if err := io.WriteBytesToFile(path, data); err != nil {
			return errors.Wrapf(err, "write session %s", id)
		}
	}
	return nil
}

func sanitizeFilename(id string) string {
	out := []rune(id)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
