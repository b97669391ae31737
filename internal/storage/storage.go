package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"awb-agent/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	path  string
	mu    sync.RWMutex
	state model.StoredState
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.state = defaultState()
			return s.saveLocked()
		}
		return err
	}
	if len(b) == 0 {
		s.state = defaultState()
		return s.saveLocked()
	}

	var state model.StoredState
	if err := json.Unmarshal(b, &state); err != nil {
		return err
	}
	mergeDefaults(&state)
	s.state = state
	return nil
}

func defaultState() model.StoredState {
	return model.StoredState{
		Streams:        map[string]model.GainState{},
		HardwareOutbox: map[string]model.HardwareEnvelope{},
		CreatedAt:      time.Now().UTC(),
	}
}

func mergeDefaults(state *model.StoredState) {
	if state.Streams == nil {
		state.Streams = map[string]model.GainState{}
	}
	if state.HardwareOutbox == nil {
		state.HardwareOutbox = map[string]model.HardwareEnvelope{}
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
}

func (s *Store) saveLocked() error {
	s.state.LastUpdatedUnixMS = time.Now().UnixMilli()
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) Snapshot() model.StoredState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := json.Marshal(s.state)
	var cloned model.StoredState
	_ = json.Unmarshal(b, &cloned)
	return cloned
}

func (s *Store) GetStream(streamID string) (model.GainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state.Streams[streamID]
	if !ok {
		return model.GainState{}, fmt.Errorf("stream %q: %w", streamID, ErrNotFound)
	}
	if st.ColorMatrix != nil {
		m := *st.ColorMatrix
		st.ColorMatrix = &m
	}
	return st, nil
}

func (s *Store) PutStream(st model.GainState) error {
	if st.StreamID == "" {
		return errors.New("stream id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Streams[st.StreamID] = st
	return s.saveLocked()
}

func (s *Store) DeleteStream(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Streams[streamID]; !ok {
		return fmt.Errorf("stream %q: %w", streamID, ErrNotFound)
	}
	delete(s.state.Streams, streamID)
	return s.saveLocked()
}

func (s *Store) ListStreams() []model.GainState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.GainState, 0, len(s.state.Streams))
	for _, st := range s.state.Streams {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

func (s *Store) SetHardwareEnvelope(env model.HardwareEnvelope) error {
	if env.CameraID == "" {
		return errors.New("camera id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.HardwareOutbox[env.CameraID] = env
	return s.saveLocked()
}

func (s *Store) GetHardwareEnvelope(cameraID string) *model.HardwareEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.state.HardwareOutbox[cameraID]
	if !ok {
		return nil
	}
	cp := env
	return &cp
}
