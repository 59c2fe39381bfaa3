package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"go.uber.org/zap"
)

// envelope is the persisted form of the state.
type envelope struct {
	Version  int         `json:"version"`
	Revision string      `json:"revision"`
	SavedAt  time.Time   `json:"savedAt"`
	State    model.State `json:"state"`
}

// loadedEnvelope keeps sections raw so each can be merged on its own.
type loadedEnvelope struct {
	Version  int                        `json:"version"`
	Revision string                     `json:"revision"`
	SavedAt  time.Time                  `json:"savedAt"`
	State    map[string]json.RawMessage `json:"state"`
}

// Revision returns the identifier of the last saved or loaded envelope.
func (s *Store) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Save writes the whole state to the key-value backend in one Put, so the
// previous blob survives a failed save. Failures are logged and reported as
// false.
func (s *Store) Save(ctx context.Context) bool {
	if s.kv == nil {
		s.persistenceFailed("save", errors.New("no persistence backend configured"))
		return false
	}

	st := s.Snapshot()
	for name, ext := range st.Extensions {
		st.Extensions[name] = markFloats(ext).(map[string]any)
	}
	env := envelope{
		Version:  constants.StateEnvelopeVersion,
		Revision: uuid.NewString(),
		SavedAt:  s.now().UTC(),
		State:    st,
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.persistenceFailed("save", fmt.Errorf("failed to encode state: %w", err))
		return false
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		s.persistenceFailed("save", err)
		return false
	}

	s.mu.Lock()
	s.revision = env.Revision
	s.mu.Unlock()

	s.logger.Info("state saved",
		zap.String("op", "state.Save"),
		zap.String("key", s.key),
		zap.String("revision", env.Revision),
		zap.Int("bytes", len(data)),
	)
	return true
}

// Load replaces the state with the saved one. Sections are merged into the
// defaults field by field, so saves from older versions keep the defaults of
// anything they lack; unknown sections are kept as extensions. A missing
// save, an unreadable blob or an invalid merged state leave the current state
// untouched and return false.
func (s *Store) Load(ctx context.Context) bool {
	if s.kv == nil {
		s.persistenceFailed("load", errors.New("no persistence backend configured"))
		return false
	}

	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.persistenceFailed("load", err)
		return false
	}
	if !ok {
		s.logger.Info("no saved state",
			zap.String("op", "state.Load"),
			zap.String("key", s.key),
		)
		return false
	}

	var env loadedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.persistenceFailed("load", fmt.Errorf("failed to decode envelope: %w", err))
		return false
	}
	if env.Version > constants.StateEnvelopeVersion {
		s.logger.Warn("saved state comes from a newer version",
			zap.String("op", "state.Load"),
			zap.Int("version", env.Version),
		)
	}

	loaded := s.mergeSaved(env.State)
	if err := model.Validate(loaded); err != nil {
		s.persistenceFailed("load", fmt.Errorf("saved state is invalid: %w", err))
		return false
	}
	snapshot, err := encode(loaded)
	if err != nil {
		s.persistenceFailed("load", err)
		return false
	}

	s.mu.Lock()
	sections := unionSections(s.state, loaded)
	s.commitLocked(loaded, snapshot)
	s.revision = env.Revision
	deliveries := s.deliveriesLocked(EventLoad, "", snapshot, sections)
	s.mu.Unlock()

	s.logger.Info("state loaded",
		zap.String("op", "state.Load"),
		zap.String("key", s.key),
		zap.String("revision", env.Revision),
	)
	s.notify(deliveries)
	return true
}

// mergeSaved overlays saved sections on the defaults.
func (s *Store) mergeSaved(saved map[string]json.RawMessage) model.State {
	st := model.Defaults()
	for name, raw := range saved {
		section := model.Section(name)
		switch {
		case name == "extensions":
			var ext map[string]map[string]any
			if err := unmarshalExtension(raw, &ext); err != nil {
				s.skipSection(name, err)
				continue
			}
			for k, v := range ext {
				setExtension(&st, k, v)
			}
		case section.IsBuiltin():
			if err := mergeSavedSection(&st, section, raw); err != nil {
				s.skipSection(name, err)
			}
		default:
			var ext map[string]any
			if err := unmarshalExtension(raw, &ext); err != nil {
				s.skipSection(name, err)
				continue
			}
			setExtension(&st, name, ext)
		}
	}
	return st
}

func mergeSavedSection(st *model.State, section model.Section, raw json.RawMessage) error {
	var saved map[string]any
	if err := json.Unmarshal(raw, &saved); err != nil {
		return err
	}
	if saved == nil {
		// a null section keeps its default
		if section == model.SectionSimulationResults {
			st.SimulationResults = nil
		}
		return nil
	}

	current, _ := st.Get(section)
	base, err := sectionMap(current)
	if err != nil {
		return err
	}
	// Map-valued sections are replaced wholesale so removed entries stay
	// removed; struct sections are merged field by field.
	switch section {
	case model.SectionImplementationSchedule, model.SectionSectorRegistry:
		base = saved
	default:
		for k, v := range saved {
			base[k] = v
		}
	}
	data, err := json.Marshal(base)
	if err != nil {
		return err
	}
	return decodeSection(st, section, data, false)
}

func setExtension(st *model.State, name string, v map[string]any) {
	if v == nil {
		return
	}
	if st.Extensions == nil {
		st.Extensions = make(map[string]map[string]any)
	}
	st.Extensions[name] = restoreNumbers(v).(map[string]any)
}

func (s *Store) skipSection(name string, err error) {
	s.logger.Warn("ignoring unreadable saved section",
		zap.String("op", "state.Load"),
		zap.String("section", name),
		zap.Error(err),
	)
}

func (s *Store) persistenceFailed(op string, err error) {
	pErr := &simerr.PersistenceError{Op: op, Key: s.key, Err: err}
	s.logger.Warn("persistence failed",
		zap.String("op", "state."+op),
		zap.Error(pErr),
	)
}
