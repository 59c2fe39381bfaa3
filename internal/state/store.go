// Package state is the single source of truth for simulation parameters and
// results. Every read returns a deep copy, every change is validated,
// recorded in a bounded undo history and announced to subscribers.
package state

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/iwvelando/split-payment-forecast/internal/kvstore"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSection is returned for sections that are neither built in
	// nor an existing extension.
	ErrUnknownSection = errors.New("unknown section")

	// ErrEmptyUpdate is returned when an update carries no data.
	ErrEmptyUpdate = errors.New("empty update")
)

// Option configures a Store.
type Option func(*Store)

// WithKeyValue persists the state under key in kv. An empty key selects
// constants.DefaultStateKey.
func WithKeyValue(kv kvstore.KeyValue, key string) Option {
	return func(s *Store) {
		s.kv = kv
		if key != "" {
			s.key = key
		}
	}
}

// WithHistoryCapacity bounds the number of snapshots kept for undo/redo.
func WithHistoryCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithErrorHook receives the handler failures of every notification round.
func WithErrorHook(hook func([]HandlerError)) Option {
	return func(s *Store) {
		s.onHandlerErrors = hook
	}
}

// WithClock replaces time.Now for saved envelopes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store holds the simulator state.
type Store struct {
	logger          *zap.Logger
	kv              kvstore.KeyValue
	key             string
	capacity        int
	onHandlerErrors func([]HandlerError)
	now             func() time.Time

	mu       sync.Mutex
	state    model.State
	history  [][]byte
	cursor   int
	subs     []*Subscription
	revision string
}

// New creates a Store initialised with model.Defaults().
func New(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger:   logger,
		key:      constants.DefaultStateKey,
		capacity: constants.DefaultHistoryCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	st := model.Defaults()
	snapshot, err := encode(st)
	if err != nil {
		// Defaults contain only plain data.
		panic(err)
	}
	s.state, _ = decode(snapshot)
	s.history = [][]byte{snapshot}
	return s
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := decode(s.history[s.cursor])
	if err != nil {
		s.logger.Error("failed to copy state",
			zap.String("op", "state.Snapshot"),
			zap.Error(err),
		)
		return model.Defaults()
	}
	return st
}

// Section returns a deep copy of one section.
func (s *Store) Section(section model.Section) (any, error) {
	st := s.Snapshot()
	v, ok := st.Get(section)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}
	return v, nil
}

// History reports the undo cursor and the number of stored snapshots.
func (s *Store) History() (cursor, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, len(s.history)
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Apply runs fn on a copy of the state and commits the result if it passes
// model.Validate. Subscribers of sections are notified with kind.
func (s *Store) Apply(kind EventKind, sections []model.Section, fn func(*model.State) error) error {
	return s.apply(kind, "", sections, fn)
}

func (s *Store) apply(kind EventKind, field string, sections []model.Section, fn func(*model.State) error) error {
	s.mu.Lock()
	next, err := clone(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := model.Validate(next); err != nil {
		s.mu.Unlock()
		return err
	}
	if next.InterfaceState.SimulationRun && inputsChanged(s.state, next) {
		// Results no longer describe the inputs; strategies need a new run.
		next.InterfaceState.SimulationRun = false
		sections = appendSection(sections, model.SectionInterfaceState)
	}
	snapshot, err := encode(next)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.commitLocked(next, snapshot)
	deliveries := s.deliveriesLocked(kind, field, snapshot, sections)
	s.mu.Unlock()

	s.logger.Debug("state changed",
		zap.String("op", "state.Apply"),
		zap.String("event", string(kind)),
		zap.Any("sections", sections),
	)
	s.notify(deliveries)
	return nil
}

// inputsChanged reports whether any input section differs between before and
// after. Both sides go through the snapshot codec so equal values compare
// equal regardless of how they were built.
func inputsChanged(before, after model.State) bool {
	b, err := clone(before)
	if err != nil {
		return true
	}
	a, err := clone(after)
	if err != nil {
		return true
	}
	for _, section := range model.Sections() {
		if !section.IsInput() {
			continue
		}
		bv, _ := b.Get(section)
		av, _ := a.Get(section)
		if !reflect.DeepEqual(bv, av) {
			return true
		}
	}
	return false
}

func appendSection(sections []model.Section, section model.Section) []model.Section {
	for _, s := range sections {
		if s == section {
			return sections
		}
	}
	return append(append([]model.Section(nil), sections...), section)
}

// commitLocked makes next current and records it in the history, dropping
// any redo tail and the oldest snapshots beyond capacity.
func (s *Store) commitLocked(next model.State, snapshot []byte) {
	s.state = next
	s.history = append(s.history[:s.cursor+1], snapshot)
	if over := len(s.history) - s.capacity; over > 0 {
		s.history = append([][]byte(nil), s.history[over:]...)
	}
	s.cursor = len(s.history) - 1
}

// Update shallow-merges partial into section. Unknown fields and values of
// the wrong type are validation errors; the state is unchanged on error.
func (s *Store) Update(section model.Section, partial map[string]any) error {
	if len(partial) == 0 {
		return ErrEmptyUpdate
	}
	if !section.IsBuiltin() {
		return s.updateExtension(section, "", partial)
	}
	return s.apply(EventUpdate, "", []model.Section{section}, func(st *model.State) error {
		return mergeSection(st, section, partial)
	})
}

// UpdateField sets one field. Sections that do not exist are created as
// free-form extension sections.
func (s *Store) UpdateField(section model.Section, field string, value any) error {
	if section == "" || section == model.SectionAll {
		return fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	if field == "" {
		return ErrEmptyUpdate
	}
	if !section.IsBuiltin() {
		return s.updateExtension(section, field, map[string]any{field: value})
	}
	return s.apply(EventUpdate, field, []model.Section{section}, func(st *model.State) error {
		return mergeSection(st, section, map[string]any{field: value})
	})
}

// updateExtension merges into a free-form section. Update requires the
// section to exist; UpdateField (field != "") creates it.
func (s *Store) updateExtension(section model.Section, field string, partial map[string]any) error {
	if section == "" || section == model.SectionAll {
		return fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	return s.apply(EventUpdate, field, []model.Section{section}, func(st *model.State) error {
		ext, ok := st.Extensions[string(section)]
		if !ok && field == "" {
			return fmt.Errorf("%w: %s", ErrUnknownSection, section)
		}
		if st.Extensions == nil {
			st.Extensions = make(map[string]map[string]any)
		}
		if ext == nil {
			ext = make(map[string]any, len(partial))
		}
		for k, v := range partial {
			ext[k] = v
		}
		st.Extensions[string(section)] = ext
		// Values must survive the snapshot codec.
		if _, err := encode(*st); err != nil {
			return fmt.Errorf("%s: unsupported value: %w", section, err)
		}
		return nil
	})
}

// Reset restores the named sections, or everything when none are given, to
// the built-in defaults. Extension sections are removed.
func (s *Store) Reset(sections ...model.Section) error {
	if len(sections) == 0 {
		all := s.sectionNames()
		return s.apply(EventReset, "", all, func(st *model.State) error {
			*st = model.Defaults()
			return nil
		})
	}
	return s.apply(EventReset, "", sections, func(st *model.State) error {
		for _, section := range sections {
			if _, ok := st.Get(section); !ok && !section.IsBuiltin() {
				return fmt.Errorf("%w: %s", ErrUnknownSection, section)
			}
			st.Reset(section)
		}
		return nil
	})
}

// Undo steps back one snapshot. It returns false at the oldest snapshot.
func (s *Store) Undo() bool {
	return s.move(-1, EventUndo)
}

// Redo re-applies an undone snapshot. It returns false at the newest one.
func (s *Store) Redo() bool {
	return s.move(1, EventRedo)
}

func (s *Store) move(step int, kind EventKind) bool {
	s.mu.Lock()
	target := s.cursor + step
	if target < 0 || target >= len(s.history) {
		s.mu.Unlock()
		return false
	}
	restored, err := decode(s.history[target])
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to restore snapshot",
			zap.String("op", "state.move"),
			zap.String("event", string(kind)),
			zap.Error(err),
		)
		return false
	}
	sections := unionSections(s.state, restored)
	s.state = restored
	s.cursor = target
	deliveries := s.deliveriesLocked(kind, "", s.history[target], sections)
	s.mu.Unlock()

	s.notify(deliveries)
	return true
}

// sectionNames lists the built-in sections plus the current extensions.
func (s *Store) sectionNames() []model.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unionSections(s.state)
}

// unionSections returns the built-in sections followed by the sorted
// extension sections of every given state.
func unionSections(states ...model.State) []model.Section {
	sections := model.Sections()
	seen := make(map[string]bool)
	var ext []string
	for _, st := range states {
		for name := range st.Extensions {
			if !seen[name] {
				seen[name] = true
				ext = append(ext, name)
			}
		}
	}
	sort.Strings(ext)
	for _, name := range ext {
		sections = append(sections, model.Section(name))
	}
	return sections
}
