package state

import (
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"go.uber.org/zap"
)

// EventKind tells subscribers why a section changed.
type EventKind string

const (
	EventUpdate EventKind = "update"
	EventUndo   EventKind = "undo"
	EventRedo   EventKind = "redo"
	EventReset  EventKind = "reset"
	EventLoad   EventKind = "load"
)

// Event describes a change to one section. Value is a private deep copy of
// the section after the change; it is nil for removed extension sections.
type Event struct {
	Kind    EventKind
	Section model.Section
	// Field is set for single-field updates.
	Field string
	Value any
}

// Handler reacts to an Event. Returned errors and panics are isolated per
// handler and never reach the caller that changed the state.
type Handler func(Event) error

// HandlerError records one failed handler invocation.
type HandlerError struct {
	SubscriptionID string
	Section        model.Section
	Kind           EventKind
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscriber %s failed on %s of %s: %v", e.SubscriptionID, e.Kind, e.Section, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      string
	section model.Section
	handler Handler
	store   *Store
}

// ID returns the subscription identifier.
func (sub *Subscription) ID() string {
	return sub.id
}

// Section returns the subscribed section, or model.SectionAll.
func (sub *Subscription) Section() model.Section {
	return sub.section
}

// Unsubscribe stops delivery. It reports whether the subscription was still
// active.
func (sub *Subscription) Unsubscribe() bool {
	return sub.store.unsubscribe(sub.id)
}

// Subscribe registers handler for section, or for every section with
// model.SectionAll. Handlers run in registration order, outside the store
// lock, so they may read or change the store.
func (s *Store) Subscribe(section model.Section, handler Handler) *Subscription {
	if handler == nil {
		panic("state: nil handler")
	}
	sub := &Subscription{
		id:      uuid.NewString(),
		section: section,
		handler: handler,
		store:   s,
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.logger.Debug("subscribed",
		zap.String("op", "state.Subscribe"),
		zap.String("section", string(section)),
		zap.String("subscription", sub.id),
	)
	return sub
}

func (s *Store) unsubscribe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return true
		}
	}
	return false
}

// delivery is one pending handler call, prepared under the lock.
type delivery struct {
	sub   *Subscription
	event Event
}

// deliveriesLocked prepares the calls for sections changed in snapshot. The
// caller must hold s.mu.
func (s *Store) deliveriesLocked(kind EventKind, field string, snapshot []byte, sections []model.Section) []delivery {
	var out []delivery
	for _, section := range sections {
		for _, sub := range s.subs {
			if sub.section != section && sub.section != model.SectionAll {
				continue
			}
			out = append(out, delivery{
				sub:   sub,
				event: Event{Kind: kind, Section: section, Field: field},
			})
		}
	}
	if len(out) == 0 {
		return nil
	}
	for i := range out {
		out[i].event.Value = s.sectionValue(snapshot, out[i].event.Section)
	}
	return out
}

// sectionValue decodes a fresh copy of section for one handler.
func (s *Store) sectionValue(snapshot []byte, section model.Section) any {
	st, err := decode(snapshot)
	if err != nil {
		s.logger.Error("failed to decode event value",
			zap.String("op", "state.notify"),
			zap.String("section", string(section)),
			zap.Error(err),
		)
		return nil
	}
	v, ok := st.Get(section)
	if !ok {
		return nil
	}
	return v
}

// notify runs the prepared deliveries and reports failures to the logger and
// the error hook.
func (s *Store) notify(deliveries []delivery) []HandlerError {
	var failures []HandlerError
	for _, d := range deliveries {
		if err := invoke(d.sub.handler, d.event); err != nil {
			failures = append(failures, HandlerError{
				SubscriptionID: d.sub.id,
				Section:        d.event.Section,
				Kind:           d.event.Kind,
				Err:            err,
			})
		}
	}
	if len(failures) == 0 {
		return nil
	}

	for i := range failures {
		s.logger.Warn("subscriber failed",
			zap.String("op", "state.notify"),
			zap.String("subscription", failures[i].SubscriptionID),
			zap.String("section", string(failures[i].Section)),
			zap.String("event", string(failures[i].Kind)),
			zap.Error(failures[i].Err),
		)
	}
	if s.onHandlerErrors != nil {
		s.onHandlerErrors(failures)
	}
	return failures
}

func invoke(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(e)
}
