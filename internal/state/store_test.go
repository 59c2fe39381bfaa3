package state

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/iwvelando/split-payment-forecast/internal/kvstore"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New(nil)
	st := s.Snapshot()
	st.ImplementationSchedule[2026] = 0.99
	st.SectorRegistry["comercio"] = st.SectorRegistry["saude"]
	st.Company.Name = "changed"

	again := s.Snapshot()
	if diff := cmp.Diff(model.Defaults(), again); diff != "" {
		t.Errorf("store changed through a snapshot (-want +got):\n%s", diff)
	}

	v, err := s.Section(model.SectionImplementationSchedule)
	if err != nil {
		t.Fatal(err)
	}
	sched, ok := v.(schedule.Schedule)
	if !ok {
		t.Fatalf("Section returned %T, expected schedule.Schedule", v)
	}
	sched[2026] = 0.99
	delete(sched, 2033)
	if diff := cmp.Diff(schedule.Default(), s.Snapshot().ImplementationSchedule); diff != "" {
		t.Errorf("store changed through a section value (-want +got):\n%s", diff)
	}

	if _, err := s.Section("nope"); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("expected ErrUnknownSection, got %v", err)
	}
}

func TestUpdateUndoRedo(t *testing.T) {
	s := New(nil)
	before := s.Snapshot()

	if err := s.Update(model.SectionCashCycle, map[string]any{"pmr": 60.0, "pme": 15}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after := s.Snapshot()
	if after.CashCycle.PMR != 60 || after.CashCycle.PME != 15 || after.CashCycle.PMP != 30 {
		t.Fatalf("merge failed: %+v", after.CashCycle)
	}

	if !s.Undo() {
		t.Fatal("Undo returned false")
	}
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Errorf("undo mismatch (-want +got):\n%s", diff)
	}
	if !s.Redo() {
		t.Fatal("Redo returned false")
	}
	if diff := cmp.Diff(after, s.Snapshot()); diff != "" {
		t.Errorf("redo mismatch (-want +got):\n%s", diff)
	}
	if s.Redo() {
		t.Errorf("Redo at the newest snapshot should return false")
	}
	s.Undo()
	if s.Undo() {
		t.Errorf("Undo at the oldest snapshot should return false")
	}
}

func TestUpdateAfterUndoDropsRedo(t *testing.T) {
	s := New(nil)
	_ = s.UpdateField(model.SectionCompany, "name", "A")
	_ = s.UpdateField(model.SectionCompany, "name", "B")
	s.Undo()
	_ = s.UpdateField(model.SectionCompany, "name", "C")
	if s.Redo() {
		t.Errorf("redo tail should be discarded by a new change")
	}
	if got := s.Snapshot().Company.Name; got != "C" {
		t.Errorf("Name = %q, expected C", got)
	}
}

func TestHistoryCapacity(t *testing.T) {
	s := New(nil, WithHistoryCapacity(3))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := s.UpdateField(model.SectionCompany, "name", name); err != nil {
			t.Fatal(err)
		}
	}
	cursor, size := s.History()
	if size != 3 || cursor != 2 {
		t.Fatalf("History() = %d, %d; expected 2, 3", cursor, size)
	}
	s.Undo()
	s.Undo()
	if s.Undo() {
		t.Errorf("expected history to be bounded")
	}
	if got := s.Snapshot().Company.Name; got != "c" {
		t.Errorf("oldest kept name = %q, expected c", got)
	}
}

func TestUpdateErrors(t *testing.T) {
	s := New(nil)
	_, sizeBefore := s.History()

	if err := s.Update("nope", map[string]any{"a": 1}); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("unknown section: got %v", err)
	}
	if err := s.Update(model.SectionCompany, nil); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("empty update: got %v", err)
	}

	tests := []struct {
		name    string
		section model.Section
		partial map[string]any
		field   string
	}{
		{"negative pmr", model.SectionCashCycle, map[string]any{"pmr": -1}, "cashCycle.pmr"},
		{"wrong type", model.SectionCashCycle, map[string]any{"pmr": "forty"}, "cashCycle.pmr"},
		{"unknown field", model.SectionCompany, map[string]any{"ceo": "x"}, "company"},
		{"percTerm above one", model.SectionCashCycle, map[string]any{"percTerm": 1.5}, "cashCycle.percTerm"},
		{"inconsistent mix", model.SectionCashCycle, map[string]any{"percTerm": 0.5, "percCash": 0.3}, "cashCycle.percTerm"},
		{"bad policy", model.SectionFiscalParameters, map[string]any{"compensationPolicy": "yearly"}, "fiscalParameters.compensationPolicy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(tt.section, tt.partial)
			var vErr *simerr.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %q, expected %q", vErr.Field, tt.field)
			}
		})
	}

	if diff := cmp.Diff(model.Defaults(), s.Snapshot()); diff != "" {
		t.Errorf("failed updates changed the state:\n%s", diff)
	}
	if _, size := s.History(); size != sizeBefore {
		t.Errorf("failed updates recorded history")
	}
}

func TestDerivedFields(t *testing.T) {
	s := New(nil)
	if err := s.Update(model.SectionCashCycle, map[string]any{"percTerm": 0.4}); err != nil {
		t.Fatal(err)
	}
	cc := s.Snapshot().CashCycle
	if math.Abs(cc.PercCash-0.6) > 1e-12 || math.Abs(cc.PercCash+cc.PercTerm()-1) > 1e-12 {
		t.Errorf("percTerm not translated: %+v", cc)
	}

	if err := s.UpdateField(model.SectionCompany, "monthlyRevenue", 2000000); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Company.AnnualRevenue; got != 24000000 {
		t.Errorf("AnnualRevenue = %v, expected 24000000", got)
	}
	if err := s.UpdateField(model.SectionCompany, "annualRevenue", 6000000.0); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Company.MonthlyRevenue; got != 500000 {
		t.Errorf("MonthlyRevenue = %v, expected 500000", got)
	}
}

func TestUpdateScheduleAndRegistry(t *testing.T) {
	s := New(nil)
	if err := s.Update(model.SectionImplementationSchedule, map[string]any{"2034": 1.0}); err != nil {
		t.Fatalf("Update schedule: %v", err)
	}
	if got := s.Snapshot().ImplementationSchedule[2034]; got != 1 {
		t.Errorf("schedule[2034] = %v", got)
	}
	if err := s.Update(model.SectionImplementationSchedule, map[string]any{"2030": 0.2}); err == nil {
		t.Errorf("expected non-monotone schedule to be rejected")
	}
	err := s.Update(model.SectionSectorRegistry, map[string]any{
		"mineracao": map[string]any{"name": "Mineração", "effectiveRate": 0.265},
	})
	if err != nil {
		t.Fatalf("Update registry: %v", err)
	}
	if _, ok := s.Snapshot().SectorRegistry["mineracao"]; !ok {
		t.Errorf("sector not added")
	}
}

func TestExtensionSections(t *testing.T) {
	s := New(nil)
	if err := s.Update("prefs", map[string]any{"theme": "dark"}); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("Update on a missing extension: got %v", err)
	}
	if err := s.UpdateField("prefs", "theme", "dark"); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	if err := s.Update("prefs", map[string]any{"zoom": 1.5}); err != nil {
		t.Fatalf("Update existing extension: %v", err)
	}
	v, err := s.Section("prefs")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"theme": "dark", "zoom": 1.5}, v); diff != "" {
		t.Errorf("extension mismatch (-want +got):\n%s", diff)
	}
	if err := s.UpdateField("prefs", "callback", func() {}); err == nil {
		t.Errorf("expected unsupported value to be rejected")
	}
}

func TestSubscribers(t *testing.T) {
	s := New(nil)
	var sectionEvents, allEvents []Event
	sub := s.Subscribe(model.SectionCashCycle, func(e Event) error {
		sectionEvents = append(sectionEvents, e)
		return nil
	})
	s.Subscribe(model.SectionAll, func(e Event) error {
		allEvents = append(allEvents, e)
		return nil
	})

	_ = s.UpdateField(model.SectionCashCycle, "pmr", 50)
	_ = s.UpdateField(model.SectionCompany, "name", "X")

	if len(sectionEvents) != 1 || len(allEvents) != 2 {
		t.Fatalf("events = %d section, %d wildcard", len(sectionEvents), len(allEvents))
	}
	e := sectionEvents[0]
	if e.Kind != EventUpdate || e.Field != "pmr" {
		t.Errorf("event = %+v", e)
	}
	cc, ok := e.Value.(model.CashCycle)
	if !ok || cc.PMR != 50 {
		t.Errorf("event value = %#v", e.Value)
	}

	if !sub.Unsubscribe() {
		t.Errorf("Unsubscribe returned false")
	}
	if sub.Unsubscribe() {
		t.Errorf("second Unsubscribe should return false")
	}
	_ = s.UpdateField(model.SectionCashCycle, "pmr", 55)
	if len(sectionEvents) != 1 {
		t.Errorf("handler called after unsubscribe")
	}
}

func TestSubscriberFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var reported []HandlerError
	s := New(zap.New(core), WithErrorHook(func(errs []HandlerError) {
		reported = append(reported, errs...)
	}))

	calls := 0
	s.Subscribe(model.SectionCompany, func(Event) error { panic("boom") })
	s.Subscribe(model.SectionCompany, func(Event) error { return errors.New("nope") })
	s.Subscribe(model.SectionCompany, func(Event) error {
		calls++
		return nil
	})

	if err := s.UpdateField(model.SectionCompany, "name", "Y"); err != nil {
		t.Fatalf("UpdateField returned handler failure: %v", err)
	}
	if calls != 1 {
		t.Errorf("healthy handler called %d times", calls)
	}
	if len(reported) != 2 {
		t.Fatalf("expected 2 handler errors, got %d", len(reported))
	}
	if reported[0].Section != model.SectionCompany || reported[0].Kind != EventUpdate {
		t.Errorf("HandlerError = %+v", reported[0])
	}
	if logs.FilterMessage("subscriber failed").Len() != 2 {
		t.Errorf("expected 2 warnings, got %d", logs.FilterMessage("subscriber failed").Len())
	}
}

func TestHandlersMayUseTheStore(t *testing.T) {
	s := New(nil)
	s.Subscribe(model.SectionCompany, func(e Event) error {
		if e.Field == "name" {
			return s.UpdateField(model.SectionInterfaceState, "activeTab", "resultados")
		}
		return nil
	})
	if err := s.UpdateField(model.SectionCompany, "name", "Z"); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().InterfaceState.ActiveTab; got != "resultados" {
		t.Errorf("ActiveTab = %q", got)
	}
}

func TestUndoNotifiesEverySection(t *testing.T) {
	s := New(nil)
	_ = s.UpdateField(model.SectionCompany, "name", "N")
	seen := map[model.Section]EventKind{}
	s.Subscribe(model.SectionAll, func(e Event) error {
		seen[e.Section] = e.Kind
		return nil
	})
	s.Undo()
	for _, section := range model.Sections() {
		if seen[section] != EventUndo {
			t.Errorf("section %s not notified on undo", section)
		}
	}
}

func TestInputUpdatesClearSimulationRun(t *testing.T) {
	s := New(nil)
	_ = s.Apply(EventUpdate, []model.Section{model.SectionInterfaceState}, func(st *model.State) error {
		st.InterfaceState.SimulationRun = true
		return nil
	})
	var got []model.Section
	s.Subscribe(model.SectionInterfaceState, func(e Event) error {
		got = append(got, e.Section)
		return nil
	})

	_ = s.UpdateField("prefs", "theme", "dark")
	_ = s.UpdateField(model.SectionInterfaceState, "activeTab", "estrategias")
	if !s.Snapshot().InterfaceState.SimulationRun {
		t.Fatalf("non-input updates must keep the simulation flag")
	}

	if err := s.UpdateField(model.SectionCashCycle, "pmr", 45); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().InterfaceState.SimulationRun {
		t.Errorf("changing an input must clear the simulation flag")
	}
	if len(got) != 2 {
		t.Errorf("interfaceState events = %v, expected the tab change and the cleared flag", got)
	}
	if !s.Undo() || !s.Snapshot().InterfaceState.SimulationRun {
		t.Errorf("undo should restore the flag with the previous inputs")
	}
}

func TestReset(t *testing.T) {
	s := New(nil)
	_ = s.UpdateField(model.SectionCompany, "name", "R")
	_ = s.UpdateField(model.SectionCashCycle, "pmr", 90)
	_ = s.UpdateField("prefs", "theme", "dark")

	if err := s.Reset(model.SectionCompany); err != nil {
		t.Fatal(err)
	}
	st := s.Snapshot()
	if st.Company.Name != model.Defaults().Company.Name || st.CashCycle.PMR != 90 {
		t.Errorf("Reset(company) affected the wrong sections")
	}
	if err := s.Reset("missing"); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("Reset(missing) = %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(model.Defaults(), s.Snapshot()); diff != "" {
		t.Errorf("Reset() mismatch (-want +got):\n%s", diff)
	}
	if !s.Undo() {
		t.Errorf("reset should be undoable")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	s := New(nil, WithKeyValue(kv, ""))
	_ = s.UpdateField(model.SectionCompany, "name", "Persistida")
	_ = s.Update(model.SectionCashCycle, map[string]any{"pmr": 60, "percTerm": 0.9})
	_ = s.Update(model.SectionFiscalParameters, map[string]any{"availableCredits": 10000, "compensationPolicy": "quarterly"})
	_ = s.UpdateField("prefs", "theme", "dark")
	_ = s.Update("prefs", map[string]any{
		"n":      int64(3),
		"wide":   200,
		"whole":  2.0,
		"ratio":  1.5,
		"nested": map[string]any{"count": 7, "items": []any{1, 2.5}},
	})
	if !s.Save(ctx) {
		t.Fatal("Save returned false")
	}

	fresh := New(nil, WithKeyValue(kv, ""))
	if !fresh.Load(ctx) {
		t.Fatal("Load returned false")
	}
	if diff := cmp.Diff(s.Snapshot(), fresh.Snapshot()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	prefs, err := fresh.Section("prefs")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"theme":  "dark",
		"n":      int64(3),
		"wide":   int64(200),
		"whole":  2.0,
		"ratio":  1.5,
		"nested": map[string]any{"count": int64(7), "items": []any{int64(1), 2.5}},
	}
	if diff := cmp.Diff(want, prefs); diff != "" {
		t.Errorf("extension numbers changed type (-want +got):\n%s", diff)
	}
	if fresh.Revision() == "" || fresh.Revision() != s.Revision() {
		t.Errorf("revision = %q, expected %q", fresh.Revision(), s.Revision())
	}
}

func TestLoadMergesOlderSchemas(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	blob := `{"version":1,"state":{
		"company":{"name":"Antiga"},
		"cashCycle":{"pmr":50,"legacyField":true},
		"simulationResults":null,
		"dashboard":{"layout":"grid"},
		"financialParameters":"corrupted"
	}}`
	if err := kv.Put(ctx, "splitPaymentSimulator.state", []byte(blob)); err != nil {
		t.Fatal(err)
	}

	s := New(nil, WithKeyValue(kv, ""))
	if !s.Load(ctx) {
		t.Fatal("Load returned false")
	}
	st := s.Snapshot()
	d := model.Defaults()
	if st.Company.Name != "Antiga" || st.Company.MonthlyRevenue != d.Company.MonthlyRevenue {
		t.Errorf("company not merged into defaults: %+v", st.Company)
	}
	if st.CashCycle.PMR != 50 || st.CashCycle.PMP != d.CashCycle.PMP {
		t.Errorf("cashCycle not merged: %+v", st.CashCycle)
	}
	if diff := cmp.Diff(d.FinancialParameters, st.FinancialParameters); diff != "" {
		t.Errorf("unreadable section should keep defaults:\n%s", diff)
	}
	if st.Extensions["dashboard"]["layout"] != "grid" {
		t.Errorf("unknown section not kept: %+v", st.Extensions)
	}
}

type failingKV struct {
	kvstore.KeyValue
}

func (failingKV) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestPersistenceFailuresReturnFalse(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)

	if New(zap.New(core)).Save(ctx) {
		t.Errorf("Save without backend should return false")
	}

	kv := kvstore.NewMemory()
	if New(nil, WithKeyValue(kv, "")).Load(ctx) {
		t.Errorf("Load without a save should return false")
	}

	good := New(zap.New(core), WithKeyValue(kv, ""))
	if !good.Save(ctx) {
		t.Fatal("Save returned false")
	}
	prior, _, _ := kv.Get(ctx, "splitPaymentSimulator.state")

	bad := New(zap.New(core), WithKeyValue(failingKV{kv}, ""))
	_ = bad.UpdateField(model.SectionCompany, "name", "lost")
	if bad.Save(ctx) {
		t.Errorf("Save on a failing backend should return false")
	}
	after, _, _ := kv.Get(ctx, "splitPaymentSimulator.state")
	if string(prior) != string(after) {
		t.Errorf("failed save replaced the prior blob")
	}

	_ = kv.Put(ctx, "splitPaymentSimulator.state", []byte("{not json"))
	if good.Load(ctx) {
		t.Errorf("Load of a corrupt blob should return false")
	}
	if logs.FilterMessage("persistence failed").Len() != 3 {
		t.Errorf("expected 3 persistence warnings, got %d", logs.FilterMessage("persistence failed").Len())
	}
}
