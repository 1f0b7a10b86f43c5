package qcflag

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

func TestInsertFlagRun106Scenario(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")

	first := h.insert(t, InsertFlagInput{
		RunNumber:  106,
		DetectorID: tpc,
		FlagTypeID: h.flagTypeID(t, "Good"),
		From:       ms(0),
		To:         ms(100),
	})
	if first.Flag.Period.From != nil || first.Flag.Period.To != nil {
		t.Fatalf("flag covering the run should be open, got %s", first.Flag.Period)
	}

	second := h.insert(t, InsertFlagInput{
		RunNumber:  106,
		DetectorID: tpc,
		FlagTypeID: h.flagTypeID(t, "LimitedAcceptance"),
		From:       ms(30),
		To:         ms(50),
	})
	if len(second.Changes) != 1 || len(second.Changes[0].After) != 2 {
		t.Fatalf("second insert changes = %+v, want one split", second.Changes)
	}

	result, err := h.svc.GetEffectivePeriods(ctx, EffectivePeriodsQuery{RunNumber: 106, DetectorIDs: []int64{tpc}})
	if err != nil {
		t.Fatalf("GetEffectivePeriods() error = %v", err)
	}
	got := describeTimeline(result.Detectors[0])
	want := "[-, 30) Good; [30, 50) Limited acceptance; [50, -) Good"
	if got != want {
		t.Fatalf("timeline = %q, want %q", got, want)
	}
	if result.Detectors[0].Segments[1].Quality != domainqcflag.QualityBad {
		t.Fatalf("middle segment quality = %s", result.Detectors[0].Segments[1].Quality)
	}

	summary, err := h.svc.GetDetectorSummary(ctx, DetectorSummaryQuery{RunNumber: 106, DetectorID: tpc})
	if err != nil {
		t.Fatalf("GetDetectorSummary() error = %v", err)
	}
	if summary.Summary.BadEffectiveRunCoverage == nil || !approx(*summary.Summary.BadEffectiveRunCoverage, 0.2) {
		t.Fatalf("bad coverage = %v, want 0.2", summary.Summary.BadEffectiveRunCoverage)
	}
	if !approx(*summary.Summary.ExplicitlyNotBadEffectiveRunCoverage, 0.8) {
		t.Fatalf("not bad coverage = %v, want 0.8", *summary.Summary.ExplicitlyNotBadEffectiveRunCoverage)
	}
	if summary.Summary.MissingVerificationsCount != 2 {
		t.Fatalf("missing verifications = %d, want 2", summary.Summary.MissingVerificationsCount)
	}
}

func TestInsertFlagLastWriterWinsOnIdenticalRange(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")

	a := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Good"), From: ms(10), To: ms(20)})
	b := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Bad"), From: ms(10), To: ms(20)})

	aPeriods, err := h.flags.ListFlagPeriods(ctx, a.Flag.ID)
	if err != nil {
		t.Fatalf("ListFlagPeriods(a) error = %v", err)
	}
	if len(aPeriods) != 0 {
		t.Fatalf("earlier flag periods = %v, want none", aPeriods)
	}
	bPeriods, err := h.flags.ListFlagPeriods(ctx, b.Flag.ID)
	if err != nil {
		t.Fatalf("ListFlagPeriods(b) error = %v", err)
	}
	if len(bPeriods) != 1 || bPeriods[0].String() != "[10, 20)" {
		t.Fatalf("later flag periods = %v, want [10, 20)", bPeriods)
	}

	stored, err := h.flags.GetFlag(ctx, a.Flag.ID)
	if err != nil {
		t.Fatalf("GetFlag() error = %v", err)
	}
	if stored.Deleted {
		t.Fatalf("overridden flag must not be deleted")
	}
}

func TestInsertFlagKeepsPassScopesApart(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")
	pass := h.dataPassID(t, "LHC22a_apass1")

	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Good")})
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: h.flagTypeID(t, "Bad"), From: ms(20), To: ms(40)})

	synchronous, err := h.svc.GetEffectivePeriods(ctx, EffectivePeriodsQuery{RunNumber: 106, DetectorIDs: []int64{tpc}})
	if err != nil {
		t.Fatalf("GetEffectivePeriods(sync) error = %v", err)
	}
	if got := describeTimeline(synchronous.Detectors[0]); got != "[-, -) Good" {
		t.Fatalf("synchronous timeline = %q", got)
	}

	passed, err := h.svc.GetEffectivePeriods(ctx, EffectivePeriodsQuery{RunNumber: 106, DetectorIDs: []int64{tpc}, DataPassID: &pass})
	if err != nil {
		t.Fatalf("GetEffectivePeriods(pass) error = %v", err)
	}
	if got := describeTimeline(passed.Detectors[0]); got != "[-, 20) undefined; [20, 40) Bad; [40, -) undefined" {
		t.Fatalf("data pass timeline = %q", got)
	}
}

func TestInsertFlagRejectsInvalidRequests(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	tpc := h.detectorID(t, "TPC")
	good := h.flagTypeID(t, "Good")
	pass := h.dataPassID(t, "LHC22b_apass1")
	otherPass := h.dataPassID(t, "LHC22a_apass1")
	missing := int64(999)

	archived, err := h.svc.CreateFlagType(ctx, CreateFlagTypeInput{Name: "Retired", Method: "Retired"})
	if err != nil {
		t.Fatalf("CreateFlagType() error = %v", err)
	}
	if _, err := h.svc.ArchiveFlagType(ctx, archived.ID, 1); err != nil {
		t.Fatalf("ArchiveFlagType() error = %v", err)
	}

	tests := []struct {
		name     string
		input    InsertFlagInput
		wantKind func(error) bool
	}{
		{"inverted range", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, From: ms(50), To: ms(20)}, errs.IsValidation},
		{"zero length", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, From: ms(20), To: ms(20)}, errs.IsValidation},
		{"outside run", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, From: ms(150), To: ms(200)}, errs.IsValidation},
		{"archived type", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: archived.ID}, errs.IsValidation},
		{"unknown type", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: missing}, errs.IsValidation},
		{"unknown run", InsertFlagInput{RunNumber: 999, DetectorID: tpc, FlagTypeID: good}, errs.IsNotFound},
		{"unknown detector", InsertFlagInput{RunNumber: 106, DetectorID: missing, FlagTypeID: good}, errs.IsNotFound},
		{"non qc detector", InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "TST"), FlagTypeID: good}, errs.IsValidation},
		{"detector outside run", InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "EMC"), FlagTypeID: good}, errs.IsValidation},
		{"both pass kinds", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, DataPassID: &otherPass, SimulationPassID: &otherPass}, errs.IsValidation},
		{"pass without run", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, DataPassID: &pass}, errs.IsValidation},
		{"unknown pass", InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, DataPassID: &missing}, errs.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.CreatedByID = 7
			_, err := h.svc.InsertFlag(ctx, tt.input)
			if !tt.wantKind(err) {
				t.Fatalf("InsertFlag() error = %v", err)
			}
		})
	}

	periods, err := h.flags.ListRunPeriods(ctx, 106)
	if err != nil {
		t.Fatalf("ListRunPeriods() error = %v", err)
	}
	if len(periods) != 0 {
		t.Fatalf("rejected inserts left periods %v", periods)
	}
}

func TestInsertFlagDisjointOrderIndependent(t *testing.T) {
	ranges := [][2]int64{{10, 20}, {40, 60}, {70, 80}}
	orders := [][]int{{0, 1, 2}, {2, 0, 1}, {1, 2, 0}}

	var first string
	for _, order := range orders {
		h := setupHarness(t)
		tpc := h.detectorID(t, "TPC")
		for _, idx := range order {
			h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Good"), From: ms(ranges[idx][0]), To: ms(ranges[idx][1])})
		}
		result, err := h.svc.GetEffectivePeriods(context.Background(), EffectivePeriodsQuery{RunNumber: 106, DetectorIDs: []int64{tpc}})
		if err != nil {
			t.Fatalf("GetEffectivePeriods() error = %v", err)
		}
		got := describeTimeline(result.Detectors[0])
		if first == "" {
			first = got
			continue
		}
		if got != first {
			t.Fatalf("order %v timeline = %q, want %q", order, got, first)
		}
	}
}

func TestConcurrentInsertsKeepScopeDisjoint(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")
	good := h.flagTypeID(t, "Good")

	rng := rand.New(rand.NewSource(106))
	inputs := make([]InsertFlagInput, 0, 12)
	for i := 0; i < 12; i++ {
		from := rng.Int63n(90)
		to := from + 1 + rng.Int63n(100-from)
		inputs = append(inputs, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, From: ms(from), To: ms(to), CreatedByID: 7})
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(inputs))
	for _, input := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.InsertFlag(ctx, input); err != nil {
				errCh <- fmt.Errorf("insert %v-%v: %w", *input.From, *input.To, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("InsertFlag() error = %v", err)
	}

	scope := domainqcflag.ScopeKey{RunNumber: 106, DetectorID: tpc}
	periods, err := h.flags.ListScopePeriods(ctx, scope)
	if err != nil {
		t.Fatalf("ListScopePeriods() error = %v", err)
	}
	if err := domainqcflag.CheckDisjoint(scope.String(), periods); err != nil {
		t.Fatalf("CheckDisjoint() error = %v", err)
	}

	segments := domainqcflag.Tile(periods)
	if segments[0].From != nil || segments[len(segments)-1].To != nil {
		t.Fatalf("tiling does not cover the run: %v", segments)
	}
	for i := 1; i < len(segments); i++ {
		if segments[i-1].To == nil || segments[i].From == nil || *segments[i-1].To != *segments[i].From {
			t.Fatalf("tiling has a gap or overlap at %d: %v", i, segments)
		}
	}
}

type flakyLocker struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (l *flakyLocker) Lock(_ context.Context, requests ...ports.LockRequest) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.failures {
		return nil, errs.Contention(requests[0].Key, nil)
	}
	return func() {}, nil
}

func TestInsertFlagRetriesContention(t *testing.T) {
	locker := &flakyLocker{failures: 2}
	h := setupHarnessWithLocker(t, locker)

	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "TPC"), FlagTypeID: h.flagTypeID(t, "Good")})
	if locker.calls != 3 {
		t.Fatalf("lock attempts = %d, want 3", locker.calls)
	}
}

func TestInsertFlagSurfacesPersistentContention(t *testing.T) {
	locker := &flakyLocker{failures: 100}
	h := setupHarnessWithLocker(t, locker)

	_, err := h.svc.InsertFlag(context.Background(), InsertFlagInput{
		RunNumber:   106,
		DetectorID:  h.detectorID(t, "TPC"),
		FlagTypeID:  h.flagTypeID(t, "Good"),
		CreatedByID: 7,
	})
	if !errs.IsContention(err) {
		t.Fatalf("InsertFlag() error = %v, want contention", err)
	}
	if locker.calls != DefaultOptions().Retry.MaxAttempts {
		t.Fatalf("lock attempts = %d, want %d", locker.calls, DefaultOptions().Retry.MaxAttempts)
	}
}

func TestInsertFlagPublishesAuditEvent(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	result := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "TPC"), FlagTypeID: h.flagTypeID(t, "Good")})

	events, err := h.svc.ListAuditEvents(ctx, 106, 10)
	if err != nil {
		t.Fatalf("ListAuditEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventFlagCreated {
		t.Fatalf("audit events = %+v", events)
	}
	if events[0].FlagID == nil || *events[0].FlagID != result.Flag.ID {
		t.Fatalf("audit flag id = %v, want %d", events[0].FlagID, result.Flag.ID)
	}

	kinds := h.publisher.kinds()
	if kinds[len(kinds)-1] != EventFlagCreated {
		t.Fatalf("published kinds = %v", kinds)
	}
}

func approx(got float64, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}
