package qcflag

import (
	"context"
	"testing"

	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

func detectorNames(detectors []ports.Detector) []string {
	names := make([]string, 0, len(detectors))
	for _, item := range detectors {
		names = append(names, item.Name)
	}
	return names
}

func TestGaqSummaryWorstOf(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	pass := h.dataPassID(t, "LHC22a_apass1")
	tpc, its := h.detectorID(t, "TPC"), h.detectorID(t, "ITS")

	if _, err := h.svc.SetGaqDetectors(ctx, SetGaqDetectorsInput{DataPassID: pass, RunNumber: 106, DetectorIDs: []int64{tpc, its, tpc}, ActorID: 1}); err != nil {
		t.Fatalf("SetGaqDetectors() error = %v", err)
	}

	good, bad := h.flagTypeID(t, "Good"), h.flagTypeID(t, "Bad")
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: good})
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: its, DataPassID: &pass, FlagTypeID: good})
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: its, DataPassID: &pass, FlagTypeID: bad, From: ms(20), To: ms(40)})

	summary, err := h.svc.GetGaqSummary(ctx, GaqSummaryQuery{DataPassID: pass, RunNumber: 106})
	if err != nil {
		t.Fatalf("GetGaqSummary() error = %v", err)
	}
	if got := detectorNames(summary.Detectors); len(got) != 2 || got[0] != "ITS" || got[1] != "TPC" {
		t.Fatalf("gaq detectors = %v, want [ITS TPC]", got)
	}
	if len(summary.Segments) != 3 {
		t.Fatalf("segments = %+v, want three", summary.Segments)
	}
	if summary.Segments[1].Quality != domainqcflag.QualityBad || summary.Segments[1].String() != "[20, 40)" {
		t.Fatalf("middle segment = %+v", summary.Segments[1])
	}
	if !approx(*summary.Summary.BadEffectiveRunCoverage, 0.2) {
		t.Fatalf("bad coverage = %v, want 0.2", *summary.Summary.BadEffectiveRunCoverage)
	}
	if !approx(*summary.Summary.ExplicitlyNotBadEffectiveRunCoverage, 0.8) {
		t.Fatalf("not bad coverage = %v, want 0.8", *summary.Summary.ExplicitlyNotBadEffectiveRunCoverage)
	}
	if summary.Summary.MissingVerificationsCount != 3 {
		t.Fatalf("missing verifications = %d, want 3", summary.Summary.MissingVerificationsCount)
	}
}

func TestGaqSummaryWithoutDetectorsIsUndefined(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	summary, err := h.svc.GetGaqSummary(ctx, GaqSummaryQuery{DataPassID: h.dataPassID(t, "LHC22b_apass1"), RunNumber: 107})
	if err != nil {
		t.Fatalf("GetGaqSummary() error = %v", err)
	}
	if len(summary.Segments) != 1 || summary.Segments[0].Quality != domainqcflag.QualityUndefined {
		t.Fatalf("segments = %+v, want one undefined", summary.Segments)
	}
	if !approx(*summary.Summary.UndefinedQualityCoverage, 1) {
		t.Fatalf("undefined coverage = %v, want 1", *summary.Summary.UndefinedQualityCoverage)
	}
}

func TestGaqSummaryCacheInvalidatedByFlagChanges(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	pass := h.dataPassID(t, "LHC22a_apass1")
	tpc := h.detectorID(t, "TPC")

	if _, err := h.svc.SetGaqDetectors(ctx, SetGaqDetectorsInput{DataPassID: pass, RunNumber: 106, DetectorIDs: []int64{tpc}, ActorID: 1}); err != nil {
		t.Fatalf("SetGaqDetectors() error = %v", err)
	}
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: h.flagTypeID(t, "Good")})

	first, err := h.svc.GetGaqSummary(ctx, GaqSummaryQuery{DataPassID: pass, RunNumber: 106})
	if err != nil {
		t.Fatalf("GetGaqSummary() error = %v", err)
	}
	if keys := h.cache.keysWithPrefix("qc:gaq:"); len(keys) != 1 {
		t.Fatalf("cached summaries = %v, want one", keys)
	}
	if _, err := h.svc.GetGaqSummary(ctx, GaqSummaryQuery{DataPassID: pass, RunNumber: 106}); err != nil {
		t.Fatalf("GetGaqSummary(cached) error = %v", err)
	}
	if keys := h.cache.keysWithPrefix("qc:gaq:"); len(keys) != 1 {
		t.Fatalf("cached summaries after hit = %v, want one", keys)
	}

	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: h.flagTypeID(t, "Bad"), From: ms(0), To: ms(50)})

	second, err := h.svc.GetGaqSummary(ctx, GaqSummaryQuery{DataPassID: pass, RunNumber: 106})
	if err != nil {
		t.Fatalf("GetGaqSummary() error = %v", err)
	}
	if !approx(*first.Summary.BadEffectiveRunCoverage, 0) {
		t.Fatalf("first bad coverage = %v, want 0", *first.Summary.BadEffectiveRunCoverage)
	}
	if !approx(*second.Summary.BadEffectiveRunCoverage, 0.5) {
		t.Fatalf("second bad coverage = %v, want 0.5", *second.Summary.BadEffectiveRunCoverage)
	}
}

func TestGaqSummaryMCReproducibleOverride(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	pass := h.dataPassID(t, "LHC22a_apass1")
	tpc := h.detectorID(t, "TPC")

	if _, err := h.svc.SetGaqDetectors(ctx, SetGaqDetectorsInput{DataPassID: pass, RunNumber: 106, DetectorIDs: []int64{tpc}, ActorID: 1}); err != nil {
		t.Fatalf("SetGaqDetectors() error = %v", err)
	}
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: h.flagTypeID(t, "LimitedAcceptanceMCReproducible")})

	asNotBad := true
	tests := []struct {
		name     string
		override *bool
		wantBad  float64
	}{
		{"configured default", nil, 1},
		{"treated as not bad", &asNotBad, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := h.svc.GetGaqSummary(ctx, GaqSummaryQuery{DataPassID: pass, RunNumber: 106, MCReproducibleAsNotBad: tt.override})
			if err != nil {
				t.Fatalf("GetGaqSummary() error = %v", err)
			}
			if !summary.Summary.MCReproducible {
				t.Fatalf("summary not marked mc reproducible")
			}
			if !approx(*summary.Summary.BadEffectiveRunCoverage, tt.wantBad) {
				t.Fatalf("bad coverage = %v, want %v", *summary.Summary.BadEffectiveRunCoverage, tt.wantBad)
			}
		})
	}
}

func TestUseDefaultGaqDetectorsFollowsBeamType(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	pass := h.dataPassID(t, "LHC22a_apass1")

	tests := []struct {
		run  int64
		want []string
	}{
		{106, []string{"FT0", "ITS", "TPC"}},
		{107, []string{"FT0", "ITS", "TPC", "ZDC"}},
	}
	for _, tt := range tests {
		detectors, err := h.svc.UseDefaultGaqDetectors(ctx, pass, tt.run, 1)
		if err != nil {
			t.Fatalf("UseDefaultGaqDetectors(%d) error = %v", tt.run, err)
		}
		got := detectorNames(detectors)
		if len(got) != len(tt.want) {
			t.Fatalf("run %d gaq detectors = %v, want %v", tt.run, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("run %d gaq detectors = %v, want %v", tt.run, got, tt.want)
			}
		}
	}
}

func TestSetGaqDetectorsRejectsForeignDetectors(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	passA := h.dataPassID(t, "LHC22a_apass1")
	passB := h.dataPassID(t, "LHC22b_apass1")

	tests := []struct {
		name  string
		input SetGaqDetectorsInput
		check func(error) bool
	}{
		{"detector outside run", SetGaqDetectorsInput{DataPassID: passA, RunNumber: 106, DetectorIDs: []int64{h.detectorID(t, "EMC")}}, errs.IsValidation},
		{"test detector", SetGaqDetectorsInput{DataPassID: passA, RunNumber: 106, DetectorIDs: []int64{h.detectorID(t, "TST")}}, errs.IsValidation},
		{"pass without run", SetGaqDetectorsInput{DataPassID: passB, RunNumber: 106, DetectorIDs: []int64{h.detectorID(t, "TPC")}}, errs.IsValidation},
		{"unknown pass", SetGaqDetectorsInput{DataPassID: 999, RunNumber: 106}, errs.IsNotFound},
		{"unknown run", SetGaqDetectorsInput{DataPassID: passA, RunNumber: 999}, errs.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.SetGaqDetectors(ctx, tt.input); !tt.check(err) {
				t.Fatalf("SetGaqDetectors() error = %v", err)
			}
		})
	}
}

func TestGetDataPassGaqSummaries(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	pass := h.dataPassID(t, "LHC22a_apass1")

	summaries, err := h.svc.GetDataPassGaqSummaries(ctx, pass, nil)
	if err != nil {
		t.Fatalf("GetDataPassGaqSummaries() error = %v", err)
	}
	if len(summaries) != 2 || summaries[0].RunNumber != 106 || summaries[1].RunNumber != 107 {
		t.Fatalf("summaries = %+v, want runs 106 and 107", summaries)
	}

	if _, err := h.svc.GetDataPassGaqSummaries(ctx, 999, nil); !errs.IsNotFound(err) {
		t.Fatalf("GetDataPassGaqSummaries(missing) error = %v, want not found", err)
	}
}

func TestPassDetectorSummaries(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	pass := h.dataPassID(t, "LHC22a_apass1")
	tpc, its, ft0 := h.detectorID(t, "TPC"), h.detectorID(t, "ITS"), h.detectorID(t, "FT0")
	good, bad := h.flagTypeID(t, "Good"), h.flagTypeID(t, "Bad")

	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: bad, From: ms(0), To: ms(50)})
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, DataPassID: &pass, FlagTypeID: good, From: ms(50), To: ms(100)})
	h.insert(t, InsertFlagInput{RunNumber: 107, DetectorID: its, DataPassID: &pass, FlagTypeID: good})
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: ft0, FlagTypeID: bad})

	summaries, err := h.svc.GetPassDetectorSummaries(ctx, PassDetectorSummariesQuery{DataPassID: &pass})
	if err != nil {
		t.Fatalf("GetPassDetectorSummaries() error = %v", err)
	}
	if len(summaries) != 2 || len(summaries[106]) != 1 || len(summaries[107]) != 1 {
		t.Fatalf("summaries = %+v, want TPC on 106 and ITS on 107", summaries)
	}
	tpcSummary, ok := summaries[106][tpc]
	if !ok {
		t.Fatalf("run 106 summaries = %+v, want TPC", summaries[106])
	}
	if !approx(*tpcSummary.BadEffectiveRunCoverage, 0.5) || !approx(*tpcSummary.ExplicitlyNotBadEffectiveRunCoverage, 0.5) {
		t.Fatalf("TPC summary = %+v, want half bad", tpcSummary)
	}
	if !approx(*summaries[107][its].ExplicitlyNotBadEffectiveRunCoverage, 1) {
		t.Fatalf("ITS summary = %+v, want fully not bad", summaries[107][its])
	}

	sim, err := h.catalog.EnsureSimulationPass(ctx, "LHC23k1")
	if err != nil {
		t.Fatalf("EnsureSimulationPass() error = %v", err)
	}
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: ft0, SimulationPassID: &sim.ID, FlagTypeID: bad, From: ms(0), To: ms(25)})

	simSummaries, err := h.svc.GetPassDetectorSummaries(ctx, PassDetectorSummariesQuery{SimulationPassID: &sim.ID})
	if err != nil {
		t.Fatalf("GetPassDetectorSummaries(simulation) error = %v", err)
	}
	if len(simSummaries) != 1 || !approx(*simSummaries[106][ft0].BadEffectiveRunCoverage, 0.25) {
		t.Fatalf("simulation summaries = %+v", simSummaries)
	}

	missing := int64(999)
	tests := []struct {
		name  string
		query PassDetectorSummariesQuery
		check func(error) bool
	}{
		{"no pass", PassDetectorSummariesQuery{}, errs.IsValidation},
		{"both passes", PassDetectorSummariesQuery{DataPassID: &pass, SimulationPassID: &sim.ID}, errs.IsValidation},
		{"unknown data pass", PassDetectorSummariesQuery{DataPassID: &missing}, errs.IsNotFound},
		{"unknown simulation pass", PassDetectorSummariesQuery{SimulationPassID: &missing}, errs.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.GetPassDetectorSummaries(ctx, tt.query); !tt.check(err) {
				t.Fatalf("GetPassDetectorSummaries() error = %v", err)
			}
		})
	}
}
