package qcflag

import (
	"context"
	"testing"

	"qcflags/internal/errs"
)

func TestDiscardFlagDoesNotResurrectCoverage(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")

	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Good")})
	b := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Bad"), From: ms(40), To: ms(60)})

	discarded, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: b.Flag.ID, ActorID: 7, Comment: "wrong detector"})
	if err != nil {
		t.Fatalf("DiscardFlag() error = %v", err)
	}
	if !discarded.Deleted {
		t.Fatalf("DiscardFlag() returned a live flag")
	}

	result, err := h.svc.GetEffectivePeriods(ctx, EffectivePeriodsQuery{RunNumber: 106, DetectorIDs: []int64{tpc}})
	if err != nil {
		t.Fatalf("GetEffectivePeriods() error = %v", err)
	}
	want := "[-, 40) Good; [40, 60) undefined; [60, -) Good"
	if got := describeTimeline(result.Detectors[0]); got != want {
		t.Fatalf("timeline = %q, want %q", got, want)
	}

	if _, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: b.Flag.ID, ActorID: 7}); !errs.IsValidation(err) {
		t.Fatalf("DiscardFlag(again) error = %v, want validation", err)
	}
	if _, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: 999, ActorID: 7}); !errs.IsNotFound(err) {
		t.Fatalf("DiscardFlag(missing) error = %v, want not found", err)
	}

	kinds := h.publisher.kinds()
	if kinds[len(kinds)-1] != EventFlagDiscarded {
		t.Fatalf("published kinds = %v", kinds)
	}
}

func TestDiscardVerifiedFlagConflicts(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	flag := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "ITS"), FlagTypeID: h.flagTypeID(t, "Good")})
	if _, err := h.svc.VerifyFlag(ctx, VerifyFlagInput{FlagID: flag.Flag.ID, UserID: 8, Comment: "checked"}); err != nil {
		t.Fatalf("VerifyFlag() error = %v", err)
	}

	if _, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: flag.Flag.ID, ActorID: 7}); !errs.IsConflict(err) {
		t.Fatalf("DiscardFlag() error = %v, want conflict", err)
	}
}

func TestVerifyFlagRules(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	its := h.detectorID(t, "ITS")

	flag := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: its, FlagTypeID: h.flagTypeID(t, "Good"), CreatedByID: 7})

	if _, err := h.svc.VerifyFlag(ctx, VerifyFlagInput{FlagID: flag.Flag.ID, UserID: 7}); !errs.IsAccessDenied(err) {
		t.Fatalf("VerifyFlag(author) error = %v, want access denied", err)
	}
	if _, err := h.svc.VerifyFlag(ctx, VerifyFlagInput{FlagID: 999, UserID: 8}); !errs.IsNotFound(err) {
		t.Fatalf("VerifyFlag(missing) error = %v, want not found", err)
	}

	verification, err := h.svc.VerifyFlag(ctx, VerifyFlagInput{FlagID: flag.Flag.ID, UserID: 8, Comment: " fine "})
	if err != nil {
		t.Fatalf("VerifyFlag() error = %v", err)
	}
	if verification.ID == 0 || verification.Comment != "fine" {
		t.Fatalf("verification = %+v", verification)
	}

	summary, err := h.svc.GetDetectorSummary(ctx, DetectorSummaryQuery{RunNumber: 106, DetectorID: its})
	if err != nil {
		t.Fatalf("GetDetectorSummary() error = %v", err)
	}
	if summary.Summary.MissingVerificationsCount != 0 {
		t.Fatalf("missing verifications = %d, want 0", summary.Summary.MissingVerificationsCount)
	}

	verifications, err := h.svc.ListVerifications(ctx, flag.Flag.ID)
	if err != nil {
		t.Fatalf("ListVerifications() error = %v", err)
	}
	if len(verifications) != 1 {
		t.Fatalf("len(verifications) = %d, want 1", len(verifications))
	}

	other := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "FT0"), FlagTypeID: h.flagTypeID(t, "Bad")})
	if _, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: other.Flag.ID, ActorID: 7}); err != nil {
		t.Fatalf("DiscardFlag() error = %v", err)
	}
	if _, err := h.svc.VerifyFlag(ctx, VerifyFlagInput{FlagID: other.Flag.ID, UserID: 8}); !errs.IsValidation(err) {
		t.Fatalf("VerifyFlag(discarded) error = %v, want validation", err)
	}
}

func TestFlagTypeCatalogRules(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	created, err := h.svc.CreateFlagType(ctx, CreateFlagTypeInput{Name: "Noisy", Method: "Noisy", Bad: true})
	if err != nil {
		t.Fatalf("CreateFlagType() error = %v", err)
	}
	if created.Color != "#d62631" {
		t.Fatalf("default color = %q", created.Color)
	}

	tests := []struct {
		name  string
		input CreateFlagTypeInput
		check func(error) bool
	}{
		{"duplicate name", CreateFlagTypeInput{Name: "Noisy", Method: "Other"}, errs.IsConflict},
		{"duplicate method", CreateFlagTypeInput{Name: "Other", Method: "Noisy"}, errs.IsConflict},
		{"missing name", CreateFlagTypeInput{Method: "X"}, errs.IsValidation},
		{"missing method", CreateFlagTypeInput{Name: "X"}, errs.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.CreateFlagType(ctx, tt.input); !tt.check(err) {
				t.Fatalf("CreateFlagType() error = %v", err)
			}
		})
	}

	first, err := h.svc.ArchiveFlagType(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("ArchiveFlagType() error = %v", err)
	}
	if first.ArchivedAt == nil {
		t.Fatalf("ArchiveFlagType() did not set archivedAt")
	}
	second, err := h.svc.ArchiveFlagType(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("ArchiveFlagType(again) error = %v", err)
	}
	if *second.ArchivedAt != *first.ArchivedAt {
		t.Fatalf("archivedAt changed from %d to %d", *first.ArchivedAt, *second.ArchivedAt)
	}
	if _, err := h.svc.ArchiveFlagType(ctx, 999, 1); !errs.IsNotFound(err) {
		t.Fatalf("ArchiveFlagType(missing) error = %v, want not found", err)
	}
}

func TestUpdateFlagType(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	its := h.detectorID(t, "ITS")

	noisy, err := h.svc.CreateFlagType(ctx, CreateFlagTypeInput{Name: "Noisy", Method: "Noisy", Bad: true})
	if err != nil {
		t.Fatalf("CreateFlagType() error = %v", err)
	}
	if _, err := h.svc.CreateFlagType(ctx, CreateFlagTypeInput{Name: "Other", Method: "Other"}); err != nil {
		t.Fatalf("CreateFlagType(other) error = %v", err)
	}
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: its, FlagTypeID: noisy.ID})

	str := func(v string) *string { return &v }
	updated, err := h.svc.UpdateFlagType(ctx, UpdateFlagTypeInput{FlagTypeID: noisy.ID, Name: str(" Very noisy "), Color: str("#123456"), ActorID: 1})
	if err != nil {
		t.Fatalf("UpdateFlagType() error = %v", err)
	}
	if updated.Name != "Very noisy" || updated.Method != "Noisy" || updated.Color != "#123456" || !updated.Bad {
		t.Fatalf("UpdateFlagType() = %+v", updated)
	}
	if _, err := h.svc.UpdateFlagType(ctx, UpdateFlagTypeInput{FlagTypeID: noisy.ID, Name: str("Very noisy"), Method: str("Noisy")}); err != nil {
		t.Fatalf("UpdateFlagType(same values) error = %v", err)
	}

	_ = h.cache.Set(ctx, runGenerationKey(106), "1", 0)
	notBad := false
	if _, err := h.svc.UpdateFlagType(ctx, UpdateFlagTypeInput{FlagTypeID: noisy.ID, Bad: &notBad}); err != nil {
		t.Fatalf("UpdateFlagType(bad) error = %v", err)
	}
	if _, found, _ := h.cache.Get(ctx, runGenerationKey(106)); found {
		t.Fatalf("run 106 generation survived a change of bad")
	}
	summary, err := h.svc.GetDetectorSummary(ctx, DetectorSummaryQuery{RunNumber: 106, DetectorID: its})
	if err != nil {
		t.Fatalf("GetDetectorSummary() error = %v", err)
	}
	if !approx(*summary.Summary.ExplicitlyNotBadEffectiveRunCoverage, 1) {
		t.Fatalf("not bad coverage = %v, want 1", *summary.Summary.ExplicitlyNotBadEffectiveRunCoverage)
	}

	tests := []struct {
		name  string
		input UpdateFlagTypeInput
		check func(error) bool
	}{
		{"name taken", UpdateFlagTypeInput{FlagTypeID: noisy.ID, Name: str("Other")}, errs.IsConflict},
		{"method taken", UpdateFlagTypeInput{FlagTypeID: noisy.ID, Method: str("Other")}, errs.IsConflict},
		{"empty name", UpdateFlagTypeInput{FlagTypeID: noisy.ID, Name: str(" ")}, errs.IsValidation},
		{"nothing to update", UpdateFlagTypeInput{FlagTypeID: noisy.ID}, errs.IsValidation},
		{"missing", UpdateFlagTypeInput{FlagTypeID: 999, Name: str("X")}, errs.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.UpdateFlagType(ctx, tt.input); !tt.check(err) {
				t.Fatalf("UpdateFlagType() error = %v", err)
			}
		})
	}

	kinds := h.publisher.kinds()
	if kinds[len(kinds)-1] != EventFlagTypeUpdated {
		t.Fatalf("published kinds = %v", kinds)
	}
}
