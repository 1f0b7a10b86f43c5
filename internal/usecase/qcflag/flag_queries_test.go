package qcflag

import (
	"context"
	"testing"

	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
)

func TestGetFlagDetails(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")

	a := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Good")})
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: h.flagTypeID(t, "Bad"), From: ms(40), To: ms(60)})
	if _, err := h.svc.VerifyFlag(ctx, VerifyFlagInput{FlagID: a.Flag.ID, UserID: 8, Comment: "ok"}); err != nil {
		t.Fatalf("VerifyFlag() error = %v", err)
	}

	details, err := h.svc.GetFlag(ctx, a.Flag.ID)
	if err != nil {
		t.Fatalf("GetFlag() error = %v", err)
	}
	if details.FlagType.Method != "Good" {
		t.Fatalf("flag type = %+v", details.FlagType)
	}
	if len(details.Verifications) != 1 || details.Verifications[0].CreatedByID != 8 {
		t.Fatalf("verifications = %+v", details.Verifications)
	}
	var periods []string
	for _, item := range details.EffectivePeriods {
		periods = append(periods, item.Period.String())
	}
	if len(periods) != 2 || periods[0] != "[-, 40)" || periods[1] != "[60, -)" {
		t.Fatalf("effective periods = %v", periods)
	}

	if _, err := h.svc.GetFlag(ctx, 999); !errs.IsNotFound(err) {
		t.Fatalf("GetFlag(missing) error = %v, want not found", err)
	}
	if _, err := h.svc.GetFlag(ctx, 0); !errs.IsValidation(err) {
		t.Fatalf("GetFlag(0) error = %v, want validation", err)
	}
}

func TestGetFlagReturnsDiscardedFlag(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	flag := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: h.detectorID(t, "ITS"), FlagTypeID: h.flagTypeID(t, "Bad")})
	if _, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: flag.Flag.ID, ActorID: 7}); err != nil {
		t.Fatalf("DiscardFlag() error = %v", err)
	}

	details, err := h.svc.GetFlag(ctx, flag.Flag.ID)
	if err != nil {
		t.Fatalf("GetFlag() error = %v", err)
	}
	if !details.Deleted || len(details.EffectivePeriods) != 0 {
		t.Fatalf("GetFlag(discarded) = %+v", details)
	}
}

func TestListScopeFlags(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	tpc := h.detectorID(t, "TPC")
	good := h.flagTypeID(t, "Good")
	dataPass := h.dataPassID(t, "LHC22a_apass1")

	var ids []int64
	for i := int64(0); i < 4; i++ {
		result := h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, From: ms(i * 10), To: ms(i*10 + 10)})
		ids = append(ids, result.Flag.ID)
	}
	if _, err := h.svc.DiscardFlag(ctx, DiscardFlagInput{FlagID: ids[3], ActorID: 7}); err != nil {
		t.Fatalf("DiscardFlag() error = %v", err)
	}
	h.insert(t, InsertFlagInput{RunNumber: 106, DetectorID: tpc, FlagTypeID: good, DataPassID: &dataPass})

	scope := domainqcflag.ScopeKey{RunNumber: 106, DetectorID: tpc}
	page, err := h.svc.ListScopeFlags(ctx, scope, 2, 0)
	if err != nil {
		t.Fatalf("ListScopeFlags() error = %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
	if len(page.Items) != 2 || page.Items[0].ID != ids[2] || page.Items[1].ID != ids[1] {
		t.Fatalf("first page = %+v", page.Items)
	}
	if page.Items[0].FlagType.ID != good || len(page.Items[0].EffectivePeriods) != 1 {
		t.Fatalf("first item = %+v", page.Items[0])
	}

	page, err = h.svc.ListScopeFlags(ctx, scope, 2, 2)
	if err != nil {
		t.Fatalf("ListScopeFlags(offset) error = %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != ids[0] {
		t.Fatalf("second page = %+v", page.Items)
	}

	passPage, err := h.svc.ListScopeFlags(ctx, domainqcflag.ScopeKey{RunNumber: 106, DetectorID: tpc, DataPassID: &dataPass}, 0, 0)
	if err != nil {
		t.Fatalf("ListScopeFlags(data pass) error = %v", err)
	}
	if passPage.Total != 1 {
		t.Fatalf("data pass total = %d, want 1", passPage.Total)
	}

	tests := []struct {
		name   string
		scope  domainqcflag.ScopeKey
		limit  int
		offset int
		check  func(error) bool
	}{
		{"limit too large", scope, maxFlagPageSize + 1, 0, errs.IsValidation},
		{"negative offset", scope, 10, -1, errs.IsValidation},
		{"unknown run", domainqcflag.ScopeKey{RunNumber: 999, DetectorID: tpc}, 10, 0, errs.IsNotFound},
		{"run without detector", domainqcflag.ScopeKey{RunNumber: 108, DetectorID: h.detectorID(t, "ITS")}, 10, 0, errs.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.ListScopeFlags(ctx, tt.scope, tt.limit, tt.offset); !tt.check(err) {
				t.Fatalf("ListScopeFlags() error = %v", err)
			}
		})
	}
}
