package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/metrics"
	"qcflags/internal/ports"
	"qcflags/internal/usecase/qcflag"
)

const actorHeader = "X-User-Id"

type qcFlagAPIService interface {
	ListFlagTypes(context.Context) ([]ports.FlagType, error)
	CreateFlagType(context.Context, qcflag.CreateFlagTypeInput) (ports.FlagType, error)
	UpdateFlagType(context.Context, qcflag.UpdateFlagTypeInput) (ports.FlagType, error)
	ArchiveFlagType(ctx context.Context, flagTypeID int64, actorID int64) (ports.FlagType, error)
	GetFlag(ctx context.Context, flagID int64) (qcflag.FlagDetails, error)
	ListScopeFlags(ctx context.Context, scope domainqcflag.ScopeKey, limit int, offset int) (qcflag.FlagPage, error)
	InsertFlag(context.Context, qcflag.InsertFlagInput) (qcflag.InsertFlagResult, error)
	DiscardFlag(context.Context, qcflag.DiscardFlagInput) (ports.Flag, error)
	VerifyFlag(context.Context, qcflag.VerifyFlagInput) (ports.Verification, error)
	ListVerifications(ctx context.Context, flagID int64) ([]ports.Verification, error)
	GetEffectivePeriods(context.Context, qcflag.EffectivePeriodsQuery) (qcflag.EffectivePeriodsResult, error)
	GetDetectorSummary(context.Context, qcflag.DetectorSummaryQuery) (qcflag.DetectorSummary, error)
	UpdateRunBoundaries(context.Context, qcflag.UpdateRunBoundariesInput) (qcflag.UpdateRunBoundariesResult, error)
	GetGaqSummary(context.Context, qcflag.GaqSummaryQuery) (qcflag.GaqSummary, error)
	GetDataPassGaqSummaries(ctx context.Context, dataPassID int64, mcReproducibleAsNotBad *bool) ([]qcflag.GaqSummary, error)
	GetPassDetectorSummaries(context.Context, qcflag.PassDetectorSummariesQuery) (qcflag.PassDetectorSummaries, error)
	ListGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64) ([]ports.Detector, error)
	SetGaqDetectors(context.Context, qcflag.SetGaqDetectorsInput) ([]ports.Detector, error)
	UseDefaultGaqDetectors(ctx context.Context, dataPassID int64, runNumber int64, actorID int64) ([]ports.Detector, error)
	ListAuditEvents(ctx context.Context, runNumber int64, limit int) ([]ports.AuditEvent, error)
}

type qcFlagAPIHandler struct {
	svc qcFlagAPIService
}

type apiErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type createFlagTypeRequest struct {
	Name           string `json:"name"`
	Method         string `json:"method"`
	Bad            bool   `json:"bad"`
	Color          string `json:"color"`
	MCReproducible bool   `json:"mcReproducible"`
}

type updateFlagTypeRequest struct {
	Name   *string `json:"name"`
	Method *string `json:"method"`
	Bad    *bool   `json:"bad"`
	Color  *string `json:"color"`
}

type insertFlagRequest struct {
	RunNumber        int64  `json:"runNumber"`
	DetectorID       int64  `json:"detectorId"`
	DataPassID       *int64 `json:"dataPassId"`
	SimulationPassID *int64 `json:"simulationPassId"`
	FlagTypeID       int64  `json:"flagTypeId"`
	From             *int64 `json:"from"`
	To               *int64 `json:"to"`
	Comment          string `json:"comment"`
	Origin           string `json:"origin"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

type runBoundariesRequest struct {
	QcTimeStart *int64 `json:"qcTimeStart"`
	QcTimeEnd   *int64 `json:"qcTimeEnd"`
}

type gaqDetectorsRequest struct {
	DetectorIDs []int64 `json:"detectorIds"`
}

func newQCFlagAPIHandler(svc qcFlagAPIService) http.Handler {
	h := &qcFlagAPIHandler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeAPIJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/qc-flag-types", h.listFlagTypes)
		r.Post("/qc-flag-types", h.createFlagType)
		r.Patch("/qc-flag-types/{id}", h.updateFlagType)
		r.Post("/qc-flag-types/{id}/archive", h.archiveFlagType)

		r.Get("/qc-flags", h.listScopeFlags)
		r.Post("/qc-flags", h.insertFlag)
		r.Get("/qc-flags/{id}", h.getFlag)
		r.Delete("/qc-flags/{id}", h.discardFlag)
		r.Get("/qc-flags/{id}/verifications", h.listVerifications)
		r.Post("/qc-flags/{id}/verifications", h.verifyFlag)

		r.Get("/runs/{runNumber}/effective-periods", h.effectivePeriods)
		r.Get("/runs/{runNumber}/detectors/{detectorId}/summary", h.detectorSummary)
		r.Put("/runs/{runNumber}/qc-boundaries", h.updateRunBoundaries)
		r.Get("/runs/{runNumber}/gaq-summary", h.gaqSummary)
		r.Get("/runs/{runNumber}/audit-events", h.auditEvents)

		r.Get("/data-passes/{id}/gaq-summary", h.dataPassGaqSummaries)
		r.Get("/data-passes/{id}/detector-summaries", h.passDetectorSummaries(false))
		r.Get("/simulation-passes/{id}/detector-summaries", h.passDetectorSummaries(true))
		r.Get("/data-passes/{id}/runs/{runNumber}/gaq-detectors", h.listGaqDetectors)
		r.Put("/data-passes/{id}/runs/{runNumber}/gaq-detectors", h.setGaqDetectors)
		r.Post("/data-passes/{id}/runs/{runNumber}/gaq-detectors/default", h.defaultGaqDetectors)
	})
	return r
}

// requestLogger tags the request context with its id and logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ctx := logging.WithRequest(r.Context(), middleware.GetReqID(r.Context()), r.Method+" "+r.URL.Path)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Info(ctx, "http request served",
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
}

func (h *qcFlagAPIHandler) listFlagTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.ListFlagTypes(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, types)
}

func (h *qcFlagAPIHandler) createFlagType(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	var body createFlagTypeRequest
	if err := decodeAPIBody(r, &body); err != nil {
		writeAPIError(w, r, err)
		return
	}

	flagType, err := h.svc.CreateFlagType(r.Context(), qcflag.CreateFlagTypeInput{
		Name:           body.Name,
		Method:         body.Method,
		Bad:            body.Bad,
		Color:          body.Color,
		MCReproducible: body.MCReproducible,
		ActorID:        actor,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, flagType)
}

func (h *qcFlagAPIHandler) updateFlagType(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	var body updateFlagTypeRequest
	if err := decodeAPIBody(r, &body); err != nil {
		writeAPIError(w, r, err)
		return
	}

	flagType, err := h.svc.UpdateFlagType(r.Context(), qcflag.UpdateFlagTypeInput{
		FlagTypeID: id,
		Name:       body.Name,
		Method:     body.Method,
		Bad:        body.Bad,
		Color:      body.Color,
		ActorID:    actor,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, flagType)
}

func (h *qcFlagAPIHandler) archiveFlagType(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	flagType, err := h.svc.ArchiveFlagType(r.Context(), id, actor)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, flagType)
}

func (h *qcFlagAPIHandler) getFlag(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	flag, err := h.svc.GetFlag(r.Context(), id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, flag)
}

func (h *qcFlagAPIHandler) listScopeFlags(w http.ResponseWriter, r *http.Request) {
	var scope domainqcflag.ScopeKey
	required := []struct {
		name string
		dst  *int64
	}{{"runNumber", &scope.RunNumber}, {"detectorId", &scope.DetectorID}}
	for _, param := range required {
		v, err := queryInt64(r, param.name)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		if v == nil {
			writeAPIError(w, r, errs.Validation(param.name, "is required"))
			return
		}
		*param.dst = *v
	}
	dataPassID, err := queryInt64(r, "dataPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	simulationPassID, err := queryInt64(r, "simulationPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	scope.DataPassID, scope.SimulationPassID = dataPassID, simulationPassID
	limit, err := queryCount(r, "limit")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	offset, err := queryCount(r, "offset")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	page, err := h.svc.ListScopeFlags(r.Context(), scope, limit, offset)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, page)
}

func (h *qcFlagAPIHandler) insertFlag(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	var body insertFlagRequest
	if err := decodeAPIBody(r, &body); err != nil {
		writeAPIError(w, r, err)
		return
	}

	origin := strings.TrimSpace(body.Origin)
	if origin == "" {
		origin = "api"
	}
	result, err := h.svc.InsertFlag(r.Context(), qcflag.InsertFlagInput{
		RunNumber:        body.RunNumber,
		DetectorID:       body.DetectorID,
		DataPassID:       body.DataPassID,
		SimulationPassID: body.SimulationPassID,
		FlagTypeID:       body.FlagTypeID,
		From:             body.From,
		To:               body.To,
		Comment:          body.Comment,
		Origin:           origin,
		CreatedByID:      actor,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, result)
}

func (h *qcFlagAPIHandler) discardFlag(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	flag, err := h.svc.DiscardFlag(r.Context(), qcflag.DiscardFlagInput{
		FlagID:  id,
		ActorID: actor,
		Comment: r.URL.Query().Get("comment"),
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, flag)
}

func (h *qcFlagAPIHandler) listVerifications(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	items, err := h.svc.ListVerifications(r.Context(), id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, items)
}

func (h *qcFlagAPIHandler) verifyFlag(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	var body commentRequest
	if err := decodeAPIBody(r, &body); err != nil {
		writeAPIError(w, r, err)
		return
	}

	verification, err := h.svc.VerifyFlag(r.Context(), qcflag.VerifyFlagInput{
		FlagID:  id,
		UserID:  actor,
		Comment: body.Comment,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, verification)
}

func (h *qcFlagAPIHandler) effectivePeriods(w http.ResponseWriter, r *http.Request) {
	runNumber, err := pathInt64(r, "runNumber")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	detectorIDs, err := queryInt64List(r, "detectorIds")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	dataPassID, err := queryInt64(r, "dataPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	simulationPassID, err := queryInt64(r, "simulationPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	result, err := h.svc.GetEffectivePeriods(r.Context(), qcflag.EffectivePeriodsQuery{
		RunNumber:        runNumber,
		DetectorIDs:      detectorIDs,
		DataPassID:       dataPassID,
		SimulationPassID: simulationPassID,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, result)
}

func (h *qcFlagAPIHandler) detectorSummary(w http.ResponseWriter, r *http.Request) {
	runNumber, err := pathInt64(r, "runNumber")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	detectorID, err := pathInt64(r, "detectorId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	dataPassID, err := queryInt64(r, "dataPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	simulationPassID, err := queryInt64(r, "simulationPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	mcr, err := queryBool(r, "mcReproducibleAsNotBad")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	summary, err := h.svc.GetDetectorSummary(r.Context(), qcflag.DetectorSummaryQuery{
		RunNumber:              runNumber,
		DetectorID:             detectorID,
		DataPassID:             dataPassID,
		SimulationPassID:       simulationPassID,
		MCReproducibleAsNotBad: mcr,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, summary)
}

func (h *qcFlagAPIHandler) updateRunBoundaries(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	runNumber, err := pathInt64(r, "runNumber")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	var body runBoundariesRequest
	if err := decodeAPIBody(r, &body); err != nil {
		writeAPIError(w, r, err)
		return
	}

	result, err := h.svc.UpdateRunBoundaries(r.Context(), qcflag.UpdateRunBoundariesInput{
		RunNumber:   runNumber,
		QcTimeStart: body.QcTimeStart,
		QcTimeEnd:   body.QcTimeEnd,
		ActorID:     actor,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, result)
}

func (h *qcFlagAPIHandler) gaqSummary(w http.ResponseWriter, r *http.Request) {
	runNumber, err := pathInt64(r, "runNumber")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	dataPassID, err := queryInt64(r, "dataPassId")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if dataPassID == nil {
		writeAPIError(w, r, errs.Validation("dataPassId", "is required"))
		return
	}
	mcr, err := queryBool(r, "mcReproducibleAsNotBad")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	summary, err := h.svc.GetGaqSummary(r.Context(), qcflag.GaqSummaryQuery{
		DataPassID:             *dataPassID,
		RunNumber:              runNumber,
		MCReproducibleAsNotBad: mcr,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, summary)
}

func (h *qcFlagAPIHandler) auditEvents(w http.ResponseWriter, r *http.Request) {
	runNumber, err := pathInt64(r, "runNumber")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeAPIError(w, r, errs.Validation("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.svc.ListAuditEvents(r.Context(), runNumber, limit)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, events)
}

func (h *qcFlagAPIHandler) dataPassGaqSummaries(w http.ResponseWriter, r *http.Request) {
	dataPassID, err := pathInt64(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	mcr, err := queryBool(r, "mcReproducibleAsNotBad")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	summaries, err := h.svc.GetDataPassGaqSummaries(r.Context(), dataPassID, mcr)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, summaries)
}

func (h *qcFlagAPIHandler) passDetectorSummaries(simulation bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		passID, err := pathInt64(r, "id")
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		mcr, err := queryBool(r, "mcReproducibleAsNotBad")
		if err != nil {
			writeAPIError(w, r, err)
			return
		}

		query := qcflag.PassDetectorSummariesQuery{MCReproducibleAsNotBad: mcr}
		if simulation {
			query.SimulationPassID = &passID
		} else {
			query.DataPassID = &passID
		}
		summaries, err := h.svc.GetPassDetectorSummaries(r.Context(), query)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		writeAPIJSON(w, http.StatusOK, summaries)
	}
}

func (h *qcFlagAPIHandler) listGaqDetectors(w http.ResponseWriter, r *http.Request) {
	dataPassID, runNumber, err := dataPassRunFromPath(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	detectors, err := h.svc.ListGaqDetectors(r.Context(), dataPassID, runNumber)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, detectors)
}

func (h *qcFlagAPIHandler) setGaqDetectors(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	dataPassID, runNumber, err := dataPassRunFromPath(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	var body gaqDetectorsRequest
	if err := decodeAPIBody(r, &body); err != nil {
		writeAPIError(w, r, err)
		return
	}

	detectors, err := h.svc.SetGaqDetectors(r.Context(), qcflag.SetGaqDetectorsInput{
		DataPassID:  dataPassID,
		RunNumber:   runNumber,
		DetectorIDs: body.DetectorIDs,
		ActorID:     actor,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, detectors)
}

func (h *qcFlagAPIHandler) defaultGaqDetectors(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	dataPassID, runNumber, err := dataPassRunFromPath(r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	detectors, err := h.svc.UseDefaultGaqDetectors(r.Context(), dataPassID, runNumber, actor)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, detectors)
}

func actorFromRequest(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(actorHeader))
	if raw == "" {
		return 0, errs.Validation(actorHeader, "header is required")
	}
	actor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || actor <= 0 {
		return 0, errs.Validation(actorHeader, "must be a positive user id")
	}
	return actor, nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Validationf(name, "%q is not an integer", raw)
	}
	return v, nil
}

func dataPassRunFromPath(r *http.Request) (int64, int64, error) {
	dataPassID, err := pathInt64(r, "id")
	if err != nil {
		return 0, 0, err
	}
	runNumber, err := pathInt64(r, "runNumber")
	if err != nil {
		return 0, 0, err
	}
	return dataPassID, runNumber, nil
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errs.Validationf(name, "%q is not an integer", raw)
	}
	return &v, nil
}

// queryInt64List accepts both detectorIds=1,2 and repeated detectorIds=1&detectorIds=2.
func queryInt64List(r *http.Request, name string) ([]int64, error) {
	var out []int64
	for _, value := range r.URL.Query()[name] {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, errs.Validationf(name, "%q is not an integer", part)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// queryCount reads a non-negative integer; absent means 0.
func queryCount(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errs.Validationf(name, "%q is not a non-negative integer", raw)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errs.Validationf(name, "%q is not a boolean", raw)
	}
	return &v, nil
}

func decodeAPIBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Validation("body", "request body is required")
		}
		return errs.Validationf("body", "invalid json: %v", err)
	}
	return nil
}

func apiStatus(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsAccessDenied(err):
		return http.StatusForbidden
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsConflict(err):
		return http.StatusConflict
	case errs.IsContention(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := apiStatus(err)
	response := apiErrorResponse{Error: err.Error()}

	var validation *errs.ValidationError
	if errors.As(err, &validation) {
		response.Field = validation.Field
	}
	if status >= http.StatusInternalServerError {
		logging.Error(r.Context(), "http request failed", slog.Any("err", errs.Loggable(err)))
		if status == http.StatusInternalServerError {
			response.Error = "internal error"
		}
	}
	writeAPIJSON(w, status, response)
}

func writeAPIJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
