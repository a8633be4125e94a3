package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/dataset"
	"github.com/yourusername/frc-picklist/internal/models"
	"github.com/yourusername/frc-picklist/internal/picklist"
)

const maxRequestBytes = 8 << 20

// Picklists is the generator surface served over HTTP.
type Picklists interface {
	Generate(ctx context.Context, req picklist.Request) *models.PicklistResult
	RankMissingTeams(ctx context.Context, req picklist.Request, existing *models.PicklistResult) *models.PicklistResult
	MergeAndUpdate(ctx context.Context, existing *models.PicklistResult, entries []models.RankingEntry) (*models.PicklistResult, error)
	BatchStatus(ctx context.Context, fingerprint string) (*picklist.BatchStatus, error)
}

// GenerateRequest names an event whose dataset is ranked with the given
// priorities. Generate and rank-missing share it.
type GenerateRequest struct {
	Event         string              `json:"event"`
	Priorities    []models.Priority   `json:"priorities"`
	PickPosition  models.PickPosition `json:"pick_position"`
	Strategy      string              `json:"strategy,omitempty"`
	ExcludedTeams []int               `json:"excluded_teams,omitempty"`
}

// MergeRequest applies manually supplied entries to an existing result.
type MergeRequest struct {
	Result  *models.PicklistResult `json:"result"`
	Entries []models.RankingEntry  `json:"entries"`
}

// ErrorResponse is returned for requests that never reach the generator.
type ErrorResponse struct {
	Error string `json:"error"`
}

// API serves picklist generation. Every generator result is returned with
// 200; callers read its status field.
type API struct {
	picklists Picklists
	datasets  dataset.Provider
	logger    *logrus.Entry
}

// NewAPI creates the picklist API.
func NewAPI(picklists Picklists, datasets dataset.Provider, logger *logrus.Logger) *API {
	return &API{
		picklists: picklists,
		datasets:  datasets,
		logger:    logger.WithField("component", "api"),
	}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/picklist/generate", a.handleGenerate)
	mux.HandleFunc("POST /v1/picklist/rank-missing", a.handleRankMissing)
	mux.HandleFunc("POST /v1/picklist/merge", a.handleMerge)
	mux.HandleFunc("GET /v1/picklist/status/{fingerprint}", a.handleStatus)
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.buildRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.picklists.Generate(r.Context(), req))
}

func (a *API) handleRankMissing(w http.ResponseWriter, r *http.Request) {
	req, ok := a.buildRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.picklists.RankMissingTeams(r.Context(), req, nil))
}

func (a *API) handleMerge(w http.ResponseWriter, r *http.Request) {
	var body MergeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Result == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "result is required"})
		return
	}

	merged, err := a.picklists.MergeAndUpdate(r.Context(), body.Result, body.Entries)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		a.logger.WithError(err).Warn("Merge rejected")
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.picklists.BatchStatus(r.Context(), r.PathValue("fingerprint"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		a.logger.WithError(err).Error("Status lookup failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// buildRequest decodes a GenerateRequest and loads the event's teams.
func (a *API) buildRequest(w http.ResponseWriter, r *http.Request) (picklist.Request, bool) {
	var body GenerateRequest
	if !decodeBody(w, r, &body) {
		return picklist.Request{}, false
	}
	if body.Event == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "event is required"})
		return picklist.Request{}, false
	}

	ds, err := a.datasets.Load(r.Context(), body.Event)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dataset.ErrUnknownEvent) {
			status = http.StatusNotFound
		}
		a.logger.WithError(err).WithField("event", body.Event).Warn("Dataset load failed")
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return picklist.Request{}, false
	}

	return picklist.Request{
		Teams:          ds.Teams,
		Priorities:     body.Priorities,
		PickPosition:   body.PickPosition,
		Strategy:       body.Strategy,
		ExcludedTeams:  body.ExcludedTeams,
		DatasetVersion: ds.Version,
	}, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}
