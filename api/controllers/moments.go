package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tracehq/trace-backend/api/responses"
	"github.com/tracehq/trace-backend/api/validators"
	"github.com/tracehq/trace-backend/internal/ingest"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
)

type momentsSignRequest struct {
	Files []ingest.SignFileInput `json:"files" validate:"required,min=1,dive"`
}

type momentsConfirmRequest struct {
	RecordIDs []uuid.UUID `json:"record_ids" validate:"required,min=1"`
}

type momentsConfirmResponse struct {
	ConfirmedIDs []uuid.UUID `json:"confirmed_ids"`
}

// MomentsSign issues per-file upload credentials for a batch of media
// descriptors. The response preserves input order.
func MomentsSign(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		activityID, err := activityIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload momentsSignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.SignBatch(r.Context(), activityID, payload.Files)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, results)
	}
}

// MomentsConfirm flips pending records to processing and enqueues their
// enrichment jobs. Already-confirmed ids are silently skipped.
func MomentsConfirm(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		activityID, err := activityIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload momentsConfirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmed, err := svc.ConfirmBatch(r.Context(), activityID, payload.RecordIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, momentsConfirmResponse{ConfirmedIDs: confirmed})
	}
}

// MomentsStatus returns the current state of the requested records so
// clients can poll for convergence.
func MomentsStatus(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		ids, err := idsFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views, err := svc.Status(r.Context(), ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, views)
	}
}

func activityIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "activityID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid activity id")
	}
	return id, nil
}

func idsFromQuery(r *http.Request) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ids query parameter is required")
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
