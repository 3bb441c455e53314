package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tracehq/trace-backend/api/responses"
	"github.com/tracehq/trace-backend/api/validators"
	"github.com/tracehq/trace-backend/internal/tracks"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
)

type trackConfirmResponse struct {
	Transitioned bool `json:"transitioned"`
}

// TrackSign issues an upload credential for one GPX track file.
func TrackSign(svc tracks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracks service unavailable"))
			return
		}

		activityID, err := activityIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload tracks.SignTrackInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SignTrack(r.Context(), activityID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// TrackConfirm flips a pending track to processing and enqueues geometry
// extraction. A repeat call reports transitioned=false.
func TrackConfirm(svc tracks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracks service unavailable"))
			return
		}

		activityID, err := activityIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trackID, err := uuid.Parse(chi.URLParam(r, "trackID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid track id"))
			return
		}

		transitioned, err := svc.ConfirmTrack(r.Context(), activityID, trackID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, trackConfirmResponse{Transitioned: transitioned})
	}
}

// TrackStatus returns the current state of the requested tracks.
func TrackStatus(svc tracks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracks service unavailable"))
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
