package http

import (
	"errors"

	apierrors "github.com/edges-ai/vquant/internal/errors"
	"github.com/edges-ai/vquant/internal/services"
)

// mapServiceError translates service sentinel errors into API errors the
// problem-details handler understands. Library errors pass through; the
// handler knows how to map those itself.
func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrInvalidCategory):
		return apierrors.InvalidRequestWithError(err)
	case errors.Is(err, services.ErrStudyNotFound):
		return apierrors.NotFoundError("study")
	case errors.Is(err, services.ErrStudyNotComplete):
		return apierrors.New(409, "STUDY_NOT_COMPLETE", "study has not finished yet")
	case errors.Is(err, services.ErrStudyNoResult):
		return apierrors.New(404, "STUDY_NO_RESULT", "study finished without a result")
	default:
		return err
	}
}
