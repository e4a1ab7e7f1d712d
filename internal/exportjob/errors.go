package exportjob

import (
	"errors"
	"fmt"

	"github.com/harborcare/careexport/internal/model"
)

var (
	// ErrJobNotFound is returned when a job id is absent from the registry.
	ErrJobNotFound = errors.New("export job not found")
	// ErrNotCompleted is returned when a download is attempted before the job
	// has completed and published an artifact URL.
	ErrNotCompleted = errors.New("export job has no downloadable artifact")
	// ErrDuplicateJob guards the registry's never-reuse-an-id invariant.
	ErrDuplicateJob = errors.New("export job id already registered")
)

// ValidationError rejects a submission before any remote call is made. No job
// record exists for a rejected submission.
type ValidationError struct {
	ExportType model.ExportType
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid export request for %q: %s", e.ExportType, e.Reason)
}
