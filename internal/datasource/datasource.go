package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
)

// ErrNotImplemented marks optional capabilities this connector exposes as
// explicit no-ops. They log and fail loudly rather than silently succeed
// with wrong data.
var ErrNotImplemented = errors.New("operation not implemented")

// PreconditionError is raised synchronously when a required identifier is
// missing from a call, before any remote statement is issued.
type PreconditionError struct {
	Param string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("missing required parameter %s", e.Param)
}

// DataSource is the interface every viewer data source implements
type DataSource interface {
	// Query operations
	SearchStudies(ctx context.Context, params models.SearchParams) ([]models.StudySummary, error)
	SearchSeries(ctx context.Context, studyUID string) ([]models.SeriesSummary, error)
	SearchInstances(ctx context.Context, studyUID, seriesUID string) error

	// Retrieve operations
	RetrieveSeriesMetadata(ctx context.Context, studyUID string, madeInClient bool) ([]models.SeriesMetadata, error)
	RetrieveBulkData(ctx context.Context, studyUID, bulkDataURI string) ([]byte, error)

	// Store operations
	StoreDataset(ctx context.Context, dataset models.Dataset) error

	// Image identifier derivation
	ImageIDForInstance(instance models.Dataset, frame int) (string, error)
	ImageIDsForDisplaySet(instances []models.Dataset) []string

	// Routing helpers
	StudyInstanceUIDs(requestUIDs []string, query url.Values) []string
	InvalidateStudyMetadata(studyUID string)

	// Lifecycle
	Close() error

	// Info
	Name() string
	Capabilities() []string
}
