package store

import "github.com/imagingworks/pixels-dicom-connector/internal/models"

// MetadataStore is the viewer-side metadata sink and lookup. The store
// serializes its own writes; callers push per-series groups in order and
// treat the calls as fire-and-forget.
type MetadataStore interface {
	AddSeriesMetadata(series []models.SeriesMetadata, madeInClient bool)
	AddInstances(instances []models.Dataset, madeInClient bool)
	GetInstance(studyUID, seriesUID, sopInstanceUID string) (models.Dataset, bool)
}

// UIDRegistry resolves viewer-internal image identifiers back to the
// owning study/series/instance triple. Every imageId must be registered
// at creation time so later frame-level lookups can find it.
type UIDRegistry interface {
	AddImageIDToUIDs(imageID string, triple models.UIDTriple)
	UIDsForImageID(imageID string) (models.UIDTriple, bool)
}
