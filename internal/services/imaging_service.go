package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/imagingworks/pixels-dicom-connector/internal/cache"
	"github.com/imagingworks/pixels-dicom-connector/internal/datasource"
	"github.com/imagingworks/pixels-dicom-connector/internal/metrics"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/repository"
	"github.com/rs/zerolog/log"
)

// ImagingService wraps a data source with query-result caching, audit
// logging, and operation metrics.
type ImagingService struct {
	source    datasource.DataSource
	cache     cache.Cache
	cacheTTL  time.Duration
	auditRepo *repository.AuditRepository
}

// NewImagingService creates a new imaging service
func NewImagingService(source datasource.DataSource, c cache.Cache, cacheTTL time.Duration, auditRepo *repository.AuditRepository) *ImagingService {
	return &ImagingService{
		source:    source,
		cache:     c,
		cacheTTL:  cacheTTL,
		auditRepo: auditRepo,
	}
}

// Source exposes the underlying data source for operations the service
// does not wrap.
func (s *ImagingService) Source() datasource.DataSource {
	return s.source
}

// SearchStudies queries for studies, serving repeated searches from cache
func (s *ImagingService) SearchStudies(ctx context.Context, params models.SearchParams) ([]models.StudySummary, error) {
	start := time.Now()
	key := cache.Key("studies", "", paramsDigest(params))

	var studies []models.StudySummary
	if s.cacheGet(ctx, key, &studies) {
		return studies, nil
	}

	studies, err := s.source.SearchStudies(ctx, params)
	s.observe(ctx, "search_studies", "", len(studies), start, err)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, studies)
	return studies, nil
}

// SearchSeries queries for the series of one study
func (s *ImagingService) SearchSeries(ctx context.Context, studyUID string) ([]models.SeriesSummary, error) {
	start := time.Now()
	key := cache.Key("series", studyUID, "list")

	var series []models.SeriesSummary
	if s.cacheGet(ctx, key, &series) {
		return series, nil
	}

	series, err := s.source.SearchSeries(ctx, studyUID)
	s.observe(ctx, "search_series", studyUID, len(series), start, err)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, series)
	return series, nil
}

// RetrieveSeriesMetadata fetches series metadata for a study. Not cached:
// the call's side effect is populating the metadata store.
func (s *ImagingService) RetrieveSeriesMetadata(ctx context.Context, studyUID string, madeInClient bool) ([]models.SeriesMetadata, error) {
	start := time.Now()
	summaries, err := s.source.RetrieveSeriesMetadata(ctx, studyUID, madeInClient)
	s.observe(ctx, "retrieve_series_metadata", studyUID, len(summaries), start, err)
	return summaries, err
}

// StoreDataset writes a generated dataset back and evicts stale cached
// query results for its study.
func (s *ImagingService) StoreDataset(ctx context.Context, dataset models.Dataset) error {
	start := time.Now()
	studyUID := dataset.String("StudyInstanceUID")

	err := s.source.StoreDataset(ctx, dataset)
	s.observe(ctx, "store_dicom", studyUID, 0, start, err)
	if err != nil {
		return err
	}

	if studyUID != "" {
		if cerr := s.cache.Clear(ctx, cache.Key("series", studyUID, "*")); cerr != nil {
			log.Warn().Err(cerr).Str("study_uid", studyUID).Msg("Failed to evict cached series")
		}
	}
	return nil
}

func (s *ImagingService) cacheGet(ctx context.Context, key string, out any) bool {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	return true
}

func (s *ImagingService) cacheSet(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache result")
	}
}

// observe records metrics and a best-effort audit row for one operation
func (s *ImagingService) observe(ctx context.Context, action, resourceUID string, rowCount int, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.OperationsTotal.WithLabelValues(action, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(action).Observe(elapsed.Seconds())

	entry := &models.AuditLog{
		Action:      action,
		ResourceUID: resourceUID,
		Status:      outcome,
		RowCount:    rowCount,
		Duration:    elapsed.Milliseconds(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if aerr := s.auditRepo.Create(ctx, entry); aerr != nil {
		log.Warn().Err(aerr).Str("action", action).Msg("Failed to write audit log")
	}
}

func paramsDigest(params models.SearchParams) string {
	data, _ := json.Marshal(params)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
