package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/imagingworks/pixels-dicom-connector/internal/config"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/params"
	"github.com/imagingworks/pixels-dicom-connector/internal/query"
	"github.com/imagingworks/pixels-dicom-connector/internal/reshape"
	"github.com/imagingworks/pixels-dicom-connector/internal/store"
	"github.com/imagingworks/pixels-dicom-connector/internal/warehouse"
	"github.com/imagingworks/pixels-dicom-connector/internal/writeback"
	"github.com/rs/zerolog/log"
)

// PixelsDataSource adapts the SQL-warehouse pixels table to the viewer's
// data source contract. All connection state is fixed at construction.
type PixelsDataSource struct {
	client    *warehouse.Client
	builder   *query.Builder
	mapper    *params.Mapper
	processor *reshape.Processor
	pipeline  *writeback.Pipeline
	store     store.MetadataStore
}

// NewPixelsDataSource wires a data source from validated configuration
// and the viewer-side sinks.
func NewPixelsDataSource(cfg config.WarehouseConfig, st store.MetadataStore, registry store.UIDRegistry) (*PixelsDataSource, error) {
	client := warehouse.NewClient(cfg)
	builder := query.NewBuilder(cfg.PixelsTable)

	return &PixelsDataSource{
		client:    client,
		builder:   builder,
		mapper:    params.NewMapper(),
		processor: reshape.NewProcessor(client.BaseURL(), st, registry),
		pipeline:  writeback.NewPipeline(builder, client, client, st, writeback.NewDatasetSerializer()),
		store:     st,
	}, nil
}

func (d *PixelsDataSource) Name() string {
	return "pixels"
}

func (d *PixelsDataSource) Capabilities() []string {
	return []string{"search-studies", "search-series", "series-metadata", "store"}
}

// SearchStudies maps the viewer parameters into the canonical vocabulary,
// builds the study statement, and reshapes the result rows.
func (d *PixelsDataSource) SearchStudies(ctx context.Context, p models.SearchParams) ([]models.StudySummary, error) {
	// The warehouse filters do their own substring matching, so no
	// wildcard wrapping here.
	canonical := d.mapper.Map(p, params.Options{})
	filterParams := params.ToFilterParams(canonical)

	filter := query.FromSearchParams(filterParams)
	stmt := d.builder.StudySearch(filter, p.ResultsPerPage, p.Offset)

	rows, err := d.client.ExecuteStatement(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("study search failed: %w", err)
	}

	decoded, err := query.DecodeStudyRows(rows)
	if err != nil {
		return nil, fmt.Errorf("study search failed: %w", err)
	}

	return reshape.Studies(decoded), nil
}

// SearchSeries lists the series of one study in canonical sort order
func (d *PixelsDataSource) SearchSeries(ctx context.Context, studyUID string) ([]models.SeriesSummary, error) {
	if studyUID == "" {
		return nil, &PreconditionError{Param: "StudyInstanceUID"}
	}

	rows, err := d.client.ExecuteStatement(ctx, d.builder.SeriesSearch(studyUID))
	if err != nil {
		return nil, fmt.Errorf("series search failed: %w", err)
	}

	decoded, err := query.DecodeSeriesRows(rows)
	if err != nil {
		return nil, fmt.Errorf("series search failed: %w", err)
	}

	return reshape.Series(decoded), nil
}

// SearchInstances is intentionally not implemented for this source
func (d *PixelsDataSource) SearchInstances(ctx context.Context, studyUID, seriesUID string) error {
	log.Warn().
		Str("study_uid", studyUID).
		Str("series_uid", seriesUID).
		Msg("Instance search not implemented")
	return ErrNotImplemented
}

// RetrieveSeriesMetadata fetches and naturalizes all instance metadata of
// a study, pushing per-series groups into the metadata store.
func (d *PixelsDataSource) RetrieveSeriesMetadata(ctx context.Context, studyUID string, madeInClient bool) ([]models.SeriesMetadata, error) {
	if studyUID == "" {
		return nil, &PreconditionError{Param: "StudyInstanceUID"}
	}

	rows, err := d.client.ExecuteStatement(ctx, d.builder.SeriesMetadataSearch(studyUID))
	if err != nil {
		return nil, fmt.Errorf("series metadata retrieval failed: %w", err)
	}

	decoded, err := query.DecodeSeriesMetadataRows(rows)
	if err != nil {
		return nil, fmt.Errorf("series metadata retrieval failed: %w", err)
	}

	series, err := reshape.ParseSeriesWithInstances(decoded)
	if err != nil {
		return nil, fmt.Errorf("series metadata retrieval failed: %w", err)
	}

	return d.processor.ProcessSeriesMetadata(series, madeInClient)
}

// RetrieveBulkData is intentionally not implemented for this source
func (d *PixelsDataSource) RetrieveBulkData(ctx context.Context, studyUID, bulkDataURI string) ([]byte, error) {
	log.Warn().
		Str("study_uid", studyUID).
		Str("bulk_data_uri", bulkDataURI).
		Msg("Bulk data retrieval not implemented")
	return nil, ErrNotImplemented
}

// StoreDataset writes a generated dataset back through the pipeline
func (d *PixelsDataSource) StoreDataset(ctx context.Context, dataset models.Dataset) error {
	return d.pipeline.Store(ctx, dataset)
}

// ImageIDForInstance resolves an instance to its stored imageId,
// optionally at frame granularity (frames start at 1; 0 means none).
func (d *PixelsDataSource) ImageIDForInstance(instance models.Dataset, frame int) (string, error) {
	stored, ok := d.store.GetInstance(
		instance.String("StudyInstanceUID"),
		instance.String("SeriesInstanceUID"),
		instance.String("SOPInstanceUID"),
	)
	if !ok {
		return "", fmt.Errorf("instance not found in metadata store")
	}

	imageID := stored.String("url")
	if frame > 0 {
		imageID = fmt.Sprintf("%s&frame=%d", imageID, frame)
	}
	return imageID, nil
}

// ImageIDsForDisplaySet expands a display set's instances into imageIds;
// multiframe instances yield one id per frame, starting at frame 1.
func (d *PixelsDataSource) ImageIDsForDisplaySet(instances []models.Dataset) []string {
	imageIDs := []string{}

	for _, instance := range instances {
		frames, _ := instance.Int("NumberOfFrames")
		if frames > 1 {
			for frame := 1; frame <= frames; frame++ {
				if id, err := d.ImageIDForInstance(instance, frame); err == nil {
					imageIDs = append(imageIDs, id)
				}
			}
			continue
		}
		if id, err := d.ImageIDForInstance(instance, 0); err == nil {
			imageIDs = append(imageIDs, id)
		}
	}

	return imageIDs
}

// StudyInstanceUIDs resolves the effective study UID list for a request:
// query-string values win over request parameters, and a single value is
// normalized into a one-element list.
func (d *PixelsDataSource) StudyInstanceUIDs(requestUIDs []string, queryParams url.Values) []string {
	queryUIDs := splitComma(queryParams["StudyInstanceUIDs"])
	if len(queryUIDs) > 0 {
		return queryUIDs
	}
	return requestUIDs
}

func splitComma(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// InvalidateStudyMetadata is intentionally a logged no-op: the warehouse
// is the source of truth and the viewer-side store owns its own eviction.
func (d *PixelsDataSource) InvalidateStudyMetadata(studyUID string) {
	log.Debug().Str("study_uid", studyUID).Msg("Study metadata invalidation not implemented")
}

// Close closes the data source
func (d *PixelsDataSource) Close() error {
	return nil
}
