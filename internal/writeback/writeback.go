// Package writeback uploads generated DICOM objects (segmentations,
// measurement reports) to the storage filesystem and records them in the
// pixels table.
package writeback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/imagingworks/pixels-dicom-connector/internal/dicomtag"
	"github.com/imagingworks/pixels-dicom-connector/internal/metrics"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/query"
	"github.com/imagingworks/pixels-dicom-connector/internal/store"
	"github.com/rs/zerolog/log"
)

// exportSeriesNumber overrides the series number on every written-back
// dataset. A downstream consumer sorts display sets by series number and
// expects exports to land last; the override lives here, isolated from
// the general serialization path, because that assumption is specific to
// that consumer.
const exportSeriesNumber = "9999"

// measurementReportCode is the concept-name code value identifying an
// imaging measurement report.
const measurementReportCode = "126000"

// bulkElements are stripped from the metadata copy before it is inserted;
// the binary payload lives in the uploaded file, not the table.
var bulkElements = []string{
	"PixelData",
	"FloatPixelData",
	"DoubleFloatPixelData",
}

// WriteBackError wraps a failure of any pipeline step. The pipeline is
// all-or-nothing: no row is inserted after a failed upload and nothing is
// retried here.
type WriteBackError struct {
	Step string
	Err  error
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("write-back failed at %s: %v", e.Step, e.Err)
}

func (e *WriteBackError) Unwrap() error { return e.Err }

// Serializer turns a naturalized dataset into a DICOM binary blob
type Serializer interface {
	Serialize(ds models.Dataset) ([]byte, error)
}

// Uploader PUTs raw bytes to a storage filesystem path
type Uploader interface {
	UploadFile(ctx context.Context, relativePath string, data []byte) error
}

// Executor runs a warehouse statement
type Executor interface {
	ExecuteStatement(ctx context.Context, stmt query.Statement) ([][]string, error)
}

// Pipeline performs the write-back flow: resolve the parent instance,
// serialize, upload, and insert the metadata row.
type Pipeline struct {
	builder    *query.Builder
	executor   Executor
	uploader   Uploader
	store      store.MetadataStore
	serializer Serializer
}

// NewPipeline wires a write-back pipeline
func NewPipeline(builder *query.Builder, executor Executor, uploader Uploader, st store.MetadataStore, serializer Serializer) *Pipeline {
	return &Pipeline{
		builder:    builder,
		executor:   executor,
		uploader:   uploader,
		store:      st,
		serializer: serializer,
	}
}

// UploadPath derives the storage path for a written-back object from its
// parent's volume root and the object's own UID triple.
func UploadPath(volumeRoot, studyUID, seriesUID, sopInstanceUID string) string {
	return fmt.Sprintf("%s/ohif/exports/%s/%s/%s.dcm", volumeRoot, studyUID, seriesUID, sopInstanceUID)
}

// Store writes one generated dataset back to the warehouse. Any step
// failing aborts the whole write-back.
func (p *Pipeline) Store(ctx context.Context, dataset models.Dataset) error {
	if err := p.run(ctx, dataset); err != nil {
		metrics.WriteBacksTotal.WithLabelValues("failure").Inc()
		return err
	}
	metrics.WriteBacksTotal.WithLabelValues("success").Inc()
	return nil
}

func (p *Pipeline) run(ctx context.Context, dataset models.Dataset) error {
	ds := dataset.Clone()
	ds["SeriesNumber"] = exportSeriesNumber

	parent, err := p.resolveParent(ds)
	if err != nil {
		return &WriteBackError{Step: "resolve parent", Err: err}
	}

	volumeRoot := parent.String("volumeRoot")
	if volumeRoot == "" {
		return &WriteBackError{Step: "resolve parent", Err: fmt.Errorf("parent instance has no volume root")}
	}

	studyUID := ds.String("StudyInstanceUID")
	seriesUID := ds.String("SeriesInstanceUID")
	sopUID := ds.String("SOPInstanceUID")
	path := UploadPath(volumeRoot, studyUID, seriesUID, sopUID)

	blob, err := p.serializer.Serialize(ds)
	if err != nil {
		return &WriteBackError{Step: "serialize", Err: err}
	}

	if err := p.uploader.UploadFile(ctx, path, blob); err != nil {
		return &WriteBackError{Step: "upload", Err: err}
	}

	hash := sha256.Sum256(blob)
	contentHash := hex.EncodeToString(hash[:])

	meta, err := p.serializeMeta(ds, contentHash, int64(len(blob)))
	if err != nil {
		return &WriteBackError{Step: "serialize metadata", Err: err}
	}

	rec := models.WriteBackRecord{
		StoragePath:     path,
		SerializedMeta:  meta,
		ContentHash:     contentHash,
		ByteLength:      int64(len(blob)),
		ContentDateTime: contentDateTime(ds),
	}

	if _, err := p.executor.ExecuteStatement(ctx, p.builder.InsertWriteBack(rec)); err != nil {
		return &WriteBackError{Step: "insert", Err: err}
	}

	log.Info().
		Str("path", path).
		Str("sop_instance_uid", sopUID).
		Int64("bytes", rec.ByteLength).
		Msg("Write-back stored")

	return nil
}

// resolveParent locates the parent instance of the dataset in the
// metadata store. Measurement reports and segmentations reference the
// same triple through different nested shapes.
func (p *Pipeline) resolveParent(ds models.Dataset) (models.Dataset, error) {
	studyUID := ds.String("StudyInstanceUID")
	if studyUID == "" {
		return nil, fmt.Errorf("dataset has no StudyInstanceUID")
	}

	var seriesUID, sopUID string

	switch {
	case isMeasurementReport(ds):
		evidence := ds.Sequence("CurrentRequestedProcedureEvidenceSequence")
		if len(evidence) == 0 {
			return nil, fmt.Errorf("measurement report has no evidence sequence")
		}
		refSeries := evidence[0].Sequence("ReferencedSeriesSequence")
		if len(refSeries) == 0 {
			return nil, fmt.Errorf("evidence carries no referenced series")
		}
		seriesUID = refSeries[0].String("SeriesInstanceUID")
		refSOP := refSeries[0].Sequence("ReferencedSOPSequence")
		if len(refSOP) == 0 {
			return nil, fmt.Errorf("referenced series carries no referenced SOP")
		}
		sopUID = refSOP[0].String("ReferencedSOPInstanceUID")

	case len(ds.Sequence("ReferencedSeriesSequence")) > 0:
		refSeries := ds.Sequence("ReferencedSeriesSequence")[0]
		seriesUID = refSeries.String("SeriesInstanceUID")
		refInstances := refSeries.Sequence("ReferencedInstanceSequence")
		if len(refInstances) == 0 {
			return nil, fmt.Errorf("referenced series carries no referenced instance")
		}
		sopUID = refInstances[0].String("ReferencedSOPInstanceUID")

	default:
		return nil, fmt.Errorf("dataset is neither a measurement report nor a segmentation")
	}

	parent, ok := p.store.GetInstance(studyUID, seriesUID, sopUID)
	if !ok {
		return nil, fmt.Errorf("parent instance %s/%s/%s not found in metadata store", studyUID, seriesUID, sopUID)
	}
	return parent, nil
}

func isMeasurementReport(ds models.Dataset) bool {
	concepts := ds.Sequence("ConceptNameCodeSequence")
	return len(concepts) > 0 && concepts[0].String("CodeValue") == measurementReportCode
}

// serializeMeta produces the tag-keyed JSON metadata copy with bulk
// binary elements stripped, annotated with the content hash and length.
func (p *Pipeline) serializeMeta(ds models.Dataset, contentHash string, byteLength int64) (string, error) {
	stripped := ds.Clone()
	for _, key := range bulkElements {
		delete(stripped, key)
	}

	tagged := dicomtag.Denaturalize(stripped)
	tagged["hash"] = contentHash
	tagged["length"] = byteLength

	out, err := json.Marshal(tagged)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// contentDateTime concatenates ContentDate and ContentTime into the
// yyyyMMddHHmmss form the insert statement parses. Fractional seconds are
// dropped.
func contentDateTime(ds models.Dataset) string {
	date := ds.String("ContentDate")
	time := ds.String("ContentTime")
	if len(time) > 6 {
		time = time[:6]
	}
	return date + time
}
