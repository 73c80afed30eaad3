// Package reshape converts raw warehouse result rows into the viewer's
// nested study/series/instance shapes.
package reshape

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/imagingworks/pixels-dicom-connector/internal/dicomtag"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/query"
	"github.com/imagingworks/pixels-dicom-connector/internal/store"
)

// elementString extracts the string value of a JSON-encoded cell. Cells
// are either a bare JSON string or a DICOM JSON element whose Value array
// holds the payload.
func elementString(cell string) string {
	if cell == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(cell), &v); err != nil {
		return cell
	}
	return valueString(v)
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if values, ok := t["Value"].([]any); ok && len(values) > 0 {
			return valueString(values[0])
		}
		if alphabetic, ok := t["Alphabetic"].(string); ok {
			return alphabetic
		}
	}
	return ""
}

// FormatPersonName renders a DICOM person name for display: the first
// caret becomes a comma separator, remaining carets become spaces
// ("Doe^Jane" becomes "Doe, Jane").
func FormatPersonName(pn string) string {
	out := strings.Replace(pn, "^", ", ", 1)
	return strings.ReplaceAll(out, "^", " ")
}

// Studies converts decoded study rows into the viewer's study list.
// Absent cells default to empty strings; an unparsable instance count
// defaults to 1.
func Studies(rows []query.StudyRow) []models.StudySummary {
	studies := make([]models.StudySummary, 0, len(rows))

	for _, row := range rows {
		instances := 1
		if n, err := strconv.Atoi(elementString(row.Instances)); err == nil && n != 0 {
			instances = n
		}

		studies = append(studies, models.StudySummary{
			StudyInstanceUID: elementString(row.StudyInstanceUID),
			Date:             row.Date,
			Time:             row.Time,
			Accession:        row.Accession,
			MRN:              row.MRN,
			PatientName:      FormatPersonName(elementString(row.PatientName)),
			Description:      elementString(row.Description),
			Modalities:       row.Modalities1 + row.Modalities2,
			Instances:        instances,
		})
	}

	return studies
}

// Series converts decoded series rows and applies the viewer's canonical
// series sort before returning.
func Series(rows []query.SeriesRow) []models.SeriesSummary {
	series := make([]models.SeriesSummary, 0, len(rows))

	for _, row := range rows {
		count, _ := strconv.Atoi(elementString(row.NumSeriesInstances))
		series = append(series, models.SeriesSummary{
			StudyInstanceUID:   elementString(row.StudyInstanceUID),
			SeriesInstanceUID:  elementString(row.SeriesInstanceUID),
			Modality:           elementString(row.Modality),
			SeriesNumber:       elementString(row.SeriesNumber),
			Description:        elementString(row.Description),
			NumSeriesInstances: count,
		})
	}

	models.SortSeries(series)
	return series
}

// ParseSeriesWithInstances decodes the collected instance lists of
// series-with-instances rows.
func ParseSeriesWithInstances(rows []query.SeriesMetadataRow) ([]models.SeriesWithInstances, error) {
	series := make([]models.SeriesWithInstances, 0, len(rows))

	for _, row := range rows {
		var instances []models.RawInstance
		if row.Instances != "" {
			if err := json.Unmarshal([]byte(row.Instances), &instances); err != nil {
				return nil, fmt.Errorf("failed to decode instance list for series %s: %w", row.SeriesInstanceUID, err)
			}
		}
		series = append(series, models.SeriesWithInstances{
			StudyInstanceUID:  row.StudyInstanceUID,
			SeriesInstanceUID: row.SeriesInstanceUID,
			Instances:         instances,
		})
	}

	return series, nil
}

// VolumeRoot truncates a relative storage path to its first four
// segments, the common prefix shared by all files of one imaging volume.
// Write-back uploads land under it.
func VolumeRoot(relativePath string) string {
	segments := strings.Split(relativePath, "/")
	if len(segments) > 4 {
		segments = segments[:4]
	}
	return strings.Join(segments, "/")
}

// Processor naturalizes series-with-instances results and feeds the
// viewer's metadata store and UID registry.
type Processor struct {
	baseURL  string
	store    store.MetadataStore
	registry store.UIDRegistry
}

// NewProcessor creates a processor deriving imageIds from baseURL
func NewProcessor(baseURL string, st store.MetadataStore, registry store.UIDRegistry) *Processor {
	return &Processor{baseURL: baseURL, store: st, registry: registry}
}

// ProcessSeriesMetadata naturalizes each instance, annotates it with its
// position, derived identifiers and volume root, registers the imageId
// mapping, and pushes one series summary plus the ordered instance list
// to the metadata store per series group. Series without instances are
// skipped. The returned summaries mirror what was pushed.
func (p *Processor) ProcessSeriesMetadata(series []models.SeriesWithInstances, madeInClient bool) ([]models.SeriesMetadata, error) {
	summaries := make([]models.SeriesMetadata, 0, len(series))

	for _, s := range series {
		if len(s.Instances) == 0 {
			continue
		}

		var summary models.SeriesMetadata
		instances := make([]models.Dataset, 0, len(s.Instances))

		for index, raw := range s.Instances {
			meta, err := decodeMetaBlob(raw.Meta)
			if err != nil {
				return nil, fmt.Errorf("failed to decode metadata for instance %s: %w", raw.SOPInstanceUID, err)
			}

			inst := dicomtag.Naturalize(meta)
			inst["StudyInstanceUID"] = s.StudyInstanceUID
			inst["SeriesInstanceUID"] = s.SeriesInstanceUID
			if inst.String("SOPInstanceUID") == "" {
				inst["SOPInstanceUID"] = raw.SOPInstanceUID
			}
			if inst.String("SOPClassUID") == "" {
				inst["SOPClassUID"] = raw.SOPClassUID
			}
			inst["InstanceNumber"] = index
			inst["numImageFrames"] = len(s.Instances)

			imageID := "dicomweb:" + p.baseURL + "fs/files/" + raw.RelativePath
			inst["url"] = imageID
			inst["imageId"] = imageID
			inst["wadoUri"] = p.baseURL + "fs/files/" + raw.RelativePath
			inst["volumeRoot"] = VolumeRoot(raw.RelativePath)

			// The URL isn't necessarily WADO-URI, so frame-level lookups
			// need this mapping registered up front.
			p.registry.AddImageIDToUIDs(imageID, models.UIDTriple{
				StudyInstanceUID:  s.StudyInstanceUID,
				SeriesInstanceUID: s.SeriesInstanceUID,
				SOPInstanceUID:    inst.String("SOPInstanceUID"),
				FrameIndex:        1,
			})

			if index == 0 {
				summary = models.SeriesMetadata{
					StudyInstanceUID:  s.StudyInstanceUID,
					StudyDescription:  attrString(inst, "StudyDescription"),
					SeriesInstanceUID: s.SeriesInstanceUID,
					SeriesDescription: attrString(inst, "SeriesDescription"),
					SOPInstanceUID:    inst.String("SOPInstanceUID"),
					SeriesNumber:      attrString(inst, "SeriesNumber"),
					SeriesTime:        attrString(inst, "SeriesTime"),
					SOPClassUID:       inst.String("SOPClassUID"),
					ProtocolName:      attrString(inst, "ProtocolName"),
					Modality:          attrString(inst, "Modality"),
				}
			}

			instances = append(instances, inst)
		}

		p.store.AddSeriesMetadata([]models.SeriesMetadata{summary}, madeInClient)
		p.store.AddInstances(instances, madeInClient)
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// decodeMetaBlob unwraps the per-instance metadata blob. On the wire it is
// a JSON string whose content is the tag-keyed object; some paths hand the
// object through directly.
func decodeMetaBlob(blob json.RawMessage) (map[string]any, error) {
	if len(blob) == 0 {
		return map[string]any{}, nil
	}

	var inner string
	if err := json.Unmarshal(blob, &inner); err == nil {
		blob = json.RawMessage(inner)
	}

	var meta map[string]any
	if err := json.Unmarshal(blob, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func attrString(ds models.Dataset, key string) string {
	switch v := ds[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}
