package models

import (
	"encoding/json"
	"sort"
	"strconv"
)

// SearchParams represents viewer-level study search parameters
type SearchParams struct {
	PatientName       string   `json:"patient_name,omitempty"`
	PatientID         string   `json:"patient_id,omitempty"`
	AccessionNumber   string   `json:"accession_number,omitempty"`
	StudyDescription  string   `json:"study_description,omitempty"`
	ModalitiesInStudy []string `json:"modalities_in_study,omitempty"`
	StartDate         string   `json:"start_date,omitempty"` // YYYYMMDD
	EndDate           string   `json:"end_date,omitempty"`   // YYYYMMDD
	StudyInstanceUID  []string `json:"study_instance_uid,omitempty"`
	ResultsPerPage    int      `json:"results_per_page,omitempty"`
	Offset            int      `json:"offset,omitempty"`
}

// StudySummary is one row of the viewer's study list
type StudySummary struct {
	StudyInstanceUID string `json:"studyInstanceUid"`
	Date             string `json:"date"` // YYYYMMDD
	Time             string `json:"time"` // HHmmss.SSS
	Accession        string `json:"accession"`
	MRN              string `json:"mrn"`
	PatientName      string `json:"patientName"`
	Description      string `json:"description"`
	Modalities       string `json:"modalities"` // slash-joined modality codes
	Instances        int    `json:"instances"`
}

// SeriesSummary is one row of the viewer's series list for a study
type SeriesSummary struct {
	StudyInstanceUID   string `json:"studyInstanceUid"`
	SeriesInstanceUID  string `json:"seriesInstanceUid"`
	Modality           string `json:"modality"`
	SeriesNumber       string `json:"seriesNumber"`
	Description        string `json:"description"`
	NumSeriesInstances int    `json:"numSeriesInstances"`
}

// SortSeries orders series the way the viewer's study browser expects:
// ascending numeric series number, non-numeric series numbers last. The
// sort is stable so equal series numbers keep their query order.
func SortSeries(series []SeriesSummary) {
	sort.SliceStable(series, func(i, j int) bool {
		a, aok := parseSeriesNumber(series[i].SeriesNumber)
		b, bok := parseSeriesNumber(series[j].SeriesNumber)
		if aok != bok {
			return aok
		}
		return a < b
	})
}

func parseSeriesNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RawInstance is one element of the collected per-series instance list as
// returned by the series-with-instances statement. Meta is the tag-keyed
// attribute map, arriving as a JSON string cell whose content is itself a
// JSON object.
type RawInstance struct {
	SOPInstanceUID string          `json:"SOPInstanceUID"`
	SOPClassUID    string          `json:"SOPClassUID"`
	Meta           json.RawMessage `json:"meta"`
	RelativePath   string          `json:"relative_path"`
}

// SeriesWithInstances groups the raw instances of one series
type SeriesWithInstances struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	Instances         []RawInstance
}

// SeriesMetadata is the deduplicated per-series summary record pushed to
// the viewer's metadata store; fields come from the first instance seen.
type SeriesMetadata struct {
	StudyInstanceUID  string `json:"StudyInstanceUID"`
	StudyDescription  string `json:"StudyDescription"`
	SeriesInstanceUID string `json:"SeriesInstanceUID"`
	SeriesDescription string `json:"SeriesDescription"`
	SOPInstanceUID    string `json:"SOPInstanceUID"`
	SeriesNumber      string `json:"SeriesNumber"`
	SeriesTime        string `json:"SeriesTime"`
	SOPClassUID       string `json:"SOPClassUID"`
	ProtocolName      string `json:"ProtocolName"`
	Modality          string `json:"Modality"`
}

// Dataset is a naturalized (friendly-named) DICOM attribute map. Instances
// handed to the metadata store and write-back inputs both use this shape.
type Dataset map[string]any

// String returns the string attribute under key, or "" when absent or of
// another type.
func (d Dataset) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int returns the integer attribute under key; JSON numbers decode as
// float64, so both are accepted.
func (d Dataset) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Sequence returns the nested sequence under key. DICOM sequences
// naturalize to either a single item or a list of items.
func (d Dataset) Sequence(key string) []Dataset {
	switch v := d[key].(type) {
	case []any:
		items := make([]Dataset, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				items = append(items, Dataset(m))
			}
		}
		return items
	case map[string]any:
		return []Dataset{Dataset(v)}
	case Dataset:
		return []Dataset{v}
	case []Dataset:
		return v
	}
	return nil
}

// Clone returns a copy one level deep, enough to strip or override
// top-level attributes without mutating the caller's dataset.
func (d Dataset) Clone() Dataset {
	out := make(Dataset, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// UIDTriple identifies one instance within the study/series/instance
// hierarchy, optionally at frame granularity.
type UIDTriple struct {
	StudyInstanceUID  string `json:"StudyInstanceUID"`
	SeriesInstanceUID string `json:"SeriesInstanceUID"`
	SOPInstanceUID    string `json:"SOPInstanceUID"`
	FrameIndex        int    `json:"frameIndex"`
}

// WriteBackRecord is the row inserted into the pixels table after a
// successful write-back upload. Never mutated after creation.
type WriteBackRecord struct {
	StoragePath     string // relative path under the storage filesystem
	SerializedMeta  string // JSON metadata with bulk elements stripped
	ContentHash     string // sha256 over the exact uploaded bytes
	ByteLength      int64
	ContentDateTime string // ContentDate + ContentTime, yyyyMMddHHmmss
}
