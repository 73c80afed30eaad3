package reshape

import (
	"encoding/json"
	"testing"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/query"
)

type fakeStore struct {
	series    []models.SeriesMetadata
	instances []models.Dataset
}

func (f *fakeStore) AddSeriesMetadata(series []models.SeriesMetadata, madeInClient bool) {
	f.series = append(f.series, series...)
}

func (f *fakeStore) AddInstances(instances []models.Dataset, madeInClient bool) {
	f.instances = append(f.instances, instances...)
}

func (f *fakeStore) GetInstance(studyUID, seriesUID, sopInstanceUID string) (models.Dataset, bool) {
	for _, inst := range f.instances {
		if inst.String("StudyInstanceUID") == studyUID &&
			inst.String("SeriesInstanceUID") == seriesUID &&
			inst.String("SOPInstanceUID") == sopInstanceUID {
			return inst, true
		}
	}
	return nil, false
}

type fakeRegistry struct {
	entries map[string]models.UIDTriple
}

func (f *fakeRegistry) AddImageIDToUIDs(imageID string, triple models.UIDTriple) {
	if f.entries == nil {
		f.entries = make(map[string]models.UIDTriple)
	}
	f.entries[imageID] = triple
}

func (f *fakeRegistry) UIDsForImageID(imageID string) (models.UIDTriple, bool) {
	triple, ok := f.entries[imageID]
	return triple, ok
}

func TestFormatPersonName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Doe^Jane", "Doe, Jane"},
		{"Doe^Jane^Marie", "Doe, Jane Marie"},
		{"Doe", "Doe"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatPersonName(tt.in); got != tt.want {
			t.Errorf("FormatPersonName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStudiesReshaping(t *testing.T) {
	rows, err := query.DecodeStudyRows([][]string{{
		`"1.2.3"`, "20230101", "120000", "ACC1", "MRN1",
		`"Doe^Jane"`, `"CT Chest"`, "CT", "", "3",
	}})
	if err != nil {
		t.Fatalf("DecodeStudyRows: %v", err)
	}

	got := Studies(rows)
	want := models.StudySummary{
		StudyInstanceUID: "1.2.3",
		Date:             "20230101",
		Time:             "120000",
		Accession:        "ACC1",
		MRN:              "MRN1",
		PatientName:      "Doe, Jane",
		Description:      "CT Chest",
		Modalities:       "CT",
		Instances:        3,
	}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Studies() = %+v, want %+v", got, want)
	}
}

func TestStudiesInstanceCountDefaultsToOne(t *testing.T) {
	rows := []query.StudyRow{
		{Instances: "not-a-number"},
		{Instances: "0"},
		{Instances: ""},
	}
	for i, study := range Studies(rows) {
		if study.Instances != 1 {
			t.Errorf("row %d: Instances = %d, want 1", i, study.Instances)
		}
	}
}

func TestStudiesElementCells(t *testing.T) {
	rows := []query.StudyRow{{
		StudyInstanceUID: `{"vr":"UI","Value":["1.2.3"]}`,
		PatientName:      `{"vr":"PN","Value":[{"Alphabetic":"Doe^Jane"}]}`,
		Description:      `{"vr":"LO","Value":["CT Chest"]}`,
		Instances:        "2",
	}}

	got := Studies(rows)[0]
	if got.StudyInstanceUID != "1.2.3" {
		t.Errorf("StudyInstanceUID = %q", got.StudyInstanceUID)
	}
	if got.PatientName != "Doe, Jane" {
		t.Errorf("PatientName = %q", got.PatientName)
	}
	if got.Description != "CT Chest" {
		t.Errorf("Description = %q", got.Description)
	}
}

func TestSeriesCanonicalSort(t *testing.T) {
	rows := []query.SeriesRow{
		{SeriesInstanceUID: `"s2"`, SeriesNumber: `"2"`, NumSeriesInstances: "1"},
		{SeriesInstanceUID: `"sx"`, SeriesNumber: `"B"`, NumSeriesInstances: "1"},
		{SeriesInstanceUID: `"s1"`, SeriesNumber: `"1"`, NumSeriesInstances: "1"},
	}

	got := Series(rows)
	order := []string{"1", "2", "B"}
	for i, want := range order {
		if got[i].SeriesNumber != want {
			t.Errorf("position %d: SeriesNumber = %q, want %q", i, got[i].SeriesNumber, want)
		}
	}

	// Sorting an already sorted list changes nothing
	again := make([]models.SeriesSummary, len(got))
	copy(again, got)
	models.SortSeries(again)
	for i := range got {
		if got[i] != again[i] {
			t.Errorf("sort not idempotent at %d: %+v vs %+v", i, got[i], again[i])
		}
	}
}

func TestVolumeRoot(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a/b/c/d/e/f.dcm", "a/b/c/d"},
		{"a/b/c/d", "a/b/c/d"},
		{"a/b", "a/b"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := VolumeRoot(tt.in); got != tt.want {
			t.Errorf("VolumeRoot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func metaBlob(t *testing.T, attrs map[string]any) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(attrs)
	if err != nil {
		t.Fatal(err)
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		t.Fatal(err)
	}
	return outer
}

func TestProcessSeriesMetadata(t *testing.T) {
	st := &fakeStore{}
	reg := &fakeRegistry{}
	p := NewProcessor("https://wh.example.com/api/2.0/", st, reg)

	series := []models.SeriesWithInstances{
		{
			StudyInstanceUID:  "1.2",
			SeriesInstanceUID: "1.2.1",
			Instances: []models.RawInstance{
				{
					SOPInstanceUID: "1.2.1.1",
					SOPClassUID:    "1.2.840.10008.5.1.4.1.1.2",
					RelativePath:   "vol/a/b/c/inst1.dcm",
					Meta: metaBlob(t, map[string]any{
						"0008103E": map[string]any{"vr": "LO", "Value": []any{"Axial"}},
						"00200011": map[string]any{"vr": "IS", "Value": []any{"2"}},
					}),
				},
				{
					SOPInstanceUID: "1.2.1.2",
					SOPClassUID:    "1.2.840.10008.5.1.4.1.1.2",
					RelativePath:   "vol/a/b/c/inst2.dcm",
					Meta:           metaBlob(t, map[string]any{}),
				},
			},
		},
		// Empty series groups are skipped entirely
		{StudyInstanceUID: "1.2", SeriesInstanceUID: "1.2.9"},
	}

	summaries, err := p.ProcessSeriesMetadata(series, false)
	if err != nil {
		t.Fatalf("ProcessSeriesMetadata: %v", err)
	}

	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	summary := summaries[0]
	if summary.SeriesInstanceUID != "1.2.1" || summary.SOPInstanceUID != "1.2.1.1" {
		t.Errorf("summary = %+v", summary)
	}
	if summary.SeriesDescription != "Axial" || summary.SeriesNumber != "2" {
		t.Errorf("summary attributes = %+v", summary)
	}

	if len(st.series) != 1 || len(st.instances) != 2 {
		t.Fatalf("store got %d series and %d instances", len(st.series), len(st.instances))
	}

	first := st.instances[0]
	wantImageID := "dicomweb:https://wh.example.com/api/2.0/fs/files/vol/a/b/c/inst1.dcm"
	if first.String("imageId") != wantImageID || first.String("url") != wantImageID {
		t.Errorf("imageId = %q, want %q", first.String("imageId"), wantImageID)
	}
	if first.String("wadoUri") != "https://wh.example.com/api/2.0/fs/files/vol/a/b/c/inst1.dcm" {
		t.Errorf("wadoUri = %q", first.String("wadoUri"))
	}
	if first.String("volumeRoot") != "vol/a/b/c" {
		t.Errorf("volumeRoot = %q", first.String("volumeRoot"))
	}
	if n, _ := first.Int("InstanceNumber"); n != 0 {
		t.Errorf("InstanceNumber = %d, want 0", n)
	}
	if n, _ := first.Int("numImageFrames"); n != 2 {
		t.Errorf("numImageFrames = %d, want 2", n)
	}

	second := st.instances[1]
	if second.String("SOPInstanceUID") != "1.2.1.2" {
		t.Errorf("fallback SOPInstanceUID = %q", second.String("SOPInstanceUID"))
	}
	if n, _ := second.Int("InstanceNumber"); n != 1 {
		t.Errorf("second InstanceNumber = %d, want 1", n)
	}

	triple, ok := reg.UIDsForImageID(wantImageID)
	if !ok {
		t.Fatal("imageId not registered")
	}
	if triple.SOPInstanceUID != "1.2.1.1" || triple.FrameIndex != 1 {
		t.Errorf("registered triple = %+v", triple)
	}
}

func TestParseSeriesWithInstances(t *testing.T) {
	rows := []query.SeriesMetadataRow{{
		StudyInstanceUID:  "1.2",
		SeriesInstanceUID: "1.2.1",
		Instances:         `[{"SOPInstanceUID":"1.2.1.1","SOPClassUID":"1.2.840","meta":"{}","relative_path":"a/b/c/d/e.dcm"}]`,
	}}

	series, err := ParseSeriesWithInstances(rows)
	if err != nil {
		t.Fatalf("ParseSeriesWithInstances: %v", err)
	}
	if len(series[0].Instances) != 1 || series[0].Instances[0].RelativePath != "a/b/c/d/e.dcm" {
		t.Errorf("instances = %+v", series[0].Instances)
	}

	rows[0].Instances = "{not json"
	if _, err := ParseSeriesWithInstances(rows); err == nil {
		t.Error("expected error for malformed instance list")
	}
}
