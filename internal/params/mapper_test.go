package params

import (
	"testing"
	"time"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
)

func fixedMapper(t *testing.T) *Mapper {
	t.Helper()
	return NewMapperAt(func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	})
}

func TestMapOmitsEmptyValues(t *testing.T) {
	m := fixedMapper(t)
	got := m.Map(models.SearchParams{}, Options{})

	for _, key := range []string{"PatientName", "00100020", "AccessionNumber", "StudyDescription", "ModalitiesInStudy", "StudyDate", "StudyInstanceUID"} {
		if _, ok := got[key]; ok {
			t.Errorf("key %s present for empty input: %q", key, got[key])
		}
	}
	if got["limit"] != "101" {
		t.Errorf("limit = %q, want default 101", got["limit"])
	}
	if got["offset"] != "0" {
		t.Errorf("offset = %q, want 0", got["offset"])
	}
	if got["includefield"] != "00081030,00080060" {
		t.Errorf("includefield = %q", got["includefield"])
	}
	if got["fuzzymatching"] != "false" {
		t.Errorf("fuzzymatching = %q, want false", got["fuzzymatching"])
	}
}

func TestMapWildcardGating(t *testing.T) {
	m := fixedMapper(t)
	p := models.SearchParams{PatientName: "doe", PatientID: "MRN42"}

	plain := m.Map(p, Options{})
	if plain["PatientName"] != "doe" {
		t.Errorf("PatientName = %q, want unwrapped", plain["PatientName"])
	}

	wild := m.Map(p, Options{SupportsWildcard: true})
	if wild["PatientName"] != "*doe*" {
		t.Errorf("PatientName = %q, want *doe*", wild["PatientName"])
	}
	if wild["00100020"] != "*MRN42*" {
		t.Errorf("patient id = %q, want *MRN42*", wild["00100020"])
	}
}

func TestMapDateSynthesis(t *testing.T) {
	m := fixedMapper(t)

	tests := []struct {
		name       string
		start, end string
		want       string
	}{
		{"both bounds", "20240101", "20240131", "20240101-20240131"},
		{"start only fills today", "20240101", "", "20240101-20240315"},
		{"end only fills floor", "", "20240131", "19700102-20240131"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Map(models.SearchParams{StartDate: tt.start, EndDate: tt.end}, Options{})
			if got["StudyDate"] != tt.want {
				t.Errorf("StudyDate = %q, want %q", got["StudyDate"], tt.want)
			}
		})
	}

	if got := m.Map(models.SearchParams{}, Options{}); got["StudyDate"] != "" {
		t.Errorf("StudyDate synthesized for empty bounds: %q", got["StudyDate"])
	}
}

func TestNormalizeStudyUIDs(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"1.2.3"}, "1.2.3"},
		{[]string{"1.2.3", "4.5.6"}, `1.2.3\4.5.6`},
		{[]string{"1.2.3 ", "urn:4.5"}, `1.2.3\4.5`},
	}
	for _, tt := range tests {
		if got := NormalizeStudyUIDs(tt.in); got != tt.want {
			t.Errorf("NormalizeStudyUIDs(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToFilterParamsRoundTrip(t *testing.T) {
	m := fixedMapper(t)
	in := models.SearchParams{
		PatientName:       "doe",
		PatientID:         "MRN42",
		AccessionNumber:   "ACC9",
		StudyDescription:  "chest",
		ModalitiesInStudy: []string{"CT", "MR"},
		StartDate:         "20240101",
		EndDate:           "20240131",
		ResultsPerPage:    50,
		Offset:            100,
	}

	out := ToFilterParams(m.Map(in, Options{SupportsWildcard: true}))

	if out.PatientName != "doe" {
		t.Errorf("PatientName = %q, want wildcard stripped", out.PatientName)
	}
	if out.PatientID != "MRN42" || out.AccessionNumber != "ACC9" || out.StudyDescription != "chest" {
		t.Errorf("identifiers did not round-trip: %+v", out)
	}
	if len(out.ModalitiesInStudy) != 2 || out.ModalitiesInStudy[0] != "CT" {
		t.Errorf("ModalitiesInStudy = %v", out.ModalitiesInStudy)
	}
	if out.StartDate != "20240101" || out.EndDate != "20240131" {
		t.Errorf("dates = %q..%q", out.StartDate, out.EndDate)
	}
	if out.ResultsPerPage != 50 || out.Offset != 100 {
		t.Errorf("paging = %d/%d", out.ResultsPerPage, out.Offset)
	}
}

func TestToFilterParamsSingleDate(t *testing.T) {
	out := ToFilterParams(map[string]string{"StudyDate": "20240105"})
	if out.StartDate != "20240105" || out.EndDate != "20240105" {
		t.Errorf("single date bounds = %q..%q, want both 20240105", out.StartDate, out.EndDate)
	}
}
