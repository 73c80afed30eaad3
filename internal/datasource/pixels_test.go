package datasource

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/imagingworks/pixels-dicom-connector/internal/config"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/store"
)

func newTestSource(t *testing.T) (*PixelsDataSource, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	source, err := NewPixelsDataSource(config.WarehouseConfig{
		Token:           "token",
		ServerHostname:  "example.cloud.databricks.com",
		HTTPPath:        "/sql/1.0/warehouses/wh123",
		PixelsTable:     "main.pixels.catalog",
		MaxResultChunks: 10,
	}, st, store.NewMemoryRegistry())
	if err != nil {
		t.Fatal(err)
	}
	return source, st
}

func TestStudyInstanceUIDsQueryWins(t *testing.T) {
	source, _ := newTestSource(t)

	got := source.StudyInstanceUIDs(
		[]string{"9.9.9"},
		url.Values{"StudyInstanceUIDs": []string{"1.2.3,4.5.6"}},
	)
	if len(got) != 2 || got[0] != "1.2.3" || got[1] != "4.5.6" {
		t.Errorf("StudyInstanceUIDs = %v, want query values split on commas", got)
	}
}

func TestStudyInstanceUIDsFallsBackToRequest(t *testing.T) {
	source, _ := newTestSource(t)

	got := source.StudyInstanceUIDs([]string{"9.9.9"}, url.Values{})
	if len(got) != 1 || got[0] != "9.9.9" {
		t.Errorf("StudyInstanceUIDs = %v, want request values", got)
	}

	got = source.StudyInstanceUIDs([]string{"9.9.9"}, url.Values{"StudyInstanceUIDs": []string{""}})
	if len(got) != 1 || got[0] != "9.9.9" {
		t.Errorf("StudyInstanceUIDs = %v, empty query value should not win", got)
	}
}

func TestSearchSeriesRequiresStudyUID(t *testing.T) {
	source, _ := newTestSource(t)

	_, err := source.SearchSeries(context.Background(), "")
	var perr *PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PreconditionError", err)
	}
	if perr.Param != "StudyInstanceUID" {
		t.Errorf("Param = %q", perr.Param)
	}
}

func TestRetrieveSeriesMetadataRequiresStudyUID(t *testing.T) {
	source, _ := newTestSource(t)

	_, err := source.RetrieveSeriesMetadata(context.Background(), "", false)
	var perr *PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PreconditionError", err)
	}
}

func TestSearchInstancesNotImplemented(t *testing.T) {
	source, _ := newTestSource(t)

	if err := source.SearchInstances(context.Background(), "1.2", "1.2.1"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("err = %v, want ErrNotImplemented", err)
	}
	if _, err := source.RetrieveBulkData(context.Background(), "1.2", "uri"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("err = %v, want ErrNotImplemented", err)
	}
}

func TestImageIDForInstance(t *testing.T) {
	source, st := newTestSource(t)

	st.AddInstances([]models.Dataset{{
		"StudyInstanceUID":  "1.2",
		"SeriesInstanceUID": "1.2.1",
		"SOPInstanceUID":    "1.2.1.1",
		"url":               "dicomweb:https://example/fs/files/a.dcm",
	}}, false)

	instance := models.Dataset{
		"StudyInstanceUID":  "1.2",
		"SeriesInstanceUID": "1.2.1",
		"SOPInstanceUID":    "1.2.1.1",
	}

	id, err := source.ImageIDForInstance(instance, 0)
	if err != nil {
		t.Fatalf("ImageIDForInstance: %v", err)
	}
	if id != "dicomweb:https://example/fs/files/a.dcm" {
		t.Errorf("imageId = %q", id)
	}

	id, err = source.ImageIDForInstance(instance, 3)
	if err != nil {
		t.Fatalf("ImageIDForInstance frame: %v", err)
	}
	if id != "dicomweb:https://example/fs/files/a.dcm&frame=3" {
		t.Errorf("frame imageId = %q", id)
	}

	if _, err := source.ImageIDForInstance(models.Dataset{"SOPInstanceUID": "missing"}, 0); err == nil {
		t.Error("expected error for unknown instance")
	}
}

func TestImageIDsForDisplaySet(t *testing.T) {
	source, st := newTestSource(t)

	st.AddInstances([]models.Dataset{
		{
			"StudyInstanceUID":  "1.2",
			"SeriesInstanceUID": "1.2.1",
			"SOPInstanceUID":    "single",
			"url":               "dicomweb:u/single",
		},
		{
			"StudyInstanceUID":  "1.2",
			"SeriesInstanceUID": "1.2.1",
			"SOPInstanceUID":    "multi",
			"url":               "dicomweb:u/multi",
		},
	}, false)

	ids := source.ImageIDsForDisplaySet([]models.Dataset{
		{
			"StudyInstanceUID":  "1.2",
			"SeriesInstanceUID": "1.2.1",
			"SOPInstanceUID":    "single",
		},
		{
			"StudyInstanceUID":  "1.2",
			"SeriesInstanceUID": "1.2.1",
			"SOPInstanceUID":    "multi",
			"NumberOfFrames":    float64(3),
		},
	})

	want := []string{
		"dicomweb:u/single",
		"dicomweb:u/multi&frame=1",
		"dicomweb:u/multi&frame=2",
		"dicomweb:u/multi&frame=3",
	}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestFactoryCreatesAndReusesSource(t *testing.T) {
	f := NewFactory()
	cfg := config.WarehouseConfig{
		Token:           "token",
		ServerHostname:  "example.cloud.databricks.com",
		HTTPPath:        "/sql/1.0/warehouses/wh123",
		PixelsTable:     "main.pixels.catalog",
		MaxResultChunks: 10,
	}
	st := store.NewMemoryStore()
	reg := store.NewMemoryRegistry()

	first, err := f.Get("pixels", cfg, st, reg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := f.Get("pixels", cfg, st, reg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Error("factory created a second instance for the same kind")
	}

	if _, err := f.Get("nope", cfg, st, reg); err == nil {
		t.Error("expected error for unknown kind")
	}
}
