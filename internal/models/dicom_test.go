package models

import "testing"

func TestSortSeries(t *testing.T) {
	series := []SeriesSummary{
		{SeriesInstanceUID: "a", SeriesNumber: "10"},
		{SeriesInstanceUID: "b", SeriesNumber: "NONE"},
		{SeriesInstanceUID: "c", SeriesNumber: "2"},
		{SeriesInstanceUID: "d", SeriesNumber: ""},
		{SeriesInstanceUID: "e", SeriesNumber: "1"},
	}

	SortSeries(series)

	wantOrder := []string{"e", "c", "a", "b", "d"}
	for i, want := range wantOrder {
		if series[i].SeriesInstanceUID != want {
			t.Errorf("position %d: got %s (number %q), want %s",
				i, series[i].SeriesInstanceUID, series[i].SeriesNumber, want)
		}
	}
}

func TestSortSeriesStable(t *testing.T) {
	series := []SeriesSummary{
		{SeriesInstanceUID: "first", SeriesNumber: "1"},
		{SeriesInstanceUID: "second", SeriesNumber: "1"},
	}
	SortSeries(series)
	if series[0].SeriesInstanceUID != "first" {
		t.Error("equal series numbers did not keep their original order")
	}
}

func TestDatasetString(t *testing.T) {
	ds := Dataset{"a": "x", "b": 3}
	if ds.String("a") != "x" {
		t.Errorf("String(a) = %q", ds.String("a"))
	}
	if ds.String("b") != "" {
		t.Errorf("String(b) = %q, want empty for non-string", ds.String("b"))
	}
	if ds.String("missing") != "" {
		t.Errorf("String(missing) = %q", ds.String("missing"))
	}
}

func TestDatasetInt(t *testing.T) {
	ds := Dataset{"i": 5, "f": float64(7), "s": "9", "bad": "x"}

	for key, want := range map[string]int{"i": 5, "f": 7, "s": 9} {
		got, ok := ds.Int(key)
		if !ok || got != want {
			t.Errorf("Int(%s) = %d, %v; want %d", key, got, ok, want)
		}
	}
	if _, ok := ds.Int("bad"); ok {
		t.Error("Int(bad) succeeded")
	}
	if _, ok := ds.Int("missing"); ok {
		t.Error("Int(missing) succeeded")
	}
}

func TestDatasetSequenceShapes(t *testing.T) {
	item := map[string]any{"CodeValue": "126000"}

	single := Dataset{"seq": item}
	if items := single.Sequence("seq"); len(items) != 1 || items[0].String("CodeValue") != "126000" {
		t.Errorf("single item sequence = %v", items)
	}

	list := Dataset{"seq": []any{item, map[string]any{"CodeValue": "other"}}}
	if items := list.Sequence("seq"); len(items) != 2 {
		t.Errorf("list sequence = %v", items)
	}

	none := Dataset{}
	if items := none.Sequence("seq"); items != nil {
		t.Errorf("missing sequence = %v, want nil", items)
	}
}

func TestDatasetClone(t *testing.T) {
	ds := Dataset{"a": "x"}
	clone := ds.Clone()
	clone["a"] = "y"
	clone["b"] = "z"

	if ds.String("a") != "x" {
		t.Error("clone mutated original value")
	}
	if _, ok := ds["b"]; ok {
		t.Error("clone added key to original")
	}
}
