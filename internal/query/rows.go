package query

import "fmt"

// Row decoding lives next to the statement templates so a column-order
// change shows up here, not as silently shifted fields downstream.

// StudyRow is one decoded study-search result row. Cells still carry their
// wire encoding (JSON-encoded elements); the reshaper interprets them.
type StudyRow struct {
	StudyInstanceUID string // JSON element
	Date             string
	Time             string
	Accession        string
	MRN              string
	PatientName      string // JSON element, PN
	Description      string // JSON element
	Modalities1      string // slash-joined set
	Modalities2      string // slash-joined set
	Instances        string // count, JSON number
}

const studyRowWidth = 10

// DecodeStudyRows maps raw warehouse rows onto StudyRow records
func DecodeStudyRows(rows [][]string) ([]StudyRow, error) {
	out := make([]StudyRow, 0, len(rows))
	for i, cells := range rows {
		if len(cells) != studyRowWidth {
			return nil, fmt.Errorf("study row %d: expected %d columns, got %d", i, studyRowWidth, len(cells))
		}
		out = append(out, StudyRow{
			StudyInstanceUID: cells[0],
			Date:             cells[1],
			Time:             cells[2],
			Accession:        cells[3],
			MRN:              cells[4],
			PatientName:      cells[5],
			Description:      cells[6],
			Modalities1:      cells[7],
			Modalities2:      cells[8],
			Instances:        cells[9],
		})
	}
	return out, nil
}

// SeriesRow is one decoded series-search result row
type SeriesRow struct {
	StudyInstanceUID   string // JSON element
	SeriesInstanceUID  string // JSON element
	Modality           string // JSON element
	SeriesNumber       string // JSON element
	Description        string // JSON element
	NumSeriesInstances string // count, JSON number
}

const seriesRowWidth = 6

// DecodeSeriesRows maps raw warehouse rows onto SeriesRow records
func DecodeSeriesRows(rows [][]string) ([]SeriesRow, error) {
	out := make([]SeriesRow, 0, len(rows))
	for i, cells := range rows {
		if len(cells) != seriesRowWidth {
			return nil, fmt.Errorf("series row %d: expected %d columns, got %d", i, seriesRowWidth, len(cells))
		}
		out = append(out, SeriesRow{
			StudyInstanceUID:   cells[0],
			SeriesInstanceUID:  cells[1],
			Modality:           cells[2],
			SeriesNumber:       cells[3],
			Description:        cells[4],
			NumSeriesInstances: cells[5],
		})
	}
	return out, nil
}

// SeriesMetadataRow is one decoded series-with-instances result row.
// Instances holds the collected struct list, JSON-encoded.
type SeriesMetadataRow struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	Instances         string
}

const seriesMetadataRowWidth = 3

// DecodeSeriesMetadataRows maps raw warehouse rows onto SeriesMetadataRow
// records
func DecodeSeriesMetadataRows(rows [][]string) ([]SeriesMetadataRow, error) {
	out := make([]SeriesMetadataRow, 0, len(rows))
	for i, cells := range rows {
		if len(cells) != seriesMetadataRowWidth {
			return nil, fmt.Errorf("series metadata row %d: expected %d columns, got %d", i, seriesMetadataRowWidth, len(cells))
		}
		out = append(out, SeriesMetadataRow{
			StudyInstanceUID:  cells[0],
			SeriesInstanceUID: cells[1],
			Instances:         cells[2],
		})
	}
	return out, nil
}
