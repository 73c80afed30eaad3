package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
)

// Every statement this connector issues carries the same server-side
// timeout policy: wait up to 30 seconds, cancel on timeout.
const (
	StatementWaitTimeout   = "30s"
	StatementTimeoutAction = "CANCEL"
)

// Parameter is one named bound parameter of a warehouse statement
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Statement is a warehouse SQL statement with its bound parameters and
// timeout policy. Values never appear in the SQL text itself.
type Statement struct {
	SQL           string
	Parameters    []Parameter
	WaitTimeout   string
	TimeoutAction string
}

func newStatement(sql string, params []Parameter) Statement {
	return Statement{
		SQL:           sql,
		Parameters:    params,
		WaitTimeout:   StatementWaitTimeout,
		TimeoutAction: StatementTimeoutAction,
	}
}

// SearchFilter is an ordered set of predicate fragments combined by AND in
// insertion order. It is never empty: a tautological predicate seeds the
// set so generated statements always have a WHERE clause.
type SearchFilter struct {
	fragments []string
	params    []Parameter
}

// NewSearchFilter returns a filter seeded with the base predicate
func NewSearchFilter() *SearchFilter {
	return &SearchFilter{fragments: []string{"1=1"}}
}

func (f *SearchFilter) add(fragment string, params ...Parameter) *SearchFilter {
	f.fragments = append(f.fragments, fragment)
	f.params = append(f.params, params...)
	return f
}

// PatientName adds a case-insensitive substring match on tag 00100010
func (f *SearchFilter) PatientName(v string) *SearchFilter {
	return f.add(
		"lower(meta:['00100010'].Value) like lower('%' || :patientName || '%')",
		Parameter{Name: "patientName", Value: v, Type: "STRING"},
	)
}

// PatientID adds a case-sensitive prefix match on tag 00100020
func (f *SearchFilter) PatientID(v string) *SearchFilter {
	return f.add(
		"meta:['00100020'].Value[0] like :patientId || '%'",
		Parameter{Name: "patientId", Value: v, Type: "STRING"},
	)
}

// AccessionNumber adds a case-sensitive prefix match on tag 00080050
func (f *SearchFilter) AccessionNumber(v string) *SearchFilter {
	return f.add(
		"meta:['00080050'].Value[0] like :accessionNumber || '%'",
		Parameter{Name: "accessionNumber", Value: v, Type: "STRING"},
	)
}

// StudyDescription adds a case-insensitive substring match on tag 00081030
func (f *SearchFilter) StudyDescription(v string) *SearchFilter {
	return f.add(
		"lower(meta:['00081030'].Value) like lower('%' || :studyDescription || '%')",
		Parameter{Name: "studyDescription", Value: v, Type: "STRING"},
	)
}

// ModalitiesInStudy adds IN-list membership against both tag locations a
// modality code can live in (00080060 on the instance, 00080061 on the
// study).
func (f *SearchFilter) ModalitiesInStudy(codes []string) *SearchFilter {
	if len(codes) == 0 {
		return f
	}
	markers := make([]string, len(codes))
	params := make([]Parameter, len(codes))
	for i, code := range codes {
		name := fmt.Sprintf("modality%d", i)
		markers[i] = ":" + name
		params[i] = Parameter{Name: name, Value: code, Type: "STRING"}
	}
	list := strings.Join(markers, ", ")
	return f.add(
		fmt.Sprintf("(meta:['00080060'].Value[0] in (%s) OR meta:['00080061'].Value[0] in (%s))", list, list),
		params...,
	)
}

// StartDate adds an inclusive lower bound on the YYYYMMDD study date
// column. The comparison is lexicographic; no date parsing happens here.
func (f *SearchFilter) StartDate(v string) *SearchFilter {
	return f.add(
		":startDate <= meta:['00080020'].Value[0]",
		Parameter{Name: "startDate", Value: v, Type: "STRING"},
	)
}

// EndDate adds an inclusive upper bound on the YYYYMMDD study date column
func (f *SearchFilter) EndDate(v string) *SearchFilter {
	return f.add(
		":endDate >= meta:['00080020'].Value[0]",
		Parameter{Name: "endDate", Value: v, Type: "STRING"},
	)
}

// WhereClause joins the fragments in insertion order
func (f *SearchFilter) WhereClause() string {
	return strings.Join(f.fragments, " AND ")
}

// Parameters returns the bound parameters accumulated so far
func (f *SearchFilter) Parameters() []Parameter {
	return f.params
}

// FromSearchParams builds a filter from viewer search parameters, adding
// criteria in the fixed order the warehouse schema was tuned for.
func FromSearchParams(p models.SearchParams) *SearchFilter {
	f := NewSearchFilter()
	if p.PatientName != "" {
		f.PatientName(p.PatientName)
	}
	if p.PatientID != "" {
		f.PatientID(p.PatientID)
	}
	if p.AccessionNumber != "" {
		f.AccessionNumber(p.AccessionNumber)
	}
	if p.StudyDescription != "" {
		f.StudyDescription(p.StudyDescription)
	}
	if len(p.ModalitiesInStudy) > 0 {
		f.ModalitiesInStudy(p.ModalitiesInStudy)
	}
	if p.StartDate != "" {
		f.StartDate(p.StartDate)
	}
	if p.EndDate != "" {
		f.EndDate(p.EndDate)
	}
	return f
}

// Builder generates the statement shapes this connector issues against the
// pixels table. The table name comes from trusted configuration, never
// from request input.
type Builder struct {
	table string
}

// NewBuilder creates a builder for the given pixels table
func NewBuilder(table string) *Builder {
	return &Builder{table: table}
}

// StudySearch aggregates per-instance rows into one row per study. Column
// order is the contract with DecodeStudyRows.
func (b *Builder) StudySearch(filter *SearchFilter, limit, offset int) Statement {
	if filter == nil {
		filter = NewSearchFilter()
	}

	var paging strings.Builder
	if limit > 0 {
		paging.WriteString("\n       LIMIT " + strconv.Itoa(limit))
	}
	if offset > 0 {
		paging.WriteString("\n       OFFSET " + strconv.Itoa(offset))
	}

	sql := fmt.Sprintf(`select
        meta:['0020000D'] as studyInstanceUid,
        nullif(meta:['00080020'].Value[0], '') as date,
        nullif(meta:['00080030'].Value[0], '') as time,
        nullif(meta:['00080050'].Value[0], '') as accession,
        nullif(meta:['00100020'].Value[0], '') as mrn,
        first(meta:['00100010'], true) as patientName,
        first(meta:['00081030'], true) as description,
        array_join(collect_set(nullif(meta:['00080060'].Value[0], '')), '/') as modalities1,
        array_join(collect_set(nullif(meta:['00080061'].Value[0], '')), '/') as modalities2,
        count(*) as instances
       FROM %s
       WHERE %s
       GROUP BY studyInstanceUid, date, time, accession, mrn%s`,
		b.table, filter.WhereClause(), paging.String())

	return newStatement(sql, filter.Parameters())
}

// SeriesSearch lists the distinct series of one study with a computed
// instance count. Column order is the contract with DecodeSeriesRows.
func (b *Builder) SeriesSearch(studyInstanceUID string) Statement {
	sql := fmt.Sprintf(`SELECT *, count(*) as numSeriesInstances from (
      SELECT
        meta:['0020000D'] as studyInstanceUid,
        meta:['0020000E'] as seriesInstanceUid,
        meta:['00080060'] as modality,
        meta:['00200011'] as seriesNumber,
        meta:['0008103E'] as description
        FROM %s
        WHERE meta:['0020000D'].Value[0] = :studyUid)
      group by studyInstanceUid, seriesInstanceUid, modality, seriesNumber, description`, b.table)

	return newStatement(sql, []Parameter{
		{Name: "studyUid", Value: studyInstanceUID, Type: "STRING"},
	})
}

// SeriesMetadataSearch produces one row per series of a study with the
// collected list of per-instance structures. Result sets routinely exceed
// one chunk; the executor follows the continuation links.
func (b *Builder) SeriesMetadataSearch(studyInstanceUID string) Statement {
	sql := fmt.Sprintf(`with pixels as (
        SELECT
              meta:['0020000D'].Value[0] as studyInstanceUid,
              meta:['0020000E'].Value[0] as seriesInstanceUid,
              meta:['00080018'].Value[0] as sopInstanceUid,
              meta:['00080016'].Value[0] as sopClassUid,
              meta,
              relative_path
        FROM %s
      )
      select studyInstanceUid, seriesInstanceUid, collect_list(
        struct(sopInstanceUid AS SOPInstanceUID,
              sopClassUid AS SOPClassUID,
              meta,
              relative_path)
      ) from pixels
        WHERE studyInstanceUid = :studyUid
        group by studyInstanceUid, seriesInstanceUid`, b.table)

	return newStatement(sql, []Parameter{
		{Name: "studyUid", Value: studyInstanceUID, Type: "STRING"},
	})
}

// InsertWriteBack records one written-back object as a new pixels table
// row. The thumbnail struct marks the row as an export so ingest jobs
// leave it alone.
func (b *Builder) InsertWriteBack(rec models.WriteBackRecord) Statement {
	sql := fmt.Sprintf(`INSERT INTO %s
  (path, modificationTime, length, original_path, relative_path, local_path,
   extension, file_type, path_tags, is_anon, meta, thumbnail)
  VALUES (
   'dbfs:/' || :path, to_timestamp(unix_timestamp(:datetime, 'yyyyMMddHHmmss')), :length, 'dbfs:/' || :path, :path, '/' || :path,
   'dcm', '', array(), 'true', :meta,
   struct('ohif_export' AS origin, -1 AS height, -1 AS width, -1 AS nChannels, -1 AS mode, CAST('' AS binary)))`, b.table)

	return newStatement(sql, []Parameter{
		{Name: "path", Value: rec.StoragePath, Type: "STRING"},
		{Name: "datetime", Value: rec.ContentDateTime, Type: "STRING"},
		{Name: "length", Value: strconv.FormatInt(rec.ByteLength, 10), Type: "STRING"},
		{Name: "meta", Value: rec.SerializedMeta, Type: "STRING"},
	})
}
