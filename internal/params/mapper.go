package params

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
)

// lowSentinelDate bounds an open-started date range from below. The
// warehouse compares dates lexicographically, so any 8-digit floor works.
const lowSentinelDate = "19700102"

const defaultLimit = 101

// includefield lists the extra attributes a QIDO-style backend should
// return with study results.
var includeFields = []string{
	"00081030", // Study Description
	"00080060", // Modality
}

// Options are the capability flags of the backend the mapped parameters
// are destined for.
type Options struct {
	SupportsWildcard      bool
	SupportsFuzzyMatching bool
}

// Mapper translates viewer search parameters into the canonical parameter
// vocabulary. The clock is injectable so date synthesis is testable.
type Mapper struct {
	now func() time.Time
}

// NewMapper returns a mapper using the local calendar date
func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// NewMapperAt returns a mapper with a fixed clock
func NewMapperAt(now func() time.Time) *Mapper {
	return &Mapper{now: now}
}

var nonUIDRuns = regexp.MustCompile(`[^0-9.]+`)

// NormalizeStudyUIDs joins study UIDs with commas and strips everything
// but digits and periods, replacing stripped runs with the DICOM
// multi-value escape.
func NormalizeStudyUIDs(uids []string) string {
	joined := strings.Join(uids, ",")
	return nonUIDRuns.ReplaceAllString(joined, `\`)
}

// Map produces the canonical parameter map. Keys whose resolved value is
// empty are omitted.
func (m *Mapper) Map(p models.SearchParams, opts Options) map[string]string {
	withWildcard := func(v string) string {
		if opts.SupportsWildcard && v != "" {
			return "*" + v + "*"
		}
		return v
	}

	parameters := map[string]string{
		"PatientName": withWildcard(p.PatientName),
		// PatientID goes out under its tag; some backends only match the
		// numeric form.
		"00100020":          withWildcard(p.PatientID),
		"AccessionNumber":   withWildcard(p.AccessionNumber),
		"StudyDescription":  withWildcard(p.StudyDescription),
		"ModalitiesInStudy": strings.Join(p.ModalitiesInStudy, ","),
		"includefield":      strings.Join(includeFields, ","),
		"fuzzymatching":     strconv.FormatBool(opts.SupportsFuzzyMatching),
	}

	limit := p.ResultsPerPage
	if limit <= 0 {
		limit = defaultLimit
	}
	parameters["limit"] = strconv.Itoa(limit)
	parameters["offset"] = strconv.Itoa(p.Offset)

	// A one-sided date range gets its missing bound synthesized: today for
	// a missing end, a fixed floor for a missing start.
	switch {
	case p.StartDate != "" && p.EndDate != "":
		parameters["StudyDate"] = p.StartDate + "-" + p.EndDate
	case p.StartDate != "":
		parameters["StudyDate"] = p.StartDate + "-" + m.now().Format("20060102")
	case p.EndDate != "":
		parameters["StudyDate"] = lowSentinelDate + "-" + p.EndDate
	}

	if len(p.StudyInstanceUID) > 0 {
		parameters["StudyInstanceUID"] = NormalizeStudyUIDs(p.StudyInstanceUID)
	}

	for key, value := range parameters {
		if value == "" {
			delete(parameters, key)
		}
	}

	return parameters
}

// ToFilterParams converts a canonical parameter map back into the filter
// criteria the query builder consumes. Wildcard wrapping is undone; the
// warehouse filters do their own substring and prefix matching.
func ToFilterParams(canonical map[string]string) models.SearchParams {
	p := models.SearchParams{
		PatientName:      strings.Trim(canonical["PatientName"], "*"),
		PatientID:        strings.Trim(canonical["00100020"], "*"),
		AccessionNumber:  strings.Trim(canonical["AccessionNumber"], "*"),
		StudyDescription: strings.Trim(canonical["StudyDescription"], "*"),
	}

	if v := canonical["ModalitiesInStudy"]; v != "" {
		p.ModalitiesInStudy = strings.Split(v, ",")
	}

	if v := canonical["StudyDate"]; v != "" {
		if start, end, ok := strings.Cut(v, "-"); ok {
			p.StartDate, p.EndDate = start, end
		} else {
			p.StartDate, p.EndDate = v, v
		}
	}

	if v := canonical["limit"]; v != "" {
		p.ResultsPerPage, _ = strconv.Atoi(v)
	}
	if v := canonical["offset"]; v != "" {
		p.Offset, _ = strconv.Atoi(v)
	}

	return p
}
