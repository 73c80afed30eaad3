package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/imagingworks/pixels-dicom-connector/internal/datasource"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/imagingworks/pixels-dicom-connector/internal/services"
	"github.com/rs/zerolog/log"
)

// PixelsHandler exposes the pixels data source to the viewer
type PixelsHandler struct {
	imagingService *services.ImagingService
}

func NewPixelsHandler(imagingService *services.ImagingService) *PixelsHandler {
	return &PixelsHandler{
		imagingService: imagingService,
	}
}

// SearchStudies handles study search
func (h *PixelsHandler) SearchStudies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	params := models.SearchParams{
		PatientName:      q.Get("patientName"),
		PatientID:        q.Get("patientId"),
		AccessionNumber:  q.Get("accessionNumber"),
		StudyDescription: q.Get("studyDescription"),
		StartDate:        q.Get("startDate"),
		EndDate:          q.Get("endDate"),
	}
	if v := q.Get("modalitiesInStudy"); v != "" {
		params.ModalitiesInStudy = strings.Split(v, ",")
	}
	if v := q.Get("resultsPerPage"); v != "" {
		params.ResultsPerPage, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	studies, err := h.imagingService.SearchStudies(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("Failed to search studies")
		http.Error(w, "Failed to search studies", http.StatusBadGateway)
		return
	}

	writeJSON(w, studies)
}

// SearchSeries handles series search for one study
func (h *PixelsHandler) SearchSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studyUID := chi.URLParam(r, "studyUID")

	series, err := h.imagingService.SearchSeries(ctx, studyUID)
	if err != nil {
		h.writeError(w, err, "Failed to search series", "study_uid", studyUID)
		return
	}

	writeJSON(w, series)
}

// RetrieveSeriesMetadata handles series-metadata retrieval for one study
func (h *PixelsHandler) RetrieveSeriesMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studyUID := chi.URLParam(r, "studyUID")
	madeInClient := r.URL.Query().Get("madeInClient") == "true"

	summaries, err := h.imagingService.RetrieveSeriesMetadata(ctx, studyUID, madeInClient)
	if err != nil {
		h.writeError(w, err, "Failed to retrieve series metadata", "study_uid", studyUID)
		return
	}

	writeJSON(w, summaries)
}

// SearchInstances handles instance search, which this source does not
// implement.
func (h *PixelsHandler) SearchInstances(w http.ResponseWriter, r *http.Request) {
	err := h.imagingService.Source().SearchInstances(
		r.Context(),
		chi.URLParam(r, "studyUID"),
		chi.URLParam(r, "seriesUID"),
	)
	if errors.Is(err, datasource.ErrNotImplemented) {
		http.Error(w, "Instance search not implemented", http.StatusNotImplemented)
		return
	}
	writeJSON(w, []any{})
}

// StoreDataset handles write-back of a generated dataset
func (h *PixelsHandler) StoreDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var dataset models.Dataset
	if err := json.NewDecoder(r.Body).Decode(&dataset); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.imagingService.StoreDataset(ctx, dataset); err != nil {
		log.Error().Err(err).
			Str("sop_instance_uid", dataset.String("SOPInstanceUID")).
			Msg("Failed to store dataset")
		http.Error(w, "Failed to store dataset", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// ResolveStudyUIDs handles study-UID resolution for viewer routing
func (h *PixelsHandler) ResolveStudyUIDs(w http.ResponseWriter, r *http.Request) {
	var requestUIDs []string
	if v := r.URL.Query().Get("requestStudyInstanceUIDs"); v != "" {
		requestUIDs = strings.Split(v, ",")
	}

	uids := h.imagingService.Source().StudyInstanceUIDs(requestUIDs, r.URL.Query())
	writeJSON(w, uids)
}

func (h *PixelsHandler) writeError(w http.ResponseWriter, err error, msg, key, value string) {
	var precondition *datasource.PreconditionError
	if errors.As(err, &precondition) {
		http.Error(w, precondition.Error(), http.StatusBadRequest)
		return
	}
	log.Error().Err(err).Str(key, value).Msg(msg)
	http.Error(w, msg, http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
