package store

import (
	"sync"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
)

// MemoryStore implements MetadataStore with in-memory maps
type MemoryStore struct {
	mu        sync.RWMutex
	series    map[string]models.SeriesMetadata // keyed by series UID
	instances map[instanceKey]models.Dataset
}

type instanceKey struct {
	studyUID  string
	seriesUID string
	sopUID    string
}

// NewMemoryStore creates an empty in-memory metadata store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:    make(map[string]models.SeriesMetadata),
		instances: make(map[instanceKey]models.Dataset),
	}
}

// AddSeriesMetadata stores per-series summary records
func (m *MemoryStore) AddSeriesMetadata(series []models.SeriesMetadata, madeInClient bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range series {
		m.series[s.SeriesInstanceUID] = s
	}
}

// AddInstances stores naturalized instance records
func (m *MemoryStore) AddInstances(instances []models.Dataset, madeInClient bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range instances {
		key := instanceKey{
			studyUID:  inst.String("StudyInstanceUID"),
			seriesUID: inst.String("SeriesInstanceUID"),
			sopUID:    inst.String("SOPInstanceUID"),
		}
		m.instances[key] = inst
	}
}

// GetInstance looks up one instance by its UID triple
func (m *MemoryStore) GetInstance(studyUID, seriesUID, sopInstanceUID string) (models.Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[instanceKey{studyUID: studyUID, seriesUID: seriesUID, sopUID: sopInstanceUID}]
	return inst, ok
}

// SeriesCount reports how many series summaries are held
func (m *MemoryStore) SeriesCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.series)
}

// MemoryRegistry implements UIDRegistry with an in-memory map
type MemoryRegistry struct {
	mu      sync.RWMutex
	triples map[string]models.UIDTriple
}

// NewMemoryRegistry creates an empty in-memory UID registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{triples: make(map[string]models.UIDTriple)}
}

// AddImageIDToUIDs registers the imageId to UID-triple mapping
func (r *MemoryRegistry) AddImageIDToUIDs(imageID string, triple models.UIDTriple) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triples[imageID] = triple
}

// UIDsForImageID resolves an imageId back to its owning triple
func (r *MemoryRegistry) UIDsForImageID(imageID string) (models.UIDTriple, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	triple, ok := r.triples[imageID]
	return triple, ok
}
