package datasource

import (
	"fmt"
	"sync"

	"github.com/imagingworks/pixels-dicom-connector/internal/config"
	"github.com/imagingworks/pixels-dicom-connector/internal/store"
)

// Constructor builds a data source of one kind
type Constructor func(cfg config.WarehouseConfig, st store.MetadataStore, registry store.UIDRegistry) (DataSource, error)

// Factory manages the available data-source kinds and their instances
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	sources      map[string]DataSource
}

// NewFactory creates a factory with the built-in source kinds registered
func NewFactory() *Factory {
	f := &Factory{
		constructors: make(map[string]Constructor),
		sources:      make(map[string]DataSource),
	}
	f.Register("pixels", func(cfg config.WarehouseConfig, st store.MetadataStore, registry store.UIDRegistry) (DataSource, error) {
		return NewPixelsDataSource(cfg, st, registry)
	})
	return f
}

// Register adds a data-source kind
func (f *Factory) Register(name string, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = constructor
}

// Get returns the data source of the given kind, creating it on first use
func (f *Factory) Get(name string, cfg config.WarehouseConfig, st store.MetadataStore, registry store.UIDRegistry) (DataSource, error) {
	f.mu.RLock()
	source, exists := f.sources[name]
	f.mu.RUnlock()

	if exists {
		return source, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if source, exists := f.sources[name]; exists {
		return source, nil
	}

	constructor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported data source kind: %s", name)
	}

	source, err := constructor(cfg, st, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create data source: %w", err)
	}

	f.sources[name] = source
	return source, nil
}

// Names lists the registered data-source kinds
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	return names
}

// CloseAll closes all created data sources
func (f *Factory) CloseAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, source := range f.sources {
		if err := source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close data source %s: %w", name, err))
		}
		delete(f.sources, name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("encountered %d errors while closing data sources", len(errs))
	}
	return nil
}
