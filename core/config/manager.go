// Package config loads and watches the engine configuration. Reads are
// lock-free through an atomic pointer swap; registered watchers fire on
// every reload, including those triggered by file-change events.
package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/annodex/core/align"
	"github.com/adalundhe/annodex/core/annotation/brwt"
)

type Config struct {
	Aligner    align.Config     `yaml:"aligner"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
}

type AnnotationConfig struct {
	// BRWTArity bounds children per Multi-BRWT internal node.
	BRWTArity int `yaml:"brwt_arity"`

	// BRWTSampleRows bounds the rows feeding column clustering.
	BRWTSampleRows uint64 `yaml:"brwt_sample_rows"`

	// MaxRowDiffPath caps the successor chain length before an anchor is
	// forced.
	MaxRowDiffPath int `yaml:"max_row_diff_path"`
}

type RuntimeConfig struct {
	// Workers bounds parallel Multi-BRWT subtree construction; 0 means
	// GOMAXPROCS. Superbubble indexing always runs with GOMAXPROCS.
	Workers int `yaml:"workers"`

	// RowCacheEntries sizes the read-through row cache on the query path.
	RowCacheEntries int64 `yaml:"row_cache_entries"`
}

func DefaultConfig() *Config {
	return &Config{
		Aligner: *align.DefaultConfig(),
		Annotation: AnnotationConfig{
			BRWTArity:      2,
			BRWTSampleRows: 4096,
			MaxRowDiffPath: 100,
		},
		Runtime: RuntimeConfig{
			RowCacheEntries: 1 << 16,
		},
	}
}

// BRWTBuildConfig projects the annotation section onto the builder's
// options.
func (c *Config) BRWTBuildConfig() brwt.BuildConfig {
	return brwt.BuildConfig{
		Arity:      c.Annotation.BRWTArity,
		SampleRows: c.Annotation.BRWTSampleRows,
		Workers:    c.Runtime.Workers,
	}
}

type Manager struct {
	configPtr unsafe.Pointer
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

// NewManager starts with the defaults; Load pulls in the file at path.
func NewManager(path string) *Manager {
	m := &Manager{path: path, stopWatch: make(chan struct{})}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(DefaultConfig()))
	return m
}

// Get returns the current configuration. The value is immutable; a reload
// swaps in a new one.
func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Load reads the config file over the defaults and publishes the result.
// A missing file leaves the defaults in place.
func (m *Manager) Load() error {
	cfg := DefaultConfig()
	if m.path != "" {
		data, err := os.ReadFile(m.path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("parse config %s: %w", m.path, err)
			}
		}
	}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)
	return nil
}

// OnChange registers a callback invoked with every newly published config.
func (m *Manager) OnChange(cb func(*Config)) {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()
	m.watchers = append(m.watchers, cb)
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	defer m.watcherMu.RUnlock()
	for _, cb := range m.watchers {
		cb(cfg)
	}
}

// Watch reloads the config whenever the file changes, until StopWatching.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", m.path, err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					_ = m.Load()
				}
			case <-watcher.Errors:
			case <-m.stopWatch:
				return
			}
		}
	}()
	return nil
}

// StopWatching ends the watch goroutine; safe to call more than once.
func (m *Manager) StopWatching() {
	m.watchOnce.Do(func() { close(m.stopWatch) })
}
