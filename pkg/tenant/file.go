package tenant

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"gopkg.in/yaml.v3"
)

// FileResolver resolves tenants by request host from a YAML file.
// The file is re-read when fsnotify reports a change, so tenant
// onboarding does not require a restart.
type FileResolver struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	tenants  map[string]Config
	onReload func()
}

// tenantsFile is the on-disk document shape
type tenantsFile struct {
	Tenants map[string]Config `yaml:"tenants"`
}

// NewFileResolver loads the tenants file and starts watching it for changes
func NewFileResolver(path string, logger *observability.Logger) (*FileResolver, error) {
	f := &FileResolver{
		path:   path,
		logger: logger,
	}

	if err := f.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than write in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	f.watcher = watcher

	go f.watch()

	return f, nil
}

// load reads and parses the tenants file
func (f *FileResolver) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read tenants file: %w", err)
	}

	var doc tenantsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse tenants file: %w", err)
	}

	f.mu.Lock()
	f.tenants = doc.Tenants
	hook := f.onReload
	f.mu.Unlock()

	f.logger.WithField("tenants", len(doc.Tenants)).Info("tenant configuration loaded")
	if hook != nil {
		hook()
	}
	return nil
}

// OnReload registers fn to run after every successful reload of the
// tenants file. Resolvers layered above this one register their cache
// invalidation here so reloaded configuration becomes visible through
// them too.
func (f *FileResolver) OnReload(fn func()) {
	f.mu.Lock()
	f.onReload = fn
	f.mu.Unlock()
}

// watch reloads the file on change events
func (f *FileResolver) watch() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.load(); err != nil {
				// Keep serving the last good configuration
				f.logger.WithError(err).Error("tenant configuration reload failed")
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.WithError(err).Error("tenant file watcher error")
		}
	}
}

// Resolve looks up the tenant by request host
func (f *FileResolver) Resolve(r *http.Request) (*Config, error) {
	host := requestHost(r)

	f.mu.RLock()
	cfg, ok := f.tenants[host]
	f.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if err := cfg.Validate(host); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Close stops watching the tenants file
func (f *FileResolver) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}
