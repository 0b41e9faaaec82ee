package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/logging"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading and hot-reloading. Reloads are
// triggered by filesystem events on the config file; editors that replace
// files atomically produce Create events, so both Write and Create count.
type Loader struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopChan chan struct{}
	logger   *logging.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:     path,
		stopChan: make(chan struct{}),
		logger:   logging.NewLogger(),
	}
}

// Load reads the configuration from the file
func (l *Loader) Load() (*Config, error) {
	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	config, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = config
	l.mu.Unlock()

	return config, nil
}

// Reload forces a reload of the configuration and notifies the callback.
func (l *Loader) Reload() (*Config, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	if onChange != nil {
		onChange(config)
	}

	return config, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange sets a callback to be called when configuration changes
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// StartWatcher begins watching the config file for changes.
func (l *Loader) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replacing the file would otherwise
	// invalidate a watch on the file itself.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return err
	}
	l.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-l.stopChan:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(l.path) {
					continue
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					// Editors may fire several events per save; a short
					// settle delay avoids reading a half-written file.
					time.Sleep(50 * time.Millisecond)
					if _, err := l.Reload(); err != nil {
						l.logger.Error("config reload failed", "path", l.path, "error", err.Error())
					} else {
						l.logger.Info("config reloaded", "path", l.path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("config watcher error", "error", err.Error())
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher
func (l *Loader) StopWatcher() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}

// Parse parses configuration from a byte slice, applying defaults first.
func Parse(data []byte) (*Config, error) {
	config := Default()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return config, nil
}

// Default returns a configuration populated with defaults. It validates
// cleanly on its own so the service can run without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8421,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
		},
		API: APIConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 1000,
				Burst:             100,
			},
		},
		Quota: QuotaConfig{
			DailyLimit:   10,
			WeeklyLimit:  50,
			MonthlyLimit: 150,
			MaxRetries:   5,
		},
		Store: StoreConfig{
			Backend:       "sqlite",
			DBPath:        "./data/usagegate.db",
			Retention:     90 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Alerts: AlertsConfig{
			MinInterval: 15 * time.Minute,
		},
	}
}

// LoadFromEnv loads configuration using path from environment variable or default
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("USAGEGATE_CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return NewLoader(path).Load()
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
