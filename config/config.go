// Package config loads and watches the service configuration.
package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"farecast/logging"
)

// Config is the top-level configuration loaded from config.yaml.
type Config struct {
	Server struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		MaxConns        int    `yaml:"max_conns"`
		MaxMessageBytes int    `yaml:"max_message_bytes"`
	} `yaml:"server"`
	Monitor struct {
		Port int `yaml:"port"`
	} `yaml:"monitor"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log logging.Config `yaml:"log"`
}

// Limits are the runtime-adjustable bounds of the server.
type Limits struct {
	MaxConns        int
	MaxMessageBytes int
}

// Load reads and validates a yaml config file.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.MaxConns <= 0 {
		cfg.Server.MaxConns = 256
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		cfg.Server.MaxMessageBytes = 1 << 20
	}
	if cfg.Monitor.Port == 0 {
		cfg.Monitor.Port = 9091
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/farecast.db"
	}
}

// Watch reloads the file on change and reports the new limits. It returns a
// stop function; errors after the initial setup are delivered to onErr.
func Watch(path string, onLimits func(Limits), onErr func(error)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					if onErr != nil {
						onErr(err)
					}
					continue
				}
				onLimits(Limits{
					MaxConns:        cfg.Server.MaxConns,
					MaxMessageBytes: cfg.Server.MaxMessageBytes,
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onErr != nil {
					onErr(err)
				}
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
