package client

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gridsync/gridsync/internal/core/circuit"
)

// Settings is the viewer-side configuration: session logging, event queue
// sizing and the per-circuit transport knobs.
type Settings struct {
	LogLevel       string         `yaml:"log_level"`
	EventQueueSize int            `yaml:"event_queue_size"`
	Circuit        circuit.Config `yaml:"circuit"`
}

func DefaultSettings() Settings {
	return Settings{
		LogLevel:       "info",
		EventQueueSize: 1024,
		Circuit:        circuit.DefaultConfig(),
	}
}

// LoadSettings decodes YAML settings over the defaults, so a partial file
// only overrides what it names.
func LoadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decoding settings")
	}
	return s, nil
}

// LoadSettingsFile reads settings from a YAML file.
func LoadSettingsFile(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, errors.Wrap(err, "opening settings file")
	}
	defer func() { _ = f.Close() }()
	return LoadSettings(f)
}
