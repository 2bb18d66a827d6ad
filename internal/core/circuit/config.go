package circuit

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// configYAML mirrors Config with human-readable duration strings. Pointer
// fields let a partial document override only what it names.
type configYAML struct {
	HandshakeTimeout *string  `yaml:"handshake_timeout"`
	ResendTimeout    *string  `yaml:"resend_timeout"`
	ResendInterval   *string  `yaml:"resend_interval"`
	BackoffFactor    *float64 `yaml:"backoff_factor"`
	MaxResends       *int     `yaml:"max_resends"`
	AckBatchDelay    *string  `yaml:"ack_batch_delay"`
	AckBatchMax      *int     `yaml:"ack_batch_max"`
	MaxPacketSize    *int     `yaml:"max_packet_size"`
}

func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw configYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	setDuration := func(dst *time.Duration, src *string, name string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", name)
		}
		*dst = d
		return nil
	}
	if err := setDuration(&c.HandshakeTimeout, raw.HandshakeTimeout, "handshake_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ResendTimeout, raw.ResendTimeout, "resend_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ResendInterval, raw.ResendInterval, "resend_interval"); err != nil {
		return err
	}
	if err := setDuration(&c.AckBatchDelay, raw.AckBatchDelay, "ack_batch_delay"); err != nil {
		return err
	}
	if raw.BackoffFactor != nil {
		c.BackoffFactor = *raw.BackoffFactor
	}
	if raw.MaxResends != nil {
		c.MaxResends = *raw.MaxResends
	}
	if raw.AckBatchMax != nil {
		c.AckBatchMax = *raw.AckBatchMax
	}
	if raw.MaxPacketSize != nil {
		c.MaxPacketSize = *raw.MaxPacketSize
	}
	return nil
}
