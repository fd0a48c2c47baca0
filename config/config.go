// Package config loads the compass daemon and logger configuration from
// YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/w1xm/compass_interface/compass"
	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`
	// Rotctld is the rotctld listen address; empty disables it.
	Rotctld   string `yaml:"rotctld"`
	StaticDir string `yaml:"static_dir"`

	Sensor   SensorConfig   `yaml:"sensor"`
	Compass  CompassConfig  `yaml:"compass"`
	Influx   InfluxConfig   `yaml:"influx"`
	Location LocationConfig `yaml:"location"`
}

type SensorConfig struct {
	// Source is one of "tcp", "serial", "modbus" or "simulator".
	Source string `yaml:"source"`
	// Address of a tcp sensor.
	Address string `yaml:"address"`
	// Port and Baud of a serial or local modbus sensor.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// URL of a modbus bridge, instead of Port.
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	SlaveId  byte   `yaml:"slave_id"`
}

type CompassConfig struct {
	compass.Settings `yaml:",inline"`
	// DisplayRotation in degrees: 0, 90, 180 or 270.
	DisplayRotation int `yaml:"display_rotation"`
}

type InfluxConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	// Compass is the websocket URL of the daemon to record.
	Compass string `yaml:"compass"`
}

// LocationConfig is a fixed position for true north when the sensor
// cannot report one.
type LocationConfig struct {
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
	Altitude  float64  `yaml:"altitude"`
}

func Default() Config {
	return Config{
		Addr:      "127.0.0.1:8502",
		Rotctld:   "127.0.0.1:4533",
		StaticDir: "static",
		Sensor: SensorConfig{
			Source:  "simulator",
			Baud:    9600,
			SlaveId: 1,
		},
		Compass: CompassConfig{Settings: compass.DefaultSettings()},
		Influx: InfluxConfig{
			Server:  "http://localhost:9999",
			Org:     "w1xm",
			Bucket:  "compass.raw",
			Compass: "ws://localhost:8502/api/ws",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("COMPASS_TRUE_NORTH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COMPASS_TRUE_NORTH: %w", err)
		}
		c.Compass.TrueNorth = b
	}
	if v, ok := lookup("INFLUX_SERVER"); ok && v != "" {
		c.Influx.Server = v
	}
	if v, ok := lookup("INFLUX_TOKEN"); ok {
		c.Influx.Token = v
	}
	if v, ok := lookup("COMPASS_ADDRESS"); ok && v != "" {
		c.Influx.Compass = v
	}
	return nil
}

// Fix returns the configured static location, if both coordinates are set.
// It is stamped with the current time by the caller.
func (l LocationConfig) Fix() (declination.Fix, bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return declination.Fix{}, false
	}
	return declination.Fix{Latitude: *l.Latitude, Longitude: *l.Longitude, Altitude: l.Altitude}, true
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr is required"))
	}
	switch c.Sensor.Source {
	case "tcp":
		if c.Sensor.Address == "" {
			err = multierr.Append(err, errors.New("sensor.address is required for a tcp sensor"))
		}
	case "serial":
		if c.Sensor.Port == "" {
			err = multierr.Append(err, errors.New("sensor.port is required for a serial sensor"))
		}
	case "modbus":
		if c.Sensor.Port == "" && c.Sensor.URL == "" {
			err = multierr.Append(err, errors.New("sensor.port or sensor.url is required for a modbus sensor"))
		}
	case "simulator":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown sensor.source %q", c.Sensor.Source))
	}
	if c.Sensor.Baud <= 0 && (c.Sensor.Source == "serial" || (c.Sensor.Source == "modbus" && c.Sensor.URL == "")) {
		err = multierr.Append(err, fmt.Errorf("invalid sensor.baud %d", c.Sensor.Baud))
	}
	if e := c.Compass.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("compass.feedback_interval: %w", e))
	}
	if _, e := orientation.ParseDisplayRotation(c.Compass.DisplayRotation); e != nil {
		err = multierr.Append(err, fmt.Errorf("compass.display_rotation: %w", e))
	}
	if (c.Location.Latitude == nil) != (c.Location.Longitude == nil) {
		err = multierr.Append(err, errors.New("location needs both latitude and longitude"))
	} else if fix, ok := c.Location.Fix(); ok {
		fix.Time = time.Now()
		if e := fix.Validate(); e != nil {
			err = multierr.Append(err, fmt.Errorf("location: %w", e))
		}
	}
	return err
}
