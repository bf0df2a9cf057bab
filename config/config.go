// Package config loads the building and server configuration from YAML.
//
// Every field has a default matching the original building layout
// (resident spots 1-33 and 41-45, guest spot 46, two staff spots,
// America/Chicago), so a missing config file still yields a runnable
// system.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johnfabrycky/felipe/parking"
)

// Config is the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Building BuildingConfig `yaml:"building"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"status_cache_ttl_seconds"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SpotRange is an inclusive run of resident spot numbers.
type SpotRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// BlackoutRuleConfig mirrors parking.BlackoutRule in YAML-friendly form.
type BlackoutRuleConfig struct {
	Days      []string `yaml:"days"`
	StartHour int      `yaml:"start_hour"`
	EndHour   int      `yaml:"end_hour"`
}

// BuildingConfig describes the fixed spot inventory and policies.
type BuildingConfig struct {
	Timezone      string               `yaml:"timezone"`
	ResidentSpots []SpotRange          `yaml:"resident_spots"`
	GuestSpot     int                  `yaml:"guest_spot"`
	StaffPoolSize int                  `yaml:"staff_pool_size"`
	RecurrenceCap int                  `yaml:"recurrence_cap"`
	Blackout      []BlackoutRuleConfig `yaml:"blackout"`
}

// SweeperConfig bounds how stale expired rows may get.
type SweeperConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Default returns the configuration the original building runs with.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RateLimitPerSec: 10,
			RateLimitBurst:  20,
			CacheTTLSeconds: 15,
		},
		Database: DatabaseConfig{Path: "felipe.db"},
		Building: BuildingConfig{
			Timezone:      "America/Chicago",
			ResidentSpots: []SpotRange{{From: 1, To: 33}, {From: 41, To: 45}},
			GuestSpot:     46,
			StaffPoolSize: 2,
			RecurrenceCap: parking.DefaultRecurrenceCap,
		},
		Sweeper: SweeperConfig{IntervalSeconds: 60},
	}
}

// Load reads the configuration at path, layered over Default. A missing
// file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Location resolves the building timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Building.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Building.Timezone, err)
	}
	return loc, nil
}

// Layout materializes the spot inventory.
func (c *Config) Layout() parking.Layout {
	var resident []parking.ResourceID
	for _, r := range c.Building.ResidentSpots {
		for id := r.From; id <= r.To; id++ {
			resident = append(resident, parking.ResourceID(id))
		}
	}
	return parking.NewLayout(resident, parking.ResourceID(c.Building.GuestSpot), c.Building.StaffPoolSize)
}

// BlackoutCalendar materializes the configured blackout rules, falling
// back to the standing default when none are configured.
func (c *Config) BlackoutCalendar() (parking.BlackoutCalendar, error) {
	if len(c.Building.Blackout) == 0 {
		return parking.DefaultBlackout(), nil
	}
	var cal parking.BlackoutCalendar
	for _, rc := range c.Building.Blackout {
		rule := parking.BlackoutRule{StartHour: rc.StartHour, EndHour: rc.EndHour}
		for _, d := range rc.Days {
			wd, err := parking.ParseWeekday(d)
			if err != nil {
				return parking.BlackoutCalendar{}, fmt.Errorf("blackout rule: %w", err)
			}
			rule.Days = append(rule.Days, wd)
		}
		cal.Rules = append(cal.Rules, rule)
	}
	return cal, nil
}

// SweepInterval returns the sweeper period.
func (c *Config) SweepInterval() time.Duration {
	if c.Sweeper.IntervalSeconds <= 0 {
		return parking.DefaultSweepInterval
	}
	return time.Duration(c.Sweeper.IntervalSeconds) * time.Second
}

// CacheTTL returns the status cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Server.CacheTTLSeconds) * time.Second
}
