package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Scheduler struct {
		Interval string `yaml:"interval"`
		Timezone string `yaml:"timezone"`
	} `yaml:"scheduler"`
	Rewards struct {
		PerCorrect            int `yaml:"perCorrect"`
		LeaderboardMultiplier int `yaml:"leaderboardMultiplier"`
		LeaderboardTop        int `yaml:"leaderboardTop"`
	} `yaml:"rewards"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	WebSocket struct {
		MessagesPerSecond float64 `yaml:"messagesPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"websocket"`
}

// Load reads YAML config from path and fills defaults for anything unset.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Rewards.PerCorrect == 0 {
		c.Rewards.PerCorrect = 100
	}
	if c.Rewards.LeaderboardMultiplier == 0 {
		c.Rewards.LeaderboardMultiplier = 100
	}
	if c.Rewards.LeaderboardTop == 0 {
		c.Rewards.LeaderboardTop = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "quiz.events"
	}
}

// Location resolves scheduler.timezone, defaulting to the host's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	return loc, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
