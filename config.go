package main

import "time"

type Config struct {
	Token  string  `yaml:"token"`
	DBfile string  `yaml:"dbfile"`
	Admins []int64 `yaml:"admins"`

	ScheduleURL string `yaml:"schedule_url"`
	CacheDir    string `yaml:"cache_dir"`

	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
	ReadTimeoutSec    int `yaml:"read_timeout_sec"`

	ContentTTLMin  int `yaml:"content_ttl_min"`
	MetadataTTLMin int `yaml:"metadata_ttl_min"`
	LocationTTLMin int `yaml:"location_ttl_min"`
	FileListTTLMin int `yaml:"file_list_ttl_min"`
	MaxCacheMB     int `yaml:"max_cache_mb"`

	MonitorIntervalMin   int `yaml:"monitor_interval_min"`
	MonitorFailThreshold int `yaml:"monitor_fail_threshold"`
	MonitorBackoffMin    int `yaml:"monitor_backoff_min"`

	StatusAddr    string `yaml:"status_addr"`
	SemesterStart string `yaml:"semester_start"`
}

// Defaults match the production deployment: small RAM budget, long
// listing TTL, metadata and group-location TTLs scaled off the content
// TTL.
func (c *Config) applyDefaults() {
	if c.ScheduleURL == "" {
		c.ScheduleURL = "https://kpfu.ru/physics/raspisanie-zanyatij"
	}
	if c.CacheDir == "" {
		c.CacheDir = "schedule_data"
	}
	if c.DBfile == "" {
		c.DBfile = "schedule.db"
	}
	if c.ConnectTimeoutSec == 0 {
		c.ConnectTimeoutSec = 10
	}
	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 120
	}
	if c.ContentTTLMin == 0 {
		c.ContentTTLMin = 30
	}
	if c.MetadataTTLMin == 0 {
		c.MetadataTTLMin = c.ContentTTLMin * 2
	}
	if c.LocationTTLMin == 0 {
		c.LocationTTLMin = c.ContentTTLMin * 4
	}
	if c.FileListTTLMin == 0 {
		c.FileListTTLMin = 240
	}
	if c.MaxCacheMB == 0 {
		c.MaxCacheMB = 20
	}
	if c.MonitorIntervalMin == 0 {
		c.MonitorIntervalMin = 60
	}
	if c.MonitorFailThreshold == 0 {
		c.MonitorFailThreshold = 3
	}
	if c.MonitorBackoffMin == 0 {
		c.MonitorBackoffMin = c.MonitorIntervalMin * 4
	}
	if c.SemesterStart == "" {
		c.SemesterStart = "2025-09-01"
	}
}

func (c *Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

func (c *Config) readTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}
