package commons

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/xid"
	yaml "gopkg.in/yaml.v2"

	"github.com/streamtv/cachepool/utils"
)

var (
	instanceID string
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// PartitionSetting defines capacity and TTL for a cache partition
type PartitionSetting struct {
	Name     string         `yaml:"name" json:"name"`
	MaxItems int            `yaml:"max_items" json:"max_items"`
	TTL      utils.Duration `yaml:"ttl" json:"ttl"`
}

// ClassifyRule maps a path prefix to a partition and a caching strategy
type ClassifyRule struct {
	PathPrefix string `yaml:"path_prefix" json:"path_prefix"`
	Partition  string `yaml:"partition" json:"partition"`
	Strategy   string `yaml:"strategy" json:"strategy"`
}

// NewDefaultPartitionSettings returns default partition settings
func NewDefaultPartitionSettings() []PartitionSetting {
	return []PartitionSetting{
		{Name: "static", MaxItems: 60, TTL: utils.Duration(7 * 24 * time.Hour)},
		{Name: "dynamic", MaxItems: 50, TTL: utils.Duration(24 * time.Hour)},
		{Name: "media", MaxItems: 30, TTL: utils.Duration(6 * time.Hour)},
		{Name: "images", MaxItems: 100, TTL: utils.Duration(72 * time.Hour)},
		{Name: "api", MaxItems: 40, TTL: utils.Duration(5 * time.Minute)},
	}
}

// NewDefaultClassifyRules returns default classification rules
func NewDefaultClassifyRules() []ClassifyRule {
	return []ClassifyRule{
		{PathPrefix: "/api/", Partition: "api", Strategy: "network-first"},
		{PathPrefix: "/static/", Partition: "static", Strategy: "stale-while-revalidate"},
		{PathPrefix: "/images/", Partition: "images", Strategy: "cache-first"},
		{PathPrefix: "/thumbnails/", Partition: "images", Strategy: "cache-first"},
		{PathPrefix: "/media/", Partition: "media", Strategy: "network-first"},
		{PathPrefix: "/pages/", Partition: "dynamic", Strategy: "network-first"},
	}
}

// Config holds the parameters list which can be configured
type Config struct {
	EngineVersion string `envconfig:"ENGINE_VERSION" yaml:"engine_version,omitempty"`
	DataRootPath  string `envconfig:"DATA_ROOT_PATH" yaml:"data_root_path,omitempty"`

	ServicePort int `envconfig:"SERVICE_PORT" yaml:"service_port"`

	Partitions    []PartitionSetting `yaml:"partitions,omitempty"`
	ClassifyRules []ClassifyRule     `yaml:"classify_rules,omitempty"`

	NetworkTimeout       utils.Duration `envconfig:"NETWORK_TIMEOUT" yaml:"network_timeout,omitempty"`
	PreloadRetryLimit    int            `envconfig:"PRELOAD_RETRY_LIMIT" yaml:"preload_retry_limit,omitempty"`
	PreloadBackoffBase   utils.Duration `envconfig:"PRELOAD_BACKOFF_BASE" yaml:"preload_backoff_base,omitempty"`
	PreloadMaxConcurrent int            `envconfig:"PRELOAD_MAX_CONCURRENT" yaml:"preload_max_concurrent,omitempty"`
	PrefetchQueueMax     int            `envconfig:"PREFETCH_QUEUE_MAX" yaml:"prefetch_queue_max,omitempty"`
	PreviewBytes         int64          `envconfig:"PREVIEW_BYTES" yaml:"preview_bytes,omitempty"`

	OriginURL    string `envconfig:"ORIGIN_URL" yaml:"origin_url,omitempty"`
	ManifestPath string `envconfig:"MANIFEST_PATH" yaml:"manifest_path,omitempty"`

	LogPath string `envconfig:"LOG_PATH" yaml:"log_path,omitempty"`

	Profile                bool `envconfig:"PROFILE" yaml:"profile,omitempty"`
	ProfileServicePort     int  `envconfig:"PROFILE_SERVICE_PORT" yaml:"profile_service_port,omitempty"`
	PrometheusExporterPort int  `envconfig:"PROMETHEUS_EXPORTER_PORT" yaml:"prometheus_exporter_port,omitempty"`

	Debug      bool `envconfig:"DEBUG" yaml:"debug,omitempty"`
	Foreground bool `yaml:"foreground,omitempty"`

	InstanceID string `yaml:"instanceid,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		EngineVersion: GetServiceVersion(),
		DataRootPath:  DataRootPathDefault,

		ServicePort: ServicePortDefault,

		Partitions:    NewDefaultPartitionSettings(),
		ClassifyRules: NewDefaultClassifyRules(),

		NetworkTimeout:       utils.Duration(NetworkTimeoutDefault),
		PreloadRetryLimit:    PreloadRetryLimitDefault,
		PreloadBackoffBase:   utils.Duration(PreloadBackoffBaseDefault),
		PreloadMaxConcurrent: PreloadMaxConcurrentDefault,
		PrefetchQueueMax:     PrefetchQueueMaxDefault,
		PreviewBytes:         PreviewBytesDefault,

		LogPath: "",

		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: PrometheusExporterPortDefault,

		Debug:      false,
		Foreground: false,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, NewParseError("config yaml", err)
	}

	if len(config.Partitions) == 0 {
		config.Partitions = NewDefaultPartitionSettings()
	}

	if len(config.ClassifyRules) == 0 {
		config.ClassifyRules = NewDefaultClassifyRules()
	}

	return config, nil
}

// NewConfigFromENV creates Config from Environmental Variables
func NewConfigFromENV() (*Config, error) {
	config := NewDefaultConfig()

	err := envconfig.Process("cachepool", config)
	if err != nil {
		return nil, NewParseError("config env", err)
	}

	return config, nil
}

// GetBadgerDirPath returns badger db directory path
func (config *Config) GetBadgerDirPath() string {
	return utils.JoinPath(config.DataRootPath, "store")
}

// GetMediaCacheDirPath returns media preview cache directory path
func (config *Config) GetMediaCacheDirPath() string {
	return utils.JoinPath(config.DataRootPath, "media_cache")
}

// GetLogFilePath returns log file path
func (config *Config) GetLogFilePath() string {
	if len(config.LogPath) > 0 {
		return config.LogPath
	}

	return ""
}

// MakeWorkDirs makes work directories required
func (config *Config) MakeWorkDirs() error {
	err := os.MkdirAll(config.GetBadgerDirPath(), 0755)
	if err != nil {
		return err
	}

	err = os.MkdirAll(config.GetMediaCacheDirPath(), 0755)
	if err != nil {
		return err
	}

	return nil
}

// CleanWorkDirs cleans up work directories
func (config *Config) CleanWorkDirs() error {
	return os.RemoveAll(config.GetMediaCacheDirPath())
}

// GetPartitionSetting returns the setting for the partition name
func (config *Config) GetPartitionSetting(name string) (PartitionSetting, bool) {
	for _, partition := range config.Partitions {
		if partition.Name == name {
			return partition, true
		}
	}
	return PartitionSetting{}, false
}

// Validate validates configuration
func (config *Config) Validate() error {
	if config.ServicePort <= 0 {
		return fmt.Errorf("service port must be given")
	}

	if len(config.DataRootPath) == 0 {
		return fmt.Errorf("data root path must be given")
	}

	if len(config.EngineVersion) == 0 {
		return fmt.Errorf("engine version must be given")
	}

	if config.Profile && config.ProfileServicePort <= 0 {
		return fmt.Errorf("profile service port must be given")
	}

	for _, partition := range config.Partitions {
		if len(partition.Name) == 0 {
			return fmt.Errorf("partition name must be given")
		}

		if partition.MaxItems < 0 {
			return fmt.Errorf("partition %q max items must be >= 0", partition.Name)
		}

		if partition.TTL < 0 {
			return fmt.Errorf("partition %q ttl must be >= 0", partition.Name)
		}
	}

	if config.PreloadMaxConcurrent <= 0 {
		return fmt.Errorf("preload max concurrent must be > 0")
	}

	if config.PreloadRetryLimit < 0 {
		return fmt.Errorf("preload retry limit must be >= 0")
	}

	if config.PrefetchQueueMax <= 0 {
		return fmt.Errorf("prefetch queue max must be > 0")
	}

	if config.PreviewBytes <= 0 {
		return fmt.Errorf("preview bytes must be > 0")
	}

	return nil
}
