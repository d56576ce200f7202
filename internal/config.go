package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/editor-server/internal/connector/grow"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/report"
	"github.com/starford/editor-server/internal/storage"
	"github.com/starford/editor-server/internal/workspace"
)

// Storage drivers.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig   `yaml:"app"`
	Project   ProjectConfig       `yaml:"project"`
	Storage   StorageConfig       `yaml:"storage"`
	Workspace WorkspaceConfig     `yaml:"workspace"`
	Grow      GrowConfig          `yaml:"grow"`
	Partials  PartialsConfig      `yaml:"partials"`
	History   HistoryConfig       `yaml:"history"`
	Events    EventsConfig        `yaml:"events"`
	Devices   []models.DeviceData `yaml:"devices"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c.Storage.Driver == StorageDriverLocal {
		if err := c.Project.Validate(); err != nil {
			return fmt.Errorf("project: %w", err)
		}
	}
	if err := c.Workspace.Validate(); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := c.Grow.Filter.Validate(); err != nil {
		return fmt.Errorf("grow.filter: %w", err)
	}
	if err := c.Partials.Validate(); err != nil {
		return fmt.Errorf("partials: %w", err)
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if err := validation.ValidateStruct(d,
			validation.Field(&d.Label, validation.Required),
			validation.Field(&d.Width, validation.Required, validation.Min(1)),
			validation.Field(&d.Height, validation.Min(0)),
		); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// Mode selects error reporting: "prod" reports every failed request.
	Mode string     `yaml:"mode"`
	HTTP HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(report.ModeDev, report.ModeProd)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ProjectConfig points at the project checkout served by the local driver.
type ProjectConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// StorageConfig selects the storage provider.
type StorageConfig struct {
	Driver string   `yaml:"driver"`
	S3     S3Config `yaml:"s3"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StorageDriverLocal, StorageDriverS3)),
	); err != nil {
		return err
	}
	if c.Driver == StorageDriverS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds the settings of an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Bucket, validation.Required),
	)
}

// Provider returns the storage settings in the form the S3 provider takes.
func (c *S3Config) Provider() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		UseSSL:    c.UseSSL,
	}
}

// WorkspaceConfig describes the branches of the checkout.
type WorkspaceConfig struct {
	Branch   string   `yaml:"branch"`
	Branches []string `yaml:"branches"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.Branches, validation.Each(validation.Required)),
	)
}

// Service returns the workspace service for the configured branches.
func (c *WorkspaceConfig) Service() *workspace.Service {
	return workspace.NewService(c.Branch, c.Branches)
}

// GrowConfig tunes the Grow connector.
type GrowConfig struct {
	Filter FilterConfig `yaml:"filter"`
}

// FilterConfig holds the regular expressions selecting the files offered to
// the editor. Leaving both lists empty keeps the connector default.
type FilterConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

var isRegexp = validation.By(func(v any) error {
	s, _ := v.(string)
	if _, err := regexp.Compile(s); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
})

// Validate validates the filter configuration.
func (c *FilterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Includes, validation.Each(validation.Required, isRegexp)),
		validation.Field(&c.Excludes, validation.Each(validation.Required, isRegexp)),
	)
}

// Build compiles the filter, or returns nil when none is configured.
func (c *FilterConfig) Build() (*grow.Filter, error) {
	if len(c.Includes) == 0 && len(c.Excludes) == 0 {
		return nil, nil
	}
	return grow.NewFilter(c.Includes, c.Excludes)
}

// PartialsConfig tunes partial enumeration.
type PartialsConfig struct {
	Concurrency int `yaml:"concurrency"`
	// ImportDepth bounds nested !import resolution.
	ImportDepth int `yaml:"import_depth"`
}

// Validate validates the partials configuration.
func (c *PartialsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.ImportDepth, validation.Required, validation.Min(1)),
	)
}

// HistoryConfig holds the edit history database settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Limit is the number of changes attached to a file read.
	Limit int `yaml:"limit"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Limit, validation.Min(-1)),
	)
}

// EventsConfig controls file change notifications.
type EventsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			Mode:     report.ModeDev,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Project: ProjectConfig{
			Root: ".",
		},
		Storage: StorageConfig{
			Driver: StorageDriverLocal,
		},
		Workspace: WorkspaceConfig{
			Branch: "main",
		},
		Partials: PartialsConfig{
			Concurrency: 8,
			ImportDepth: 8,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./editor-history.db",
			Limit:   10,
		},
		Events: EventsConfig{
			Enabled:  true,
			Throttle: 2 * time.Second,
		},
		Devices: []models.DeviceData{
			{Label: "Mobile", Width: 411, Height: 731, CanRotate: true},
			{Label: "Tablet", Width: 1024, Height: 768, CanRotate: true},
			{Label: "Desktop", Width: 1440},
		},
	}
}
