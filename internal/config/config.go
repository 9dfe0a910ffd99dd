package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// DefaultFile is the config file looked up when no --config flag is given.
// The file is optional; the compiled defaults describe the stock stack.
const DefaultFile = "crimectl.yaml"

// Stock resource names for the crime-prediction stack.
const (
	DefaultRegion       = "af-south-1"
	DefaultUploadBucket = "chicago-crimes-uploads"
	DefaultResultsTable = "chicago-crimes-results"
	DefaultTableHashKey = "file_key"
	DefaultAPIName      = "chicago-crimes-api"
	DefaultStageName    = "prod"
	DefaultRepository   = "chicago-crimes-predictor"
	DefaultRoleName     = "chicago-crimes-lambda-role"
	DefaultFunctionName = "chicago-crimes-predictor"
	DefaultAdminEmail   = "midegageorge2@gmail.com"
	DefaultImageTag     = "latest"
	DefaultPlatform     = "linux/amd64"
)

// Config is the flat key-value set a run loads exactly once at startup.
// Nothing else in the process reads the environment or the file again.
type Config struct {
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UploadBucket string `yaml:"upload_bucket"`
	ResultsTable string `yaml:"results_table"`
	TableHashKey string `yaml:"table_hash_key"`
	APIName      string `yaml:"api_name"`
	StageName    string `yaml:"stage_name"`
	Repository   string `yaml:"repository"`
	RoleName     string `yaml:"role_name"`
	FunctionName string `yaml:"function_name"`
	AdminEmail   string `yaml:"admin_email"`
	ImageTag     string `yaml:"image_tag"`
	BuildContext string `yaml:"build_context"`
	Dockerfile   string `yaml:"dockerfile"`
	Platform     string `yaml:"platform"`
	LogLevel     string `yaml:"log_level"`
	DryRun       bool   `yaml:"dry_run"`
}

// Default returns the compiled-in configuration for the stock stack.
func Default() *Config {
	return &Config{
		Region:       DefaultRegion,
		UploadBucket: DefaultUploadBucket,
		ResultsTable: DefaultResultsTable,
		TableHashKey: DefaultTableHashKey,
		APIName:      DefaultAPIName,
		StageName:    DefaultStageName,
		Repository:   DefaultRepository,
		RoleName:     DefaultRoleName,
		FunctionName: DefaultFunctionName,
		AdminEmail:   DefaultAdminEmail,
		ImageTag:     DefaultImageTag,
		BuildContext: ".",
		Dockerfile:   "Dockerfile",
		Platform:     DefaultPlatform,
		LogLevel:     "info",
	}
}

// Load builds the configuration in three layers: compiled defaults, the YAML
// file at path, then environment overrides. The default file may be absent;
// any other load problem fails the run before a single step executes.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if decErr := dec.Decode(cfg); decErr != nil && !errors.Is(decErr, io.EOF) {
			return nil, &pipeline.ConfigurationError{Field: path, Reason: decErr.Error()}
		}
	case os.IsNotExist(err) && path == DefaultFile:
		// Stock defaults apply.
	default:
		return nil, &pipeline.ConfigurationError{Field: path, Reason: err.Error()}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CRIMECTL_* variables plus the bare DRY_RUN toggle.
func applyEnv(cfg *Config) error {
	overrides := map[string]*string{
		"CRIMECTL_REGION":        &cfg.Region,
		"CRIMECTL_PROFILE":       &cfg.Profile,
		"CRIMECTL_UPLOAD_BUCKET": &cfg.UploadBucket,
		"CRIMECTL_RESULTS_TABLE": &cfg.ResultsTable,
		"CRIMECTL_API_NAME":      &cfg.APIName,
		"CRIMECTL_STAGE_NAME":    &cfg.StageName,
		"CRIMECTL_REPOSITORY":    &cfg.Repository,
		"CRIMECTL_ROLE_NAME":     &cfg.RoleName,
		"CRIMECTL_FUNCTION_NAME": &cfg.FunctionName,
		"CRIMECTL_ADMIN_EMAIL":   &cfg.AdminEmail,
		"CRIMECTL_IMAGE_TAG":     &cfg.ImageTag,
		"CRIMECTL_BUILD_CONTEXT": &cfg.BuildContext,
		"CRIMECTL_DOCKERFILE":    &cfg.Dockerfile,
		"CRIMECTL_PLATFORM":      &cfg.Platform,
		"CRIMECTL_LOG_LEVEL":     &cfg.LogLevel,
	}
	for key, field := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*field = v
		}
	}

	if v, ok := os.LookupEnv("DRY_RUN"); ok && v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return &pipeline.ConfigurationError{Field: "DRY_RUN", Reason: fmt.Sprintf("not a boolean: %q", v)}
		}
		cfg.DryRun = dryRun
	}
	return nil
}

// Validate rejects configurations that would fail mid-pipeline. Every
// problem is fatal; there are no partial defaults after this point.
func (c *Config) Validate() error {
	required := map[string]string{
		"region":         c.Region,
		"upload_bucket":  c.UploadBucket,
		"results_table":  c.ResultsTable,
		"table_hash_key": c.TableHashKey,
		"api_name":       c.APIName,
		"stage_name":     c.StageName,
		"repository":     c.Repository,
		"role_name":      c.RoleName,
		"function_name":  c.FunctionName,
		"admin_email":    c.AdminEmail,
		"image_tag":      c.ImageTag,
		"build_context":  c.BuildContext,
		"platform":       c.Platform,
	}
	for field, val := range required {
		if val == "" {
			return &pipeline.ConfigurationError{Field: field, Reason: "must not be empty"}
		}
	}

	if !strings.Contains(c.AdminEmail, "@") {
		return &pipeline.ConfigurationError{Field: "admin_email", Reason: fmt.Sprintf("not an email address: %q", c.AdminEmail)}
	}
	if !strings.Contains(c.Platform, "/") {
		return &pipeline.ConfigurationError{Field: "platform", Reason: fmt.Sprintf("want os/arch, got %q", c.Platform)}
	}
	if strings.ToLower(c.UploadBucket) != c.UploadBucket {
		return &pipeline.ConfigurationError{Field: "upload_bucket", Reason: "bucket names must be lowercase"}
	}
	return nil
}

// ImageRef returns the fully qualified tag the predictor image is pushed as,
// given the registry URI produced by the repository step.
func (c *Config) ImageRef(registryURI string) string {
	return registryURI + ":" + c.ImageTag
}
