package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crimectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(DefaultFile)
	require.NoError(t, err)

	assert.Equal(t, "af-south-1", cfg.Region)
	assert.Equal(t, "chicago-crimes-uploads", cfg.UploadBucket)
	assert.Equal(t, "chicago-crimes-results", cfg.ResultsTable)
	assert.Equal(t, "file_key", cfg.TableHashKey)
	assert.Equal(t, "chicago-crimes-predictor", cfg.FunctionName)
	assert.Equal(t, "prod", cfg.StageName)
	assert.False(t, cfg.DryRun)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cfgErr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeConfig(t, `
region: eu-west-1
upload_bucket: custom-uploads
image_tag: v2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "custom-uploads", cfg.UploadBucket)
	assert.Equal(t, "v2", cfg.ImageTag)
	// Untouched keys keep their defaults.
	assert.Equal(t, "chicago-crimes-results", cfg.ResultsTable)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "regoin: eu-west-1\n")

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.Field)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, cfg.Region)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "region: eu-west-1\n")
	t.Setenv("CRIMECTL_REGION", "us-east-2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "us-east-2", cfg.Region)
}

func TestDryRunEnv(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		want    bool
		wantErr bool
	}{
		{name: "true", value: "true", want: true},
		{name: "one", value: "1", want: true},
		{name: "false", value: "false", want: false},
		{name: "garbage", value: "maybe", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DRY_RUN", tc.value)

			cfg, err := Load(DefaultFile)
			if tc.wantErr {
				require.Error(t, err)
				var cfgErr *pipeline.ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "DRY_RUN", cfgErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.DryRun)
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty region",
			mutate:    func(c *Config) { c.Region = "" },
			wantField: "region",
		},
		{
			name:      "bad email",
			mutate:    func(c *Config) { c.AdminEmail = "not-an-address" },
			wantField: "admin_email",
		},
		{
			name:      "bad platform",
			mutate:    func(c *Config) { c.Platform = "amd64" },
			wantField: "platform",
		},
		{
			name:      "uppercase bucket",
			mutate:    func(c *Config) { c.UploadBucket = "Uploads" },
			wantField: "upload_bucket",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *pipeline.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.wantField, cfgErr.Field)
		})
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestImageRef(t *testing.T) {
	cfg := Default()
	cfg.ImageTag = "v3"
	assert.Equal(t, "123.dkr.ecr.af-south-1.amazonaws.com/chicago-crimes-predictor:v3",
		cfg.ImageRef("123.dkr.ecr.af-south-1.amazonaws.com/chicago-crimes-predictor"))
}
