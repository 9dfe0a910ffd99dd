package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicago-crimes/crimectl/internal/config"
	"github.com/chicago-crimes/crimectl/internal/engine"
	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

func testRun(results ...*pipeline.StepResult) *pipeline.Run {
	run := pipeline.NewRun(false)
	for _, res := range results {
		run.Record(res)
	}
	return run
}

func TestColorize(t *testing.T) {
	// When noColor is false, colorize should return the code
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	// When noColor is true, colorize should return empty string
	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))

	// Reset
	noColor = false
}

func TestOutcomeSymbol(t *testing.T) {
	tests := []struct {
		outcome pipeline.Outcome
		symbol  string
	}{
		{pipeline.OutcomeCreated, "+"},
		{pipeline.OutcomeWouldCreate, "+"},
		{pipeline.OutcomeReused, "="},
		{pipeline.OutcomeWouldReuse, "="},
		{pipeline.OutcomePresent, "="},
		{pipeline.OutcomeAbsent, "-"},
		{pipeline.OutcomeSkipped, "-"},
		{pipeline.OutcomeFailed, "!"},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.symbol, outcomeSymbol(tt.outcome))
		})
	}
}

func TestSummarize(t *testing.T) {
	run := testRun(
		&pipeline.StepResult{Step: "uploads-bucket", Outcome: pipeline.OutcomeCreated},
		&pipeline.StepResult{Step: "site-cdn", Outcome: pipeline.OutcomeCreated},
		&pipeline.StepResult{Step: "results-table", Outcome: pipeline.OutcomeReused},
		&pipeline.StepResult{Step: "admin-email", Outcome: pipeline.OutcomeFailed},
	)

	counts := summarize(run)
	assert.Equal(t, 2, counts[pipeline.OutcomeCreated])
	assert.Equal(t, 1, counts[pipeline.OutcomeReused])
	assert.Equal(t, 1, counts[pipeline.OutcomeFailed])
	assert.Equal(t, 0, counts[pipeline.OutcomeSkipped])
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "string quoted", input: "prod", expected: `"prod"`},
		{name: "nil", input: nil, expected: "null"},
		{name: "number", input: 300, expected: "300"},
		{name: "bool", input: true, expected: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.input))
		})
	}
}

func TestRunOutputs(t *testing.T) {
	fn := &pipeline.Handle{Kind: pipeline.KindFunction, Name: "predictor-function", ID: "chicago-crimes-predictor", Status: pipeline.StatusActive}
	fn.SetAttr("invoke_url", "https://abc123.execute-api.af-south-1.amazonaws.com/prod")
	cdn := &pipeline.Handle{Kind: pipeline.KindCDNDistribution, Name: "site-cdn", ID: "E2ABC", Status: pipeline.StatusActive}
	cdn.SetAttr("domain", "d111.cloudfront.net")

	run := testRun(
		&pipeline.StepResult{Step: "predictor-function", Outcome: pipeline.OutcomeReused, Handle: fn},
		&pipeline.StepResult{Step: "site-cdn", Outcome: pipeline.OutcomeReused, Handle: cdn},
	)

	outputs := runOutputs(run)
	require.Len(t, outputs, 2)
	assert.Equal(t, [2]string{"api_invoke_url", "https://abc123.execute-api.af-south-1.amazonaws.com/prod"}, outputs[0])
	assert.Equal(t, [2]string{"cdn_domain", "d111.cloudfront.net"}, outputs[1])
}

func TestRunOutputs_SkipsUnknownValues(t *testing.T) {
	cdn := &pipeline.Handle{Kind: pipeline.KindCDNDistribution, Name: "site-cdn", ID: pipeline.UnknownValue}
	cdn.SetAttr("domain", pipeline.UnknownValue)

	// A would-create placeholder must not leak its logical name as the
	// bucket name through the handle's name fallback.
	bucket := &pipeline.Handle{Kind: pipeline.KindObjectStore, Name: "uploads-bucket", ID: pipeline.UnknownValue}

	run := testRun(
		&pipeline.StepResult{Step: "site-cdn", Outcome: pipeline.OutcomeWouldCreate, Handle: cdn},
		&pipeline.StepResult{Step: "uploads-bucket", Outcome: pipeline.OutcomeWouldCreate, Handle: bucket},
		&pipeline.StepResult{Step: "admin-email", Outcome: pipeline.OutcomeWouldCreate},
	)

	assert.Empty(t, runOutputs(run))
}

func TestWriteRunJSON(t *testing.T) {
	run := testRun(&pipeline.StepResult{Step: "uploads-bucket", Outcome: pipeline.OutcomeCreated})
	path := filepath.Join(t.TempDir(), "plan.json")

	require.NoError(t, writeRunJSON(path, run))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), run.ID)
	assert.Contains(t, string(data), "uploads-bucket")
}

func TestStarterConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crimectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(starterConfig), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.UploadBucket)
	assert.NotEmpty(t, cfg.Platform)
}

func TestStepCommandsRegistered(t *testing.T) {
	var childNames []string
	for _, c := range stepCmd.Commands() {
		childNames = append(childNames, c.Name())
	}

	for _, name := range engine.StepNames(config.Default()) {
		assert.Contains(t, childNames, name)
	}
}
