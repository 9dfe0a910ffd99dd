package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

func testStep(name string, deps []string, props map[string]any) *pipeline.Step {
	if props == nil {
		props = map[string]any{}
	}
	return &pipeline.Step{
		Name:      name,
		DependsOn: deps,
		Descriptor: &pipeline.Descriptor{
			Kind:       pipeline.KindObjectStore,
			Name:       name,
			Provider:   "fake",
			LookupKey:  name,
			Properties: props,
		},
	}
}

func TestBuildGraph_ValidChain(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", nil, nil),
		testStep("b", []string{"a"}, nil),
		testStep("c", []string{"a", "b"}, nil),
	}

	g, err := BuildGraph(steps)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.Order())
	assert.Equal(t, []string{"a", "b"}, g.Dependencies("c"))
}

func TestBuildGraph_ImplicitRefEdge(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("bucket", nil, nil),
		testStep("policy", nil, map[string]any{
			"bucket": pipeline.Ref("bucket", "name"),
		}),
	}

	g, err := BuildGraph(steps)
	require.NoError(t, err)

	assert.Equal(t, []string{"bucket"}, g.Dependencies("policy"))
	assert.Equal(t, []string{"policy"}, g.Dependents("bucket"))
}

func TestBuildGraph_ExplicitAndRefDeduplicated(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("bucket", nil, nil),
		testStep("policy", []string{"bucket"}, map[string]any{
			"bucket": pipeline.Ref("bucket", "name"),
			"arn":    pipeline.Ref("bucket", "arn"),
		}),
	}

	g, err := BuildGraph(steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"bucket"}, g.Dependencies("policy"))
}

func TestBuildGraph_CycleDetection(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", []string{"b"}, nil),
		testStep("b", nil, map[string]any{"x": pipeline.Ref("a", "id")}),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildGraph_UnknownDependency(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", []string{"ghost"}, nil),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestBuildGraph_UnknownRefTarget(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", nil, map[string]any{"x": pipeline.Ref("ghost", "id")}),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildGraph_MalformedRef(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", nil, map[string]any{"x": "ref://missing-attr"}),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestBuildGraph_DuplicateStep(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", nil, nil),
		testStep("a", nil, nil),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuildGraph_SelfDependency(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", []string{"a"}, nil),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "itself")
}

func TestBuildGraph_DeclaredOrderViolation(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("role", []string{"bucket"}, nil),
		testStep("bucket", nil, nil),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared before its dependency")
}

func TestTransitiveDeps(t *testing.T) {
	steps := []*pipeline.Step{
		testStep("a", nil, nil),
		testStep("b", []string{"a"}, nil),
		testStep("c", nil, nil),
		testStep("d", []string{"b", "c"}, nil),
	}

	g, err := BuildGraph(steps)
	require.NoError(t, err)

	deps, err := g.TransitiveDeps("d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, deps)

	deps, err = g.TransitiveDeps("a")
	require.NoError(t, err)
	assert.Empty(t, deps)

	_, err = g.TransitiveDeps("ghost")
	assert.Error(t, err)
}
