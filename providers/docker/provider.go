// Package docker builds the predictor image from its build context and
// pushes it to the registry step's repository. The probe inspects the
// remote registry, not the local image store: only a pushed image counts
// as existing, because that is what the function step deploys.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/internal/provider"
)

var _ provider.Interface = (*Provider)(nil)

// Registry tokens expire quickly, so each push attempt fetches a fresh
// set instead of reusing the ones that may have just been rejected.
const pushAttempts = 3

// CredentialSource supplies registry credentials at push time. The aws
// provider implements it with short-lived ECR authorization tokens.
type CredentialSource interface {
	RegistryCredentials(ctx context.Context) (username, password, server string, err error)
}

type Provider struct {
	client *client.Client
	creds  CredentialSource
}

func New(creds CredentialSource) *Provider {
	return &Provider{creds: creds}
}

func (p *Provider) Name() string { return "docker" }

type ImageConfig struct {
	RepositoryURI string `json:"repository_uri"`
	Tag           string `json:"tag"`
	Context       string `json:"context"`
	Dockerfile    string `json:"dockerfile"`
	Platform      string `json:"platform"`
}

func (c ImageConfig) ref() string { return c.RepositoryURI + ":" + c.Tag }

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

// Configure verifies the daemon is reachable. Failing here, before any
// step runs, beats failing halfway through a provisioning chain.
func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	if err := p.ensureClient(); err != nil {
		return &pipeline.ToolingMissingError{Tool: "docker", Cause: err}
	}
	if _, err := p.client.Ping(ctx); err != nil {
		return &pipeline.ToolingMissingError{Tool: "docker", Cause: err}
	}
	return nil
}

func (p *Provider) Find(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	if err := p.ensureClient(); err != nil {
		return nil, &pipeline.ToolingMissingError{Tool: "docker", Cause: err}
	}

	var cfg ImageConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}
	if pipeline.ContainsUnknown(cfg.RepositoryURI) {
		return nil, pipeline.ErrAbsent
	}

	auth, err := p.encodedAuth(ctx)
	if err != nil {
		return nil, err
	}
	inspect, err := p.client.DistributionInspect(ctx, cfg.ref(), auth)
	if err != nil {
		if isImageAbsent(err) {
			return nil, pipeline.ErrAbsent
		}
		return nil, fmt.Errorf("failed to inspect remote image: %w", err)
	}
	return imageHandle(desc, cfg, inspect), nil
}

func (p *Provider) Create(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	if err := p.ensureClient(); err != nil {
		return nil, &pipeline.ToolingMissingError{Tool: "docker", Cause: err}
	}

	var cfg ImageConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}
	ref := cfg.ref()

	tar, err := archive.TarWithOptions(cfg.Context, &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context tar: %w", err)
	}
	defer tar.Close()

	resp, err := p.client.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{ref},
		Dockerfile: cfg.Dockerfile,
		Platform:   cfg.Platform,
		Remove:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build image: %w", err)
	}
	err = drainMessages(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("image build failed: %w", err)
	}

	if err := p.push(ctx, ref); err != nil {
		return nil, err
	}

	auth, err := p.encodedAuth(ctx)
	if err != nil {
		return nil, err
	}
	inspect, err := p.client.DistributionInspect(ctx, ref, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect pushed image: %w", err)
	}
	return imageHandle(desc, cfg, inspect), nil
}

// Ready is immediate: a pushed image has no propagation to wait for.
func (p *Provider) Ready(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) (*pipeline.Handle, bool, error) {
	return h, true, nil
}

// Validate rejects a remote image that cannot run on the function's
// platform. A stale arm64 build under the same tag would deploy cleanly
// and then crash on every invocation.
func (p *Provider) Validate(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) error {
	var cfg ImageConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return err
	}
	platforms, ok := h.Attr("platforms")
	if !ok || cfg.Platform == "" {
		return nil
	}
	if !strings.Contains(platforms, cfg.Platform) {
		return &pipeline.MismatchError{Step: desc.Name, Field: "image platform", Want: cfg.Platform, Got: platforms}
	}
	return nil
}

func (p *Provider) push(ctx context.Context, ref string) error {
	var lastErr error
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		auth, err := p.encodedAuth(ctx)
		if err != nil {
			return err
		}
		reader, err := p.client.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: auth})
		if err != nil {
			lastErr = err
			continue
		}
		err = drainMessages(reader)
		reader.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("image push failed after %d attempts: %w", pushAttempts, lastErr)
}

func (p *Provider) encodedAuth(ctx context.Context) (string, error) {
	if p.creds == nil {
		return "", nil
	}
	user, pass, server, err := p.creds.RegistryCredentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain registry credentials: %w", err)
	}
	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      user,
		Password:      pass,
		ServerAddress: server,
	})
}

// drainMessages consumes a daemon JSON stream, echoing progress and
// surfacing the in-stream error record. Build and push failures arrive
// this way, not as HTTP errors.
func drainMessages(body io.Reader) error {
	return jsonmessage.DisplayJSONMessagesStream(body, os.Stderr, 0, false, nil)
}

func isImageAbsent(err error) bool {
	if client.IsErrNotFound(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "manifest unknown") ||
		strings.Contains(msg, "name unknown") ||
		strings.Contains(msg, "not found")
}

func imageHandle(desc *pipeline.Descriptor, cfg ImageConfig, inspect registry.DistributionInspect) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     inspect.Descriptor.Digest.String(),
		Status: pipeline.StatusActive,
	}
	h.SetAttr("uri", cfg.ref())
	h.SetAttr("digest", inspect.Descriptor.Digest.String())
	h.SetAttr("repository", cfg.RepositoryURI)
	h.SetAttr("tag", cfg.Tag)
	if len(inspect.Platforms) > 0 {
		h.SetAttr("platforms", joinPlatforms(inspect.Platforms))
	}
	return h
}

func joinPlatforms(platforms []ocispec.Platform) string {
	parts := make([]string, len(platforms))
	for i, pl := range platforms {
		parts[i] = pl.OS + "/" + pl.Architecture
	}
	return strings.Join(parts, " ")
}

// decodeProps maps loosely typed descriptor properties onto ImageConfig.
func decodeProps(props map[string]any, out any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return nil
}
