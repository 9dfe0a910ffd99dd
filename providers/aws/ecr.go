package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type RepositoryConfig struct {
	Repository string `json:"repository"`
}

func (p *Provider) findRepository(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RepositoryConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	out, err := p.ecrClient.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{cfg.Repository},
	})
	if err != nil {
		if errorCode(err) == "RepositoryNotFoundException" {
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("describe repositories", err)
	}
	if len(out.Repositories) == 0 {
		return nil, pipeline.ErrAbsent
	}
	return repositoryHandle(desc, out.Repositories[0]), nil
}

func (p *Provider) createRepository(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RepositoryConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	resp, err := p.ecrClient.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: &cfg.Repository,
	})
	if err != nil {
		if errorCode(err) == "RepositoryAlreadyExistsException" {
			return p.findRepository(ctx, desc)
		}
		return nil, classify("create repository", err)
	}
	return repositoryHandle(desc, *resp.Repository), nil
}

func repositoryHandle(desc *pipeline.Descriptor, repo types.Repository) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     *repo.RepositoryName,
		Status: pipeline.StatusActive,
	}
	h.SetAttr("name", *repo.RepositoryName)
	h.SetAttr("arn", *repo.RepositoryArn)
	h.SetAttr("uri", *repo.RepositoryUri)
	if repo.RegistryId != nil {
		h.SetAttr("registry_id", *repo.RegistryId)
	}
	return h
}

// RegistryCredentials exchanges the caller's IAM identity for short-lived
// registry credentials so image pushes can authenticate against ECR.
func (p *Provider) RegistryCredentials(ctx context.Context) (username, password, server string, err error) {
	if err := p.ensureClients(ctx); err != nil {
		return "", "", "", err
	}

	out, err := p.ecrClient.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", "", classify("get authorization token", err)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return "", "", "", fmt.Errorf("registry returned no authorization data")
	}

	raw, err := base64.StdEncoding.DecodeString(*out.AuthorizationData[0].AuthorizationToken)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to decode authorization token: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("authorization token has no user:password form")
	}

	server = ""
	if out.AuthorizationData[0].ProxyEndpoint != nil {
		server = strings.TrimPrefix(*out.AuthorizationData[0].ProxyEndpoint, "https://")
	}
	return parts[0], parts[1], server, nil
}
