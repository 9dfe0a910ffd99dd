package aws

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type RoleConfig struct {
	Role      string `json:"role"`
	Bucket    string `json:"bucket"`
	BucketARN string `json:"bucket_arn"`
	Table     string `json:"table"`
	TableARN  string `json:"table_arn"`
}

func (p *Provider) findRole(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RoleConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	out, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: &cfg.Role})
	if err != nil {
		switch errorCode(err) {
		case "NoSuchEntity", "NoSuchEntityException":
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("get role", err)
	}

	h := roleHandle(desc, *out.Role.RoleName, *out.Role.Arn)
	if out.Role.AssumeRolePolicyDocument != nil {
		// GetRole returns the trust policy URL-encoded.
		if doc, err := url.QueryUnescape(*out.Role.AssumeRolePolicyDocument); err == nil {
			h.SetAttr("trust", doc)
		}
	}
	return h, nil
}

func (p *Provider) createRole(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RoleConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	trust, err := renderAssumeRolePolicy()
	if err != nil {
		return nil, err
	}

	var name, arn string
	resp, err := p.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 &cfg.Role,
		AssumeRolePolicyDocument: &trust,
	})
	switch {
	case err == nil:
		name, arn = *resp.Role.RoleName, *resp.Role.Arn
	case errorCode(err) == "EntityAlreadyExists" || errorCode(err) == "EntityAlreadyExistsException":
		out, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: &cfg.Role})
		if err != nil {
			return nil, classify("get role", err)
		}
		name, arn = *out.Role.RoleName, *out.Role.Arn
	default:
		return nil, classify("create role", err)
	}

	access, err := renderRoleAccessPolicy(cfg.BucketARN, cfg.TableARN)
	if err != nil {
		return nil, err
	}
	policyName := cfg.Role + "-access"
	_, err = p.iamClient.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       &cfg.Role,
		PolicyName:     &policyName,
		PolicyDocument: &access,
	})
	if err != nil {
		return nil, classify("put role policy", err)
	}

	h := roleHandle(desc, name, arn)
	h.SetAttr("trust", trust)
	return h, nil
}

// validateRole refuses a role some other service principal assumes; the
// function could not start with it.
func (p *Provider) validateRole(desc *pipeline.Descriptor, h *pipeline.Handle) error {
	trust, ok := h.Attr("trust")
	if !ok {
		return nil
	}
	if !strings.Contains(trust, "lambda.amazonaws.com") {
		return &pipeline.MismatchError{Step: desc.Name, Field: "trust policy", Want: "lambda.amazonaws.com", Got: "(another principal)"}
	}
	return nil
}

func roleHandle(desc *pipeline.Descriptor, name, arn string) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     name,
		Status: pipeline.StatusActive,
	}
	h.SetAttr("name", name)
	h.SetAttr("arn", arn)
	return h
}
