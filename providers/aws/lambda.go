package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// Image functions usually activate within a minute; the bound covers cold
// regions and large images.
const functionActivateTimeout = 5 * time.Minute

type FunctionConfig struct {
	Function        string            `json:"function"`
	ImageURI        string            `json:"image_uri"`
	RoleARN         string            `json:"role_arn"`
	TimeoutSeconds  int32             `json:"timeout_seconds"`
	MemoryMB        int32             `json:"memory_mb"`
	Environment     map[string]string `json:"environment"`
	RestApiID       string            `json:"rest_api_id"`
	APIExecuteARN   string            `json:"api_execute_arn"`
	ProxyResourceID string            `json:"proxy_resource_id"`
	Bucket          string            `json:"bucket"`
	BucketARN       string            `json:"bucket_arn"`
	UploadPrefix    string            `json:"upload_prefix"`
	Stage           string            `json:"stage"`
}

func (p *Provider) findFunction(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg FunctionConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	out, err := p.lambdaClient.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: &cfg.Function})
	if err != nil {
		if errorCode(err) == "ResourceNotFoundException" {
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("get function", err)
	}
	return p.functionHandle(desc, cfg, out.Configuration), nil
}

// createFunction provisions the function and then finishes the stack's
// event plumbing: the proxy integration, the invoke permissions, the
// bucket notification and the stage deployment. All of it needs the
// function Active, so activation is awaited in place.
func (p *Provider) createFunction(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg FunctionConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	_, err := p.lambdaClient.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: &cfg.Function,
		PackageType:  types.PackageTypeImage,
		Code:         &types.FunctionCode{ImageUri: &cfg.ImageURI},
		Role:         &cfg.RoleARN,
		Timeout:      &cfg.TimeoutSeconds,
		MemorySize:   &cfg.MemoryMB,
		Environment:  &types.Environment{Variables: cfg.Environment},
	})
	if err != nil {
		switch {
		case errorCode(err) == "ResourceConflictException":
			// A previous attempt created it; carry on to the wiring.
		case errorCode(err) == "InvalidParameterValueException" && strings.Contains(err.Error(), "cannot be assumed"):
			// Fresh IAM roles propagate with a delay.
			return nil, &pipeline.TransientProviderError{Op: "create function", Cause: err}
		default:
			return nil, classify("create function", err)
		}
	}

	fc, err := p.waitFunctionActive(ctx, cfg.Function)
	if err != nil {
		return nil, err
	}

	if err := p.wireFunction(ctx, cfg, *fc.FunctionArn); err != nil {
		return nil, err
	}
	return p.functionHandle(desc, cfg, fc), nil
}

func (p *Provider) waitFunctionActive(ctx context.Context, name string) (*types.FunctionConfiguration, error) {
	deadline := time.Now().Add(functionActivateTimeout)
	for {
		out, err := p.lambdaClient.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: &name})
		if err != nil {
			return nil, classify("get function", err)
		}
		fc := out.Configuration
		switch fc.State {
		case types.StateActive:
			return fc, nil
		case types.StateFailed:
			reason := ""
			if fc.StateReason != nil {
				reason = *fc.StateReason
			}
			return nil, fmt.Errorf("function %s entered Failed state: %s", name, reason)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("function %s not active after %s", name, functionActivateTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("activation wait cancelled: %w", ctx.Err())
		case <-time.After(3 * time.Second):
		}
	}
}

// wireFunction connects the function to its triggers. Every call is safe
// to replay, so a run interrupted mid-wiring recovers on the next attempt.
func (p *Provider) wireFunction(ctx context.Context, cfg FunctionConfig, functionARN string) error {
	if err := p.putProxyIntegration(ctx, cfg.RestApiID, cfg.ProxyResourceID, "ANY", functionARN); err != nil {
		return err
	}

	if err := p.addInvokePermission(ctx, cfg.Function, "crimectl-apigateway", "apigateway.amazonaws.com", cfg.APIExecuteARN+"/*", ""); err != nil {
		return err
	}
	if err := p.addInvokePermission(ctx, cfg.Function, "crimectl-s3", "s3.amazonaws.com", cfg.BucketARN, p.accountID); err != nil {
		return err
	}

	if err := p.putUploadNotification(ctx, cfg.Bucket, cfg.UploadPrefix, functionARN); err != nil {
		return err
	}
	return p.deployStage(ctx, cfg.RestApiID, cfg.Stage)
}

func (p *Provider) addInvokePermission(ctx context.Context, function, statementID, principal, sourceARN, sourceAccount string) error {
	action := "lambda:InvokeFunction"
	input := &lambda.AddPermissionInput{
		FunctionName: &function,
		StatementId:  &statementID,
		Action:       &action,
		Principal:    &principal,
		SourceArn:    &sourceARN,
	}
	if sourceAccount != "" {
		input.SourceAccount = &sourceAccount
	}
	_, err := p.lambdaClient.AddPermission(ctx, input)
	if err != nil && errorCode(err) != "ResourceConflictException" {
		return classify("add permission", err)
	}
	return nil
}

func (p *Provider) functionHandle(desc *pipeline.Descriptor, cfg FunctionConfig, fc *types.FunctionConfiguration) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     *fc.FunctionName,
		Status: pipeline.StatusPending,
	}
	switch fc.State {
	case types.StateActive:
		h.Status = pipeline.StatusActive
	case types.StateFailed:
		h.Status = pipeline.StatusFailed
	}
	h.SetAttr("name", *fc.FunctionName)
	h.SetAttr("arn", *fc.FunctionArn)
	if !pipeline.ContainsUnknown(cfg.RestApiID) {
		h.SetAttr("invoke_url", fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/%s", cfg.RestApiID, p.region, cfg.Stage))
	}
	return h
}
