// Package aws provisions the stack's cloud resources through the AWS SDK
// service clients. Every kind follows the same contract: a read-only Find,
// a Create invoked only after the probe confirmed absence, a non-blocking
// Ready, and a Validate for the reuse path.
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type Provider struct {
	region  string
	profile string

	accountID string

	s3Client         *s3.Client
	cloudfrontClient *cloudfront.Client
	apigatewayClient *apigateway.Client
	dynamodbClient   *dynamodb.Client
	ecrClient        *ecr.Client
	iamClient        *iam.Client
	lambdaClient     *lambda.Client
	sesv2Client      *sesv2.Client
	stsClient        *sts.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "aws" }

// Configure loads the SDK configuration for the run's region and resolves
// the account identity the ARN builders need.
func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	p.region = settings["region"]
	if p.region == "" {
		return &pipeline.ConfigurationError{Field: "region", Reason: "aws provider needs a region"}
	}
	p.profile = settings["profile"]

	if err := p.ensureClients(ctx); err != nil {
		return err
	}

	ident, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return classify("resolve caller identity", err)
	}
	p.accountID = *ident.Account
	return nil
}

func (p *Provider) ensureClients(ctx context.Context) error {
	if p.s3Client != nil {
		return nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(p.region)}
	if p.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(p.profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.s3Client = s3.NewFromConfig(cfg)
	p.cloudfrontClient = cloudfront.NewFromConfig(cfg)
	p.apigatewayClient = apigateway.NewFromConfig(cfg)
	p.dynamodbClient = dynamodb.NewFromConfig(cfg)
	p.ecrClient = ecr.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	p.lambdaClient = lambda.NewFromConfig(cfg)
	p.sesv2Client = sesv2.NewFromConfig(cfg)
	p.stsClient = sts.NewFromConfig(cfg)
	return nil
}

// Find dispatches the probe by kind. A handle whose identifier is a
// not-found sentinel is reported as absent, never returned.
func (p *Provider) Find(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	var (
		h   *pipeline.Handle
		err error
	)
	switch desc.Kind {
	case pipeline.KindObjectStore:
		h, err = p.findBucket(ctx, desc)
	case pipeline.KindObjectStorePolicy:
		h, err = p.findBucketPolicy(ctx, desc)
	case pipeline.KindCDNDistribution:
		h, err = p.findDistribution(ctx, desc)
	case pipeline.KindAPIGateway:
		h, err = p.findRestAPI(ctx, desc)
	case pipeline.KindAPIRoute:
		h, err = p.findRoute(ctx, desc)
	case pipeline.KindTable:
		h, err = p.findTable(ctx, desc)
	case pipeline.KindImageRegistry:
		h, err = p.findRepository(ctx, desc)
	case pipeline.KindRole:
		h, err = p.findRole(ctx, desc)
	case pipeline.KindEmailIdentity:
		h, err = p.findEmailIdentity(ctx, desc)
	case pipeline.KindFunction:
		h, err = p.findFunction(ctx, desc)
	default:
		return nil, fmt.Errorf("unknown resource kind: %s", desc.Kind)
	}
	if err != nil {
		return nil, err
	}
	if h == nil || pipeline.IsAbsentSentinel(h.ID) {
		return nil, pipeline.ErrAbsent
	}
	return h, nil
}

// Create dispatches provisioning by kind.
func (p *Provider) Create(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch desc.Kind {
	case pipeline.KindObjectStore:
		return p.createBucket(ctx, desc)
	case pipeline.KindObjectStorePolicy:
		return p.createBucketPolicy(ctx, desc)
	case pipeline.KindCDNDistribution:
		return p.createDistribution(ctx, desc)
	case pipeline.KindAPIGateway:
		return p.createRestAPI(ctx, desc)
	case pipeline.KindAPIRoute:
		return p.createRoute(ctx, desc)
	case pipeline.KindTable:
		return p.createTable(ctx, desc)
	case pipeline.KindImageRegistry:
		return p.createRepository(ctx, desc)
	case pipeline.KindRole:
		return p.createRole(ctx, desc)
	case pipeline.KindEmailIdentity:
		return p.createEmailIdentity(ctx, desc)
	case pipeline.KindFunction:
		return p.createFunction(ctx, desc)
	default:
		return nil, fmt.Errorf("unknown resource kind: %s", desc.Kind)
	}
}

// Ready reports settlement for the asynchronously provisioned kinds.
// Everything else settles inside Create.
func (p *Provider) Ready(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) (*pipeline.Handle, bool, error) {
	if err := p.ensureClients(ctx); err != nil {
		return h, false, err
	}

	switch desc.Kind {
	case pipeline.KindCDNDistribution:
		return p.readyDistribution(ctx, h)
	case pipeline.KindTable:
		return p.readyTable(ctx, h)
	case pipeline.KindEmailIdentity:
		return p.readyEmailIdentity(ctx, h)
	default:
		return h, true, nil
	}
}

// Validate checks a found resource against the descriptor where a stale
// or divergent resource would break downstream steps.
func (p *Provider) Validate(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) error {
	switch desc.Kind {
	case pipeline.KindObjectStorePolicy:
		return p.validateBucketPolicy(desc, h)
	case pipeline.KindCDNDistribution:
		return p.validateDistribution(desc, h)
	case pipeline.KindTable:
		return p.validateTable(desc, h)
	case pipeline.KindRole:
		return p.validateRole(desc, h)
	default:
		return nil
	}
}

// decodeProps maps loosely typed descriptor properties onto the typed
// per-kind config structs.
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
