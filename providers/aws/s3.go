package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type BucketConfig struct {
	Bucket string      `json:"bucket"`
	Region string      `json:"region"`
	CORS   *CORSConfig `json:"cors"`
}

type CORSConfig struct {
	AllowedMethods []string `json:"allowed_methods"`
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedHeaders []string `json:"allowed_headers"`
}

type BucketPolicyConfig struct {
	Bucket          string `json:"bucket"`
	BucketARN       string `json:"bucket_arn"`
	DistributionID  string `json:"distribution_id"`
	DistributionARN string `json:"distribution_arn"`
}

func (p *Provider) findBucket(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg BucketConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		switch errorCode(err) {
		case "NotFound", "NoSuchBucket":
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("head bucket", err)
	}
	return p.bucketHandle(desc, cfg.Bucket), nil
}

func (p *Provider) createBucket(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg BucketConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	in := &s3.CreateBucketInput{Bucket: &cfg.Bucket}
	if cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := p.s3Client.CreateBucket(ctx, in); err != nil {
		// Owning the bucket already means a previous run got this far.
		if errorCode(err) != "BucketAlreadyOwnedByYou" {
			return nil, classify("create bucket", err)
		}
	}

	if cfg.CORS != nil {
		rule := s3types.CORSRule{
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			MaxAgeSeconds:  func(i int32) *int32 { return &i }(3600),
		}
		_, err := p.s3Client.PutBucketCors(ctx, &s3.PutBucketCorsInput{
			Bucket: &cfg.Bucket,
			CORSConfiguration: &s3types.CORSConfiguration{
				CORSRules: []s3types.CORSRule{rule},
			},
		})
		if err != nil {
			return nil, classify("put bucket cors", err)
		}
	}
	return p.bucketHandle(desc, cfg.Bucket), nil
}

func (p *Provider) bucketHandle(desc *pipeline.Descriptor, bucket string) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     bucket,
		Status: pipeline.StatusActive,
	}
	h.SetAttr("name", bucket)
	h.SetAttr("arn", fmt.Sprintf("arn:aws:s3:::%s", bucket))
	h.SetAttr("regional_domain", fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, p.region))
	return h
}

func (p *Provider) findBucketPolicy(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg BucketPolicyConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}
	if pipeline.ContainsUnknown(cfg.Bucket) {
		return nil, pipeline.ErrAbsent
	}

	out, err := p.s3Client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: &cfg.Bucket})
	if err != nil {
		switch errorCode(err) {
		case "NoSuchBucketPolicy", "NoSuchBucket", "NotFound":
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("get bucket policy", err)
	}

	h := p.bucketPolicyHandle(desc, cfg.Bucket)
	if out.Policy != nil {
		h.SetAttr("policy", *out.Policy)
	}
	return h, nil
}

func (p *Provider) createBucketPolicy(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg BucketPolicyConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	doc, err := renderUploadsPolicy(cfg.BucketARN, cfg.DistributionARN)
	if err != nil {
		return nil, err
	}
	_, err = p.s3Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: &cfg.Bucket,
		Policy: &doc,
	})
	if err != nil {
		return nil, classify("put bucket policy", err)
	}

	h := p.bucketPolicyHandle(desc, cfg.Bucket)
	h.SetAttr("policy", doc)
	return h, nil
}

func (p *Provider) bucketPolicyHandle(desc *pipeline.Descriptor, bucket string) *pipeline.Handle {
	return &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     bucket + "/policy",
		Status: pipeline.StatusActive,
	}
}

// validateBucketPolicy rejects a reused policy that grants read access to
// some other distribution. Serving uploads through the wrong CDN is a
// misconfiguration the probe alone would hide.
func (p *Provider) validateBucketPolicy(desc *pipeline.Descriptor, h *pipeline.Handle) error {
	var cfg BucketPolicyConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return err
	}
	if pipeline.ContainsUnknown(cfg.DistributionARN) {
		return nil
	}

	doc, ok := h.Attr("policy")
	if !ok {
		return &pipeline.MismatchError{Step: desc.Name, Field: "policy", Want: cfg.DistributionARN, Got: "(empty)"}
	}
	if !strings.Contains(doc, cfg.DistributionARN) {
		return &pipeline.MismatchError{Step: desc.Name, Field: "policy source ARN", Want: cfg.DistributionARN, Got: "(another distribution)"}
	}
	return nil
}

// putUploadNotification subscribes the function to object-created events
// under the upload prefix. Called by the function step after the invoke
// permission for S3 exists, which S3 checks at configuration time.
func (p *Provider) putUploadNotification(ctx context.Context, bucket, prefix, functionARN string) error {
	rule := s3types.FilterRule{
		Name:  s3types.FilterRuleNamePrefix,
		Value: &prefix,
	}
	lambdaCfg := s3types.LambdaFunctionConfiguration{
		LambdaFunctionArn: &functionARN,
		Events:            []s3types.Event{s3types.EventS3ObjectCreated},
		Filter: &s3types.NotificationConfigurationFilter{
			Key: &s3types.S3KeyFilter{FilterRules: []s3types.FilterRule{rule}},
		},
	}
	_, err := p.s3Client.PutBucketNotificationConfiguration(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket: &bucket,
		NotificationConfiguration: &s3types.NotificationConfiguration{
			LambdaFunctionConfigurations: []s3types.LambdaFunctionConfiguration{lambdaCfg},
		},
	})
	if err != nil {
		return classify("put bucket notification", err)
	}
	return nil
}
