package engine

import (
	"fmt"
	"time"

	"github.com/chicago-crimes/crimectl/internal/config"
	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// Per-kind readiness bounds. CloudFront propagation dominates; email
// verification needs a human to click a link, so that step times out fast
// and continues with a warning.
const (
	cdnReadyTimeout      = 20 * time.Minute
	tableReadyTimeout    = 5 * time.Minute
	functionReadyTimeout = 5 * time.Minute
	emailReadyTimeout    = 30 * time.Second
)

// DefaultSteps builds the full provisioning chain for the configured stack.
// The order is fixed; BuildGraph re-validates it against the declared and
// referenced dependencies.
func DefaultSteps(cfg *config.Config) []*pipeline.Step {
	cdnComment := fmt.Sprintf("%s uploads distribution", cfg.UploadBucket)

	return []*pipeline.Step{
		{
			Name: "uploads-bucket",
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindObjectStore,
				Name:      "uploads-bucket",
				Provider:  "aws",
				LookupKey: cfg.UploadBucket,
				Properties: map[string]any{
					"bucket": cfg.UploadBucket,
					"region": cfg.Region,
					"cors": map[string]any{
						"allowed_methods": []any{"PUT", "GET", "HEAD"},
						"allowed_origins": []any{"*"},
						"allowed_headers": []any{"*"},
					},
				},
			},
		},
		{
			Name:         "site-cdn",
			DependsOn:    []string{"uploads-bucket"},
			ReadyTimeout: cdnReadyTimeout,
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindCDNDistribution,
				Name:      "site-cdn",
				Provider:  "aws",
				LookupKey: cdnComment,
				Properties: map[string]any{
					"comment":       cdnComment,
					"origin_bucket": pipeline.Ref("uploads-bucket", "name"),
					"origin_domain": pipeline.Ref("uploads-bucket", "regional_domain"),
				},
			},
		},
		{
			Name:      "uploads-policy",
			DependsOn: []string{"uploads-bucket", "site-cdn"},
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindObjectStorePolicy,
				Name:      "uploads-policy",
				Provider:  "aws",
				LookupKey: cfg.UploadBucket,
				Properties: map[string]any{
					"bucket":           pipeline.Ref("uploads-bucket", "name"),
					"bucket_arn":       pipeline.Ref("uploads-bucket", "arn"),
					"distribution_id":  pipeline.Ref("site-cdn", "id"),
					"distribution_arn": pipeline.Ref("site-cdn", "arn"),
				},
			},
		},
		{
			Name: "predict-api",
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindAPIGateway,
				Name:      "predict-api",
				Provider:  "aws",
				LookupKey: cfg.APIName,
				Properties: map[string]any{
					"name":        cfg.APIName,
					"description": "Crime prediction upload API",
				},
			},
		},
		{
			Name:      "predict-route",
			DependsOn: []string{"predict-api"},
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindAPIRoute,
				Name:      "predict-route",
				Provider:  "aws",
				LookupKey: cfg.APIName + "/{proxy+}",
				Properties: map[string]any{
					"rest_api_id":      pipeline.Ref("predict-api", "id"),
					"root_resource_id": pipeline.Ref("predict-api", "root_resource_id"),
					"path_part":        "{proxy+}",
					"http_method":      "ANY",
				},
			},
		},
		{
			Name:         "results-table",
			ReadyTimeout: tableReadyTimeout,
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindTable,
				Name:      "results-table",
				Provider:  "aws",
				LookupKey: cfg.ResultsTable,
				Properties: map[string]any{
					"table":         cfg.ResultsTable,
					"hash_key":      cfg.TableHashKey,
					"hash_key_type": "S",
					"billing_mode":  "PAY_PER_REQUEST",
				},
			},
		},
		{
			Name: "image-repo",
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindImageRegistry,
				Name:      "image-repo",
				Provider:  "aws",
				LookupKey: cfg.Repository,
				Properties: map[string]any{
					"repository": cfg.Repository,
				},
			},
		},
		{
			Name:      "predictor-image",
			DependsOn: []string{"image-repo"},
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindContainerImage,
				Name:      "predictor-image",
				Provider:  "docker",
				LookupKey: cfg.Repository + ":" + cfg.ImageTag,
				Properties: map[string]any{
					"repository_uri": pipeline.Ref("image-repo", "uri"),
					"tag":            cfg.ImageTag,
					"context":        cfg.BuildContext,
					"dockerfile":     cfg.Dockerfile,
					"platform":       cfg.Platform,
				},
			},
		},
		{
			Name:      "exec-role",
			DependsOn: []string{"uploads-bucket", "results-table"},
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindRole,
				Name:      "exec-role",
				Provider:  "aws",
				LookupKey: cfg.RoleName,
				Properties: map[string]any{
					"role":       cfg.RoleName,
					"bucket":     pipeline.Ref("uploads-bucket", "name"),
					"bucket_arn": pipeline.Ref("uploads-bucket", "arn"),
					"table":      pipeline.Ref("results-table", "name"),
					"table_arn":  pipeline.Ref("results-table", "arn"),
				},
			},
		},
		{
			Name:         "admin-email",
			ReadyTimeout: emailReadyTimeout,
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindEmailIdentity,
				Name:      "admin-email",
				Provider:  "aws",
				LookupKey: cfg.AdminEmail,
				Properties: map[string]any{
					"address": cfg.AdminEmail,
				},
			},
		},
		{
			Name: "predictor-function",
			DependsOn: []string{
				"predictor-image", "exec-role", "uploads-bucket",
				"results-table", "predict-api", "predict-route",
			},
			ReadyTimeout: functionReadyTimeout,
			Descriptor: &pipeline.Descriptor{
				Kind:      pipeline.KindFunction,
				Name:      "predictor-function",
				Provider:  "aws",
				LookupKey: cfg.FunctionName,
				Properties: map[string]any{
					"function":        cfg.FunctionName,
					"image_uri":       pipeline.Ref("predictor-image", "uri"),
					"role_arn":        pipeline.Ref("exec-role", "arn"),
					"timeout_seconds": 300,
					"memory_mb":       1024,
					"environment": map[string]any{
						"UPLOAD_BUCKET": pipeline.Ref("uploads-bucket", "name"),
						"RESULTS_TABLE": pipeline.Ref("results-table", "name"),
						"ADMIN_EMAIL":   cfg.AdminEmail,
					},
					"rest_api_id":       pipeline.Ref("predict-api", "id"),
					"api_execute_arn":   pipeline.Ref("predict-api", "execute_arn"),
					"proxy_resource_id": pipeline.Ref("predict-route", "id"),
					"bucket":            pipeline.Ref("uploads-bucket", "name"),
					"bucket_arn":        pipeline.Ref("uploads-bucket", "arn"),
					"upload_prefix":     "uploads/",
					"stage":             cfg.StageName,
				},
			},
		},
	}
}

// StepNames returns the chain's step names in execution order.
func StepNames(cfg *config.Config) []string {
	steps := DefaultSteps(cfg)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
