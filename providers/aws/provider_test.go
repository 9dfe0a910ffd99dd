package aws

import (
	"context"
	"testing"

	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

func strp(s string) *string { return &s }

func testDesc(kind pipeline.Kind, name string, props map[string]any) *pipeline.Descriptor {
	return &pipeline.Descriptor{
		Kind:       kind,
		Name:       name,
		Provider:   "aws",
		LookupKey:  name,
		Properties: props,
	}
}

func TestDecodeProps_FunctionConfig(t *testing.T) {
	props := map[string]any{
		"function":        "chicago-crimes-predictor",
		"image_uri":       "123456789012.dkr.ecr.af-south-1.amazonaws.com/chicago-crimes-predictor:latest",
		"role_arn":        "arn:aws:iam::123456789012:role/chicago-crimes-lambda-role",
		"timeout_seconds": 300,
		"memory_mb":       1024,
		"environment": map[string]any{
			"UPLOAD_BUCKET": "chicago-crimes-uploads",
			"RESULTS_TABLE": "chicago-crimes-results",
		},
		"upload_prefix": "uploads/",
		"stage":         "prod",
	}

	var cfg FunctionConfig
	require.NoError(t, decodeProps(props, &cfg))
	assert.Equal(t, "chicago-crimes-predictor", cfg.Function)
	assert.Equal(t, int32(300), cfg.TimeoutSeconds)
	assert.Equal(t, int32(1024), cfg.MemoryMB)
	assert.Equal(t, "chicago-crimes-uploads", cfg.Environment["UPLOAD_BUCKET"])
	assert.Equal(t, "uploads/", cfg.UploadPrefix)
}

func TestDecodeProps_RejectsWrongShape(t *testing.T) {
	var cfg FunctionConfig
	err := decodeProps(map[string]any{"timeout_seconds": "soon"}, &cfg)
	require.Error(t, err)
}

func TestBucketHandle(t *testing.T) {
	p := &Provider{region: "af-south-1"}
	desc := testDesc(pipeline.KindObjectStore, "uploads-bucket", nil)

	h := p.bucketHandle(desc, "chicago-crimes-uploads")
	assert.Equal(t, "chicago-crimes-uploads", h.ID)
	assert.Equal(t, pipeline.StatusActive, h.Status)

	name, _ := h.Attr("name")
	assert.Equal(t, "chicago-crimes-uploads", name)
	arn, _ := h.Attr("arn")
	assert.Equal(t, "arn:aws:s3:::chicago-crimes-uploads", arn)
	domain, _ := h.Attr("regional_domain")
	assert.Equal(t, "chicago-crimes-uploads.s3.af-south-1.amazonaws.com", domain)
}

func TestRestApiHandle(t *testing.T) {
	p := &Provider{region: "af-south-1", accountID: "123456789012"}
	desc := testDesc(pipeline.KindAPIGateway, "predict-api", nil)

	h := p.restApiHandle(desc, "abc123", "chicago-crimes-api", "root1")
	assert.Equal(t, "abc123", h.ID)

	rootID, _ := h.Attr("root_resource_id")
	assert.Equal(t, "root1", rootID)
	executeARN, _ := h.Attr("execute_arn")
	assert.Equal(t, "arn:aws:execute-api:af-south-1:123456789012:abc123", executeARN)
}

func TestFunctionHandle(t *testing.T) {
	p := &Provider{region: "af-south-1"}
	desc := testDesc(pipeline.KindFunction, "predictor-function", nil)
	cfg := FunctionConfig{RestApiID: "abc123", Stage: "prod"}

	fc := &lambdatypes.FunctionConfiguration{
		FunctionName: strp("chicago-crimes-predictor"),
		FunctionArn:  strp("arn:aws:lambda:af-south-1:123456789012:function:chicago-crimes-predictor"),
		State:        lambdatypes.StatePending,
	}
	h := p.functionHandle(desc, cfg, fc)
	assert.Equal(t, pipeline.StatusPending, h.Status)

	fc.State = lambdatypes.StateActive
	h = p.functionHandle(desc, cfg, fc)
	assert.Equal(t, pipeline.StatusActive, h.Status)
	url, ok := h.Attr("invoke_url")
	require.True(t, ok)
	assert.Equal(t, "https://abc123.execute-api.af-south-1.amazonaws.com/prod", url)
}

func TestFunctionHandle_NoInvokeURLBeforeAPIExists(t *testing.T) {
	p := &Provider{region: "af-south-1"}
	desc := testDesc(pipeline.KindFunction, "predictor-function", nil)
	cfg := FunctionConfig{RestApiID: pipeline.UnknownValue, Stage: "prod"}

	fc := &lambdatypes.FunctionConfiguration{
		FunctionName: strp("chicago-crimes-predictor"),
		FunctionArn:  strp("arn:aws:lambda:af-south-1:123456789012:function:chicago-crimes-predictor"),
		State:        lambdatypes.StateActive,
	}
	h := p.functionHandle(desc, cfg, fc)
	_, ok := h.Attr("invoke_url")
	assert.False(t, ok)
}

func TestEmailIdentityHandle(t *testing.T) {
	desc := testDesc(pipeline.KindEmailIdentity, "admin-email", nil)

	h := emailIdentityHandle(desc, "midegageorge2@gmail.com", false)
	assert.Equal(t, pipeline.StatusPending, h.Status)
	verified, _ := h.Attr("verified")
	assert.Equal(t, "false", verified)

	h = emailIdentityHandle(desc, "midegageorge2@gmail.com", true)
	assert.Equal(t, pipeline.StatusActive, h.Status)
}

func TestTableHandle(t *testing.T) {
	desc := testDesc(pipeline.KindTable, "results-table", nil)
	table := &ddbtypes.TableDescription{
		TableName:   strp("chicago-crimes-results"),
		TableArn:    strp("arn:aws:dynamodb:af-south-1:123456789012:table/chicago-crimes-results"),
		TableStatus: ddbtypes.TableStatusCreating,
		KeySchema: []ddbtypes.KeySchemaElement{{
			AttributeName: strp("file_key"),
			KeyType:       ddbtypes.KeyTypeHash,
		}},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{{
			AttributeName: strp("file_key"),
			AttributeType: ddbtypes.ScalarAttributeTypeS,
		}},
	}

	h := tableHandle(desc, table)
	assert.Equal(t, pipeline.StatusPending, h.Status)
	hashKey, _ := h.Attr("hash_key")
	assert.Equal(t, "file_key", hashKey)
	hashKeyType, _ := h.Attr("hash_key_type")
	assert.Equal(t, "S", hashKeyType)
}

func TestValidateTable(t *testing.T) {
	p := &Provider{}
	desc := testDesc(pipeline.KindTable, "results-table", map[string]any{
		"table":         "chicago-crimes-results",
		"hash_key":      "file_key",
		"hash_key_type": "S",
	})

	h := &pipeline.Handle{Kind: pipeline.KindTable, Name: "results-table", ID: "chicago-crimes-results"}
	h.SetAttr("hash_key", "file_key")
	h.SetAttr("hash_key_type", "S")
	require.NoError(t, p.validateTable(desc, h))

	h.SetAttr("hash_key", "image_id")
	err := p.validateTable(desc, h)
	var mismatch *pipeline.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "hash key", mismatch.Field)
	assert.Equal(t, "file_key", mismatch.Want)
	assert.Equal(t, "image_id", mismatch.Got)
}

func TestValidateBucketPolicy(t *testing.T) {
	p := &Provider{}
	distARN := "arn:aws:cloudfront::123456789012:distribution/E2ABC"
	desc := testDesc(pipeline.KindObjectStorePolicy, "uploads-policy", map[string]any{
		"bucket":           "chicago-crimes-uploads",
		"distribution_arn": distARN,
	})

	doc, err := renderUploadsPolicy("arn:aws:s3:::chicago-crimes-uploads", distARN)
	require.NoError(t, err)

	h := &pipeline.Handle{Kind: pipeline.KindObjectStorePolicy, Name: "uploads-policy", ID: "chicago-crimes-uploads/policy"}
	h.SetAttr("policy", doc)
	require.NoError(t, p.validateBucketPolicy(desc, h))

	other, err := renderUploadsPolicy("arn:aws:s3:::chicago-crimes-uploads", "arn:aws:cloudfront::123456789012:distribution/EOTHER")
	require.NoError(t, err)
	h.SetAttr("policy", other)
	var mismatch *pipeline.MismatchError
	require.ErrorAs(t, p.validateBucketPolicy(desc, h), &mismatch)
}

func TestValidateBucketPolicy_SkipsUnknownDistribution(t *testing.T) {
	p := &Provider{}
	desc := testDesc(pipeline.KindObjectStorePolicy, "uploads-policy", map[string]any{
		"bucket":           "chicago-crimes-uploads",
		"distribution_arn": pipeline.UnknownValue,
	})

	h := &pipeline.Handle{Kind: pipeline.KindObjectStorePolicy, Name: "uploads-policy", ID: "chicago-crimes-uploads/policy"}
	assert.NoError(t, p.validateBucketPolicy(desc, h))
}

func TestValidateDistribution(t *testing.T) {
	p := &Provider{}
	desc := testDesc(pipeline.KindCDNDistribution, "site-cdn", map[string]any{
		"comment":       "chicago-crimes-uploads uploads distribution",
		"origin_domain": "chicago-crimes-uploads.s3.af-south-1.amazonaws.com",
	})

	item := cftypes.DistributionSummary{
		Id:         strp("E2ABC"),
		ARN:        strp("arn:aws:cloudfront::123456789012:distribution/E2ABC"),
		Status:     strp("Deployed"),
		DomainName: strp("dabc.cloudfront.net"),
		Origins: &cftypes.Origins{
			Items: []cftypes.Origin{{DomainName: strp("chicago-crimes-uploads.s3.af-south-1.amazonaws.com")}},
		},
	}
	h := distributionSummaryHandle(desc, item)
	assert.Equal(t, pipeline.StatusActive, h.Status)
	require.NoError(t, p.validateDistribution(desc, h))

	h.SetAttr("origin_domain", "other-bucket.s3.af-south-1.amazonaws.com")
	var mismatch *pipeline.MismatchError
	require.ErrorAs(t, p.validateDistribution(desc, h), &mismatch)
	assert.Equal(t, "origin domain", mismatch.Field)
}

func TestValidateRole(t *testing.T) {
	p := &Provider{}
	desc := testDesc(pipeline.KindRole, "exec-role", map[string]any{"role": "chicago-crimes-lambda-role"})

	trust, err := renderAssumeRolePolicy()
	require.NoError(t, err)

	h := roleHandle(desc, "chicago-crimes-lambda-role", "arn:aws:iam::123456789012:role/chicago-crimes-lambda-role")
	h.SetAttr("trust", trust)
	require.NoError(t, p.validateRole(desc, h))

	h.SetAttr("trust", `{"Statement":[{"Principal":{"Service":"ec2.amazonaws.com"}}]}`)
	var mismatch *pipeline.MismatchError
	require.ErrorAs(t, p.validateRole(desc, h), &mismatch)
}

// Kinds without a validator accept whatever the probe found.
func TestValidateDispatchDefault(t *testing.T) {
	p := &Provider{}
	desc := testDesc(pipeline.KindObjectStore, "uploads-bucket", nil)
	h := &pipeline.Handle{Kind: pipeline.KindObjectStore, Name: "uploads-bucket", ID: "chicago-crimes-uploads"}
	assert.NoError(t, p.Validate(context.Background(), desc, h))
}
