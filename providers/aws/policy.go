package aws

import (
	"encoding/json"
	"fmt"
)

const policyVersion = "2012-10-17"

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string                       `json:"Sid,omitempty"`
	Effect    string                       `json:"Effect"`
	Principal map[string]string            `json:"Principal,omitempty"`
	Action    any                          `json:"Action"`
	Resource  any                          `json:"Resource,omitempty"`
	Condition map[string]map[string]string `json:"Condition,omitempty"`
}

func (d policyDocument) render() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to render policy document: %w", err)
	}
	return string(data), nil
}

// renderUploadsPolicy grants the CloudFront service principal read access
// to the bucket, scoped to exactly one distribution through the source
// ARN condition.
func renderUploadsPolicy(bucketARN, distributionARN string) (string, error) {
	return policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Sid:       "AllowCloudFrontServicePrincipal",
			Effect:    "Allow",
			Principal: map[string]string{"Service": "cloudfront.amazonaws.com"},
			Action:    "s3:GetObject",
			Resource:  bucketARN + "/*",
			Condition: map[string]map[string]string{
				"StringEquals": {"AWS:SourceArn": distributionARN},
			},
		}},
	}.render()
}

// renderAssumeRolePolicy is the trust policy letting Lambda assume the
// execution role.
func renderAssumeRolePolicy() (string, error) {
	return policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string]string{"Service": "lambda.amazonaws.com"},
			Action:    "sts:AssumeRole",
		}},
	}.render()
}

// renderRoleAccessPolicy scopes the function's runtime permissions to the
// stack's own resources: the uploads bucket, the results table, outbound
// mail and its log group.
func renderRoleAccessPolicy(bucketARN, tableARN string) (string, error) {
	return policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{
			{
				Sid:      "UploadsBucketAccess",
				Effect:   "Allow",
				Action:   []string{"s3:GetObject", "s3:PutObject"},
				Resource: bucketARN + "/*",
			},
			{
				Sid:      "UploadsBucketList",
				Effect:   "Allow",
				Action:   "s3:ListBucket",
				Resource: bucketARN,
			},
			{
				Sid:      "ResultsTableAccess",
				Effect:   "Allow",
				Action:   []string{"dynamodb:PutItem", "dynamodb:GetItem", "dynamodb:UpdateItem", "dynamodb:Query"},
				Resource: tableARN,
			},
			{
				Sid:      "SendMail",
				Effect:   "Allow",
				Action:   []string{"ses:SendEmail", "ses:SendRawEmail"},
				Resource: "*",
			},
			{
				Sid:      "WriteLogs",
				Effect:   "Allow",
				Action:   []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
				Resource: "*",
			},
		},
	}.render()
}
