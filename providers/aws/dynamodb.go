package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type TableConfig struct {
	Table       string `json:"table"`
	HashKey     string `json:"hash_key"`
	HashKeyType string `json:"hash_key_type"`
	BillingMode string `json:"billing_mode"`
}

func (p *Provider) findTable(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg TableConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	out, err := p.dynamodbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &cfg.Table})
	if err != nil {
		if errorCode(err) == "ResourceNotFoundException" {
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("describe table", err)
	}
	return tableHandle(desc, out.Table), nil
}

func (p *Provider) createTable(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg TableConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	resp, err := p.dynamodbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &cfg.Table,
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: &cfg.HashKey,
			AttributeType: types.ScalarAttributeType(cfg.HashKeyType),
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: &cfg.HashKey,
			KeyType:       types.KeyTypeHash,
		}},
		BillingMode: types.BillingMode(cfg.BillingMode),
	})
	if err != nil {
		// A table surfacing between probe and create is the probe's answer.
		if errorCode(err) == "ResourceInUseException" {
			return p.findTable(ctx, desc)
		}
		return nil, classify("create table", err)
	}
	return tableHandle(desc, resp.TableDescription), nil
}

func (p *Provider) readyTable(ctx context.Context, h *pipeline.Handle) (*pipeline.Handle, bool, error) {
	name, _ := h.Attr("name")
	out, err := p.dynamodbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &name})
	if err != nil {
		return h, false, classify("describe table", err)
	}
	if out.Table.TableStatus != types.TableStatusActive {
		return h, false, nil
	}
	h.Status = pipeline.StatusActive
	return h, true, nil
}

// validateTable rejects a table whose key schema differs from the one the
// function writes with. Reusing it would scatter results under the wrong
// partition key.
func (p *Provider) validateTable(desc *pipeline.Descriptor, h *pipeline.Handle) error {
	var cfg TableConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return err
	}

	if got, ok := h.Attr("hash_key"); ok && got != cfg.HashKey {
		return &pipeline.MismatchError{Step: desc.Name, Field: "hash key", Want: cfg.HashKey, Got: got}
	}
	if got, ok := h.Attr("hash_key_type"); ok && got != cfg.HashKeyType {
		return &pipeline.MismatchError{Step: desc.Name, Field: "hash key type", Want: cfg.HashKeyType, Got: got}
	}
	return nil
}

func tableHandle(desc *pipeline.Descriptor, table *types.TableDescription) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     *table.TableName,
		Status: pipeline.StatusPending,
	}
	if table.TableStatus == types.TableStatusActive {
		h.Status = pipeline.StatusActive
	}
	h.SetAttr("name", *table.TableName)
	h.SetAttr("arn", *table.TableArn)
	for _, k := range table.KeySchema {
		if k.KeyType == types.KeyTypeHash {
			h.SetAttr("hash_key", *k.AttributeName)
		}
	}
	for _, a := range table.AttributeDefinitions {
		if hashKey, ok := h.Attr("hash_key"); ok && *a.AttributeName == hashKey {
			h.SetAttr("hash_key_type", string(a.AttributeType))
		}
	}
	return h
}
