package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type RestApiConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RouteConfig struct {
	RestApiID      string `json:"rest_api_id"`
	RootResourceID string `json:"root_resource_id"`
	PathPart       string `json:"path_part"`
	HttpMethod     string `json:"http_method"`
}

func (p *Provider) findRestAPI(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RestApiConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	var matches []types.RestApi
	var position *string
	for {
		out, err := p.apigatewayClient.GetRestApis(ctx, &apigateway.GetRestApisInput{Position: position})
		if err != nil {
			return nil, classify("list rest apis", err)
		}
		for _, item := range out.Items {
			if item.Name != nil && *item.Name == cfg.Name {
				matches = append(matches, item)
			}
		}
		if out.Position == nil {
			break
		}
		position = out.Position
	}

	switch len(matches) {
	case 0:
		return nil, pipeline.ErrAbsent
	case 1:
		rootID, err := p.rootResourceID(ctx, *matches[0].Id)
		if err != nil {
			return nil, err
		}
		return p.restApiHandle(desc, *matches[0].Id, cfg.Name, rootID), nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = *m.Id
	}
	return nil, &pipeline.LookupAmbiguousError{
		Kind:      desc.Kind,
		LookupKey: desc.LookupKey,
		Raw:       strings.Join(ids, ", "),
	}
}

func (p *Provider) createRestAPI(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RestApiConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	resp, err := p.apigatewayClient.CreateRestApi(ctx, &apigateway.CreateRestApiInput{
		Name:        &cfg.Name,
		Description: &cfg.Description,
		EndpointConfiguration: &types.EndpointConfiguration{
			Types: []types.EndpointType{types.EndpointTypeRegional},
		},
	})
	if err != nil {
		return nil, classify("create rest api", err)
	}

	rootID, err := p.rootResourceID(ctx, *resp.Id)
	if err != nil {
		return nil, err
	}
	return p.restApiHandle(desc, *resp.Id, cfg.Name, rootID), nil
}

func (p *Provider) restApiHandle(desc *pipeline.Descriptor, apiID, name, rootID string) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     apiID,
		Status: pipeline.StatusActive,
	}
	h.SetAttr("name", name)
	h.SetAttr("root_resource_id", rootID)
	h.SetAttr("execute_arn", fmt.Sprintf("arn:aws:execute-api:%s:%s:%s", p.region, p.accountID, apiID))
	return h
}

// rootResourceID returns the id of the "/" resource every REST API carries.
func (p *Provider) rootResourceID(ctx context.Context, apiID string) (string, error) {
	var position *string
	for {
		out, err := p.apigatewayClient.GetResources(ctx, &apigateway.GetResourcesInput{
			RestApiId: &apiID,
			Position:  position,
		})
		if err != nil {
			return "", classify("list api resources", err)
		}
		for _, item := range out.Items {
			if item.Path != nil && *item.Path == "/" {
				return *item.Id, nil
			}
		}
		if out.Position == nil {
			break
		}
		position = out.Position
	}
	return "", fmt.Errorf("rest api %s has no root resource", apiID)
}

// findRoute reports the route present only when both the resource and its
// method exist; a half-built route is recreated by createRoute, which
// tolerates the pieces that survived.
func (p *Provider) findRoute(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RouteConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}
	if pipeline.ContainsUnknown(cfg.RestApiID) {
		return nil, pipeline.ErrAbsent
	}

	resourceID, err := p.findResourceByPathPart(ctx, cfg.RestApiID, cfg.PathPart)
	if err != nil {
		return nil, err
	}
	if resourceID == "" {
		return nil, pipeline.ErrAbsent
	}

	_, err = p.apigatewayClient.GetMethod(ctx, &apigateway.GetMethodInput{
		RestApiId:  &cfg.RestApiID,
		ResourceId: &resourceID,
		HttpMethod: &cfg.HttpMethod,
	})
	if err != nil {
		if errorCode(err) == "NotFoundException" {
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("get method", err)
	}
	return p.routeHandle(desc, resourceID, cfg), nil
}

func (p *Provider) createRoute(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg RouteConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	resourceID := ""
	resp, err := p.apigatewayClient.CreateResource(ctx, &apigateway.CreateResourceInput{
		RestApiId: &cfg.RestApiID,
		ParentId:  &cfg.RootResourceID,
		PathPart:  &cfg.PathPart,
	})
	switch {
	case err == nil:
		resourceID = *resp.Id
	case errorCode(err) == "ConflictException":
		resourceID, err = p.findResourceByPathPart(ctx, cfg.RestApiID, cfg.PathPart)
		if err != nil {
			return nil, err
		}
		if resourceID == "" {
			return nil, fmt.Errorf("resource %q conflicts but was not listed", cfg.PathPart)
		}
	default:
		return nil, classify("create api resource", err)
	}

	auth := "NONE"
	_, err = p.apigatewayClient.PutMethod(ctx, &apigateway.PutMethodInput{
		RestApiId:         &cfg.RestApiID,
		ResourceId:        &resourceID,
		HttpMethod:        &cfg.HttpMethod,
		AuthorizationType: &auth,
	})
	if err != nil && errorCode(err) != "ConflictException" {
		return nil, classify("put method", err)
	}

	// A MOCK integration keeps the API deployable until the function step
	// swaps in the real proxy target.
	_, err = p.apigatewayClient.PutIntegration(ctx, &apigateway.PutIntegrationInput{
		RestApiId:        &cfg.RestApiID,
		ResourceId:       &resourceID,
		HttpMethod:       &cfg.HttpMethod,
		Type:             types.IntegrationTypeMock,
		RequestTemplates: map[string]string{"application/json": `{"statusCode": 200}`},
	})
	if err != nil {
		return nil, classify("put integration", err)
	}
	h := p.routeHandle(desc, resourceID, cfg)
	h.AddWarning("route serves a placeholder integration; requests fail until the function step deploys a stage")
	return h, nil
}

func (p *Provider) routeHandle(desc *pipeline.Descriptor, resourceID string, cfg RouteConfig) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     resourceID,
		Status: pipeline.StatusActive,
	}
	h.SetAttr("path", "/"+cfg.PathPart)
	h.SetAttr("http_method", cfg.HttpMethod)
	return h
}

func (p *Provider) findResourceByPathPart(ctx context.Context, apiID, pathPart string) (string, error) {
	var position *string
	for {
		out, err := p.apigatewayClient.GetResources(ctx, &apigateway.GetResourcesInput{
			RestApiId: &apiID,
			Position:  position,
		})
		if err != nil {
			return "", classify("list api resources", err)
		}
		for _, item := range out.Items {
			if item.PathPart != nil && *item.PathPart == pathPart {
				return *item.Id, nil
			}
		}
		if out.Position == nil {
			break
		}
		position = out.Position
	}
	return "", nil
}

// putProxyIntegration points the catch-all route at the function through
// an AWS_PROXY integration. Lambda proxy integrations are always invoked
// with POST regardless of the client method.
func (p *Provider) putProxyIntegration(ctx context.Context, apiID, resourceID, method, functionARN string) error {
	uri := fmt.Sprintf("arn:aws:apigateway:%s:lambda:path/2015-03-31/functions/%s/invocations", p.region, functionARN)
	post := "POST"
	_, err := p.apigatewayClient.PutIntegration(ctx, &apigateway.PutIntegrationInput{
		RestApiId:             &apiID,
		ResourceId:            &resourceID,
		HttpMethod:            &method,
		Type:                  types.IntegrationTypeAwsProxy,
		IntegrationHttpMethod: &post,
		Uri:                   &uri,
	})
	if err != nil {
		return classify("put proxy integration", err)
	}
	return nil
}

// deployStage publishes the API's current configuration to a stage.
func (p *Provider) deployStage(ctx context.Context, apiID, stage string) error {
	_, err := p.apigatewayClient.CreateDeployment(ctx, &apigateway.CreateDeploymentInput{
		RestApiId: &apiID,
		StageName: &stage,
	})
	if err != nil {
		return classify("create deployment", err)
	}
	return nil
}
