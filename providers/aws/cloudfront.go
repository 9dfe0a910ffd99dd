package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type DistributionConfig struct {
	Comment      string `json:"comment"`
	OriginBucket string `json:"origin_bucket"`
	OriginDomain string `json:"origin_domain"`
}

// findDistribution matches on the comment field. CloudFront has no
// name-based lookup, so the comment doubles as the lookup key; more than
// one match means the key cannot be trusted.
func (p *Provider) findDistribution(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg DistributionConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	var matches []types.DistributionSummary
	var marker *string
	for {
		out, err := p.cloudfrontClient.ListDistributions(ctx, &cloudfront.ListDistributionsInput{Marker: marker})
		if err != nil {
			return nil, classify("list distributions", err)
		}
		if out.DistributionList == nil {
			break
		}
		for _, item := range out.DistributionList.Items {
			if item.Comment != nil && *item.Comment == cfg.Comment {
				matches = append(matches, item)
			}
		}
		if out.DistributionList.IsTruncated == nil || !*out.DistributionList.IsTruncated {
			break
		}
		marker = out.DistributionList.NextMarker
	}

	switch len(matches) {
	case 0:
		return nil, pipeline.ErrAbsent
	case 1:
		return distributionSummaryHandle(desc, matches[0]), nil
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

func (p *Provider) createDistribution(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg DistributionConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	oacID, err := p.ensureOriginAccessControl(ctx, cfg.Comment)
	if err != nil {
		return nil, err
	}

	originID := fmt.Sprintf("S3-%s", cfg.OriginBucket)
	origin := types.Origin{
		Id:                    &originID,
		DomainName:            &cfg.OriginDomain,
		OriginAccessControlId: &oacID,
		S3OriginConfig: &types.S3OriginConfig{
			OriginAccessIdentity: func(s string) *string { return &s }(""),
		},
	}

	// Stable caller reference: replaying the create after a partial run
	// returns the existing distribution instead of minting a second one.
	callerRef := fmt.Sprintf("crimectl-%s", cfg.OriginBucket)

	input := &cloudfront.CreateDistributionInput{
		DistributionConfig: &types.DistributionConfig{
			CallerReference: &callerRef,
			Comment:         &cfg.Comment,
			Enabled:         func(b bool) *bool { return &b }(true),
			PriceClass:      types.PriceClassPriceClass100,
			Origins: &types.Origins{
				Quantity: func(i int32) *int32 { return &i }(1),
				Items:    []types.Origin{origin},
			},
			DefaultCacheBehavior: &types.DefaultCacheBehavior{
				TargetOriginId:       &originID,
				ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
				AllowedMethods: &types.AllowedMethods{
					Quantity: func(i int32) *int32 { return &i }(2),
					Items:    []types.Method{types.MethodGet, types.MethodHead},
					CachedMethods: &types.CachedMethods{
						Quantity: func(i int32) *int32 { return &i }(2),
						Items:    []types.Method{types.MethodGet, types.MethodHead},
					},
				},
				MinTTL: func(i int64) *int64 { return &i }(0),
				ForwardedValues: &types.ForwardedValues{
					Cookies: &types.CookiePreference{
						Forward: types.ItemSelectionNone,
					},
					QueryString: func(b bool) *bool { return &b }(false),
				},
			},
		},
	}

	resp, err := p.cloudfrontClient.CreateDistribution(ctx, input)
	if err != nil {
		return nil, classify("create distribution", err)
	}

	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     *resp.Distribution.Id,
		Status: pipeline.StatusPending,
	}
	h.SetAttr("arn", *resp.Distribution.ARN)
	h.SetAttr("domain", *resp.Distribution.DomainName)
	h.SetAttr("origin_domain", cfg.OriginDomain)
	return h, nil
}

// ensureOriginAccessControl creates the OAC the distribution signs its
// origin requests with, reusing one left behind by an earlier run.
func (p *Provider) ensureOriginAccessControl(ctx context.Context, name string) (string, error) {
	resp, err := p.cloudfrontClient.CreateOriginAccessControl(ctx, &cloudfront.CreateOriginAccessControlInput{
		OriginAccessControlConfig: &types.OriginAccessControlConfig{
			Name:                          &name,
			OriginAccessControlOriginType: types.OriginAccessControlOriginTypesS3,
			SigningBehavior:               types.OriginAccessControlSigningBehaviorsAlways,
			SigningProtocol:               types.OriginAccessControlSigningProtocolsSigv4,
		},
	})
	if err == nil {
		return *resp.OriginAccessControl.Id, nil
	}
	if errorCode(err) != "OriginAccessControlAlreadyExists" {
		return "", classify("create origin access control", err)
	}

	var marker *string
	for {
		out, err := p.cloudfrontClient.ListOriginAccessControls(ctx, &cloudfront.ListOriginAccessControlsInput{Marker: marker})
		if err != nil {
			return "", classify("list origin access controls", err)
		}
		if out.OriginAccessControlList == nil {
			break
		}
		for _, item := range out.OriginAccessControlList.Items {
			if item.Name != nil && *item.Name == name {
				return *item.Id, nil
			}
		}
		if out.OriginAccessControlList.IsTruncated == nil || !*out.OriginAccessControlList.IsTruncated {
			break
		}
		marker = out.OriginAccessControlList.NextMarker
	}
	return "", fmt.Errorf("origin access control %q exists but was not listed", name)
}

func (p *Provider) readyDistribution(ctx context.Context, h *pipeline.Handle) (*pipeline.Handle, bool, error) {
	out, err := p.cloudfrontClient.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: &h.ID})
	if err != nil {
		return h, false, classify("get distribution", err)
	}
	if *out.Distribution.Status != "Deployed" {
		return h, false, nil
	}
	h.Status = pipeline.StatusActive
	h.SetAttr("arn", *out.Distribution.ARN)
	h.SetAttr("domain", *out.Distribution.DomainName)
	return h, true, nil
}

func (p *Provider) validateDistribution(desc *pipeline.Descriptor, h *pipeline.Handle) error {
	var cfg DistributionConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return err
	}
	if pipeline.ContainsUnknown(cfg.OriginDomain) {
		return nil
	}

	got, ok := h.Attr("origin_domain")
	if !ok {
		return nil
	}
	if got != cfg.OriginDomain {
		return &pipeline.MismatchError{Step: desc.Name, Field: "origin domain", Want: cfg.OriginDomain, Got: got}
	}
	return nil
}

func distributionSummaryHandle(desc *pipeline.Descriptor, item types.DistributionSummary) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     *item.Id,
		Status: pipeline.StatusPending,
	}
	if item.Status != nil && *item.Status == "Deployed" {
		h.Status = pipeline.StatusActive
	}
	h.SetAttr("arn", *item.ARN)
	h.SetAttr("domain", *item.DomainName)
	if item.Origins != nil && len(item.Origins.Items) > 0 {
		h.SetAttr("origin_domain", *item.Origins.Items[0].DomainName)
	}
	return h
}
