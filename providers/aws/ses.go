package aws

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

type EmailIdentityConfig struct {
	Address string `json:"address"`
}

// findEmailIdentity reports an unverified identity with a Pending handle:
// it exists, but mail sent from it would bounce until the owner clicks
// the verification link.
func (p *Provider) findEmailIdentity(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg EmailIdentityConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	out, err := p.sesv2Client.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{EmailIdentity: &cfg.Address})
	if err != nil {
		if errorCode(err) == "NotFoundException" {
			return nil, pipeline.ErrAbsent
		}
		return nil, classify("get email identity", err)
	}
	return emailIdentityHandle(desc, cfg.Address, out.VerifiedForSendingStatus), nil
}

func (p *Provider) createEmailIdentity(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var cfg EmailIdentityConfig
	if err := decodeProps(desc.Properties, &cfg); err != nil {
		return nil, err
	}

	resp, err := p.sesv2Client.CreateEmailIdentity(ctx, &sesv2.CreateEmailIdentityInput{
		EmailIdentity: &cfg.Address,
	})
	if err != nil {
		if errorCode(err) == "AlreadyExistsException" {
			return p.findEmailIdentity(ctx, desc)
		}
		return nil, classify("create email identity", err)
	}
	return emailIdentityHandle(desc, cfg.Address, resp.VerifiedForSendingStatus), nil
}

func (p *Provider) readyEmailIdentity(ctx context.Context, h *pipeline.Handle) (*pipeline.Handle, bool, error) {
	out, err := p.sesv2Client.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{EmailIdentity: &h.ID})
	if err != nil {
		return h, false, classify("get email identity", err)
	}
	if !out.VerifiedForSendingStatus {
		return h, false, nil
	}
	h.Status = pipeline.StatusActive
	h.SetAttr("verified", "true")
	return h, true, nil
}

func emailIdentityHandle(desc *pipeline.Descriptor, address string, verified bool) *pipeline.Handle {
	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     address,
		Status: pipeline.StatusPending,
	}
	if verified {
		h.Status = pipeline.StatusActive
	}
	h.SetAttr("name", address)
	h.SetAttr("verified", strconv.FormatBool(verified))
	return h
}
