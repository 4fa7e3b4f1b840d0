package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client asks the entitlement API whether a viewer may access an owner's
// gated content. It implements access.EntitlementValidator.
type Client struct {
	httpClient *resty.Client
}

// NewClient creates a Resty-backed entitlement client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
	}
}

type checkRequest struct {
	ViewerID string `json:"viewer_id"`
	OwnerID  string `json:"owner_id"`
}

type checkResponse struct {
	Entitled bool `json:"entitled"`
}

// Validate performs the entitlement check. Timeouts are normalized to
// context.DeadlineExceeded so the caller can distinguish them from other
// upstream failures; either way the caller must treat failure as denial.
func (c *Client) Validate(ctx context.Context, viewerID, ownerID string) (bool, error) {
	var result checkResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(checkRequest{ViewerID: viewerID, OwnerID: ownerID}).
		SetResult(&result).
		Post("/v1/entitlements/check")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return false, context.DeadlineExceeded
		}
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("entitlement api error: %s", resp.Status())
	}
	return result.Entitled, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
