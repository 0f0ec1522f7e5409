package line

import (
	"context"
	"fmt"
)

// Content downloads the binary payload of a received message,
// used for prescription image retrieval.
func (c *Client) Content(ctx context.Context, messageId string) ([]byte, error) {
	resp, err := c.request().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/v2/bot/message/%s/content", dataEndpoint, messageId))
	if err != nil {
		return nil, fmt.Errorf("c.request.Get: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("content download failed: status %d", resp.StatusCode())
	}

	return resp.Body(), nil
}
