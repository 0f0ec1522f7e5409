package line

import (
	"context"
	"fmt"
)

type RichMenu struct {
	Id          string         `json:"richMenuId,omitempty"`
	Size        RichMenuSize   `json:"size"`
	Selected    bool           `json:"selected"`
	Name        string         `json:"name"`
	ChatBarText string         `json:"chatBarText"`
	Areas       []RichMenuArea `json:"areas"`
}

type RichMenuSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type RichMenuArea struct {
	Bounds RichMenuBounds `json:"bounds"`
	Action Action         `json:"action"`
}

type RichMenuBounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (c *Client) LinkRichMenu(ctx context.Context, userId, richMenuId string) error {
	resp, err := c.request().
		SetContext(ctx).
		Post(fmt.Sprintf("%s/v2/bot/user/%s/richmenu/%s", apiEndpoint, userId, richMenuId))
	if err != nil {
		return fmt.Errorf("c.request.Post: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("link rich menu failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// UnlinkRichMenu removes the user's current menu binding.
// A missing binding is not an error.
func (c *Client) UnlinkRichMenu(ctx context.Context, userId string) error {
	resp, err := c.request().
		SetContext(ctx).
		Delete(fmt.Sprintf("%s/v2/bot/user/%s/richmenu", apiEndpoint, userId))
	if err != nil {
		return fmt.Errorf("c.request.Delete: %w", err)
	}

	if resp.IsError() && resp.StatusCode() != 404 {
		return fmt.Errorf("unlink rich menu failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

func (c *Client) CreateRichMenu(ctx context.Context, menu RichMenu) (string, error) {
	var created struct {
		RichMenuId string `json:"richMenuId"`
	}

	resp, err := c.request().
		SetContext(ctx).
		SetBody(menu).
		SetResult(&created).
		Post(apiEndpoint + "/v2/bot/richmenu")
	if err != nil {
		return "", fmt.Errorf("c.request.Post: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("create rich menu failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return created.RichMenuId, nil
}

func (c *Client) UploadRichMenuImage(ctx context.Context, richMenuId, contentType string, image []byte) error {
	resp, err := c.request().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(image).
		Post(fmt.Sprintf("%s/v2/bot/richmenu/%s/content", dataEndpoint, richMenuId))
	if err != nil {
		return fmt.Errorf("c.request.Post: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("upload rich menu image failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

func (c *Client) ListRichMenus(ctx context.Context) ([]RichMenu, error) {
	var listing struct {
		RichMenus []RichMenu `json:"richmenus"`
	}

	resp, err := c.request().
		SetContext(ctx).
		SetResult(&listing).
		Get(apiEndpoint + "/v2/bot/richmenu/list")
	if err != nil {
		return nil, fmt.Errorf("c.request.Get: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("list rich menus failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return listing.RichMenus, nil
}

func (c *Client) DeleteRichMenu(ctx context.Context, richMenuId string) error {
	resp, err := c.request().
		SetContext(ctx).
		Delete(fmt.Sprintf("%s/v2/bot/richmenu/%s", apiEndpoint, richMenuId))
	if err != nil {
		return fmt.Errorf("c.request.Delete: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("delete rich menu failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
