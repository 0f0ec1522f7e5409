package pharmacy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	"github.com/hsuehyc/herbalink/internal/models"
)

type Config struct {
	BaseURL string `validate:"required,url"`
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

type Dependencies struct {
	Client *resty.Client `validate:"required"`
}

func (c *Dependencies) Validate() error {
	return validator.New().Struct(c)
}

// Client consumes the member/order REST API. Every call resolves to
// (result, ""), (zero, business message) or a transport error; no
// schema is assumed beyond the fields read here.
type Client struct {
	config Config
	client *resty.Client
}

func NewClient(config Config, deps Dependencies) (*Client, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		config: config,
		client: deps.Client,
	}, nil
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, path string, body any, accessToken string) (*apiResponse, error) {
	out := new(apiResponse)

	req := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(out)

	if accessToken != "" {
		req.SetHeader("Authorization", "Bearer "+accessToken)
	}

	resp, err := req.Post(c.config.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("req.Post: %w", err)
	}

	if resp.IsError() && out.Message == "" {
		return nil, fmt.Errorf("pharmacy api: status %d: %s", resp.StatusCode(), resp.String())
	}

	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, accessToken string) (*apiResponse, error) {
	out := new(apiResponse)

	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(out)

	if accessToken != "" {
		req.SetHeader("Authorization", "Bearer "+accessToken)
	}

	resp, err := req.Get(c.config.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("req.Get: %w", err)
	}

	if resp.IsError() && out.Message == "" {
		return nil, fmt.Errorf("pharmacy api: status %d: %s", resp.StatusCode(), resp.String())
	}

	return out, nil
}

func decode[T any](raw json.RawMessage) (*T, error) {
	value := new(T)

	if err := json.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return value, nil
}

// Login exchanges credentials for a member profile with an access token.
// A non-empty message means the backend rejected the credentials.
func (c *Client) Login(ctx context.Context, account, password string) (*models.Member, string, error) {
	resp, err := c.post(ctx, "/api/members/login", map[string]string{
		"account":  account,
		"password": password,
	}, "")
	if err != nil {
		return nil, "", err
	}

	if !resp.Success {
		return nil, resp.Message, nil
	}

	member, err := decode[models.Member](resp.Data)
	if err != nil {
		return nil, "", err
	}

	return member, "", nil
}

type RegisterParams struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (c *Client) Register(ctx context.Context, params RegisterParams) (*models.Member, string, error) {
	resp, err := c.post(ctx, "/api/members/register", params, "")
	if err != nil {
		return nil, "", err
	}

	if !resp.Success {
		return nil, resp.Message, nil
	}

	member, err := decode[models.Member](resp.Data)
	if err != nil {
		return nil, "", err
	}

	return member, "", nil
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) (string, error) {
	resp, err := c.post(ctx, "/api/members/password", map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}, accessToken)
	if err != nil {
		return "", err
	}

	if !resp.Success {
		return resp.Message, nil
	}

	return "", nil
}

func (c *Client) DeleteAccount(ctx context.Context, accessToken string) (string, error) {
	resp, err := c.post(ctx, "/api/members/delete", nil, accessToken)
	if err != nil {
		return "", err
	}

	if !resp.Success {
		return resp.Message, nil
	}

	return "", nil
}

func (c *Client) SearchPharmacies(ctx context.Context, area string) ([]models.Pharmacy, error) {
	resp, err := c.get(ctx, "/api/pharmacies", map[string]string{
		"area": area,
	}, "")
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("pharmacy search rejected: %s", resp.Message)
	}

	list, err := decode[[]models.Pharmacy](resp.Data)
	if err != nil {
		return nil, err
	}

	return *list, nil
}

func (c *Client) Orders(ctx context.Context, accessToken string) ([]models.Order, error) {
	resp, err := c.get(ctx, "/api/orders", nil, accessToken)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("order listing rejected: %s", resp.Message)
	}

	list, err := decode[[]models.Order](resp.Data)
	if err != nil {
		return nil, err
	}

	return *list, nil
}

func (c *Client) Order(ctx context.Context, accessToken string, orderId int64) (*models.Order, string, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/orders/%d", orderId), nil, accessToken)
	if err != nil {
		return nil, "", err
	}

	if !resp.Success {
		return nil, resp.Message, nil
	}

	order, err := decode[models.Order](resp.Data)
	if err != nil {
		return nil, "", err
	}

	return order, "", nil
}

type CreateOrderParams struct {
	PharmacyId string `json:"pharmacy_id"`
	ImageRef   string `json:"image_ref"`
}

func (c *Client) CreateOrder(ctx context.Context, accessToken string, params CreateOrderParams) (*models.Order, string, error) {
	resp, err := c.post(ctx, "/api/orders", params, accessToken)
	if err != nil {
		return nil, "", err
	}

	if !resp.Success {
		return nil, resp.Message, nil
	}

	order, err := decode[models.Order](resp.Data)
	if err != nil {
		return nil, "", err
	}

	return order, "", nil
}
