package line

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
)

const (
	apiEndpoint  = "https://api.line.me"
	dataEndpoint = "https://api-data.line.me"
)

type Config struct {
	ChannelToken string `validate:"required"`
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

// Client is a narrow LINE Messaging API surface: reply, push,
// rich-menu binding and message-content download.
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

func (c *Client) request() *resty.Request {
	return c.client.R().
		SetHeader("Authorization", "Bearer "+c.config.ChannelToken)
}
