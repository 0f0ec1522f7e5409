package menu

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/session"
)

type Menu = string

const (
	Guest   Menu = "guest"
	Member  Menu = "member"
	Loading Menu = "loading"
)

// LineClient is the rich-menu surface of the messaging platform.
// Commands are fire-and-forget; the platform holds the actual binding.
type LineClient interface {
	LinkRichMenu(ctx context.Context, userId, richMenuId string) error
	UnlinkRichMenu(ctx context.Context, userId string) error
}

type Config struct {
	GuestId   string `validate:"required"`
	MemberId  string `validate:"required"`
	LoadingId string `validate:"required"`

	// ApplyDelay gives the platform time to visibly apply the loading
	// menu before the caller starts a slow operation.
	ApplyDelay time.Duration
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

type Dependencies struct {
	Line     LineClient
	Sessions *session.Store
}

// Controller switches the per-user rich menu between guest, member
// and loading. Binding failures are logged and swallowed: the menu is
// a side channel and must never block a chat reply.
type Controller struct {
	config Config
	deps   Dependencies
}

func NewController(config Config, deps Dependencies) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Controller{
		config: config,
		deps:   deps,
	}, nil
}

// EnterLoading binds the loading menu. Callers that enter loading own
// the obligation to call Restore or SetByAuth on every exit path.
func (c *Controller) EnterLoading(ctx context.Context, userId string) {
	c.bind(ctx, userId, Loading, c.config.LoadingId)

	if c.config.ApplyDelay > 0 {
		time.Sleep(c.config.ApplyDelay)
	}
}

// Restore leaves the loading state. When loggedIn is nil the decision
// is re-derived from the durable login record, never from a caller's
// stale assumption.
func (c *Controller) Restore(ctx context.Context, userId string, loggedIn *bool) {
	value := false

	if loggedIn != nil {
		value = *loggedIn
	} else {
		derived, err := c.deps.Sessions.IsLoggedIn(ctx, userId)
		if err != nil {
			log.
				WithField("user_id", userId).
				Errorf("c.deps.Sessions.IsLoggedIn: %v", err)
		}
		value = derived
	}

	c.SetByAuth(ctx, userId, value)
}

func (c *Controller) SetByAuth(ctx context.Context, userId string, loggedIn bool) {
	if loggedIn {
		c.bind(ctx, userId, Member, c.config.MemberId)
		return
	}

	c.bind(ctx, userId, Guest, c.config.GuestId)
}

func (c *Controller) bind(ctx context.Context, userId string, menu Menu, richMenuId string) {
	if err := c.deps.Line.UnlinkRichMenu(ctx, userId); err != nil {
		log.
			WithField("user_id", userId).
			WithField("menu", menu).
			Errorf("c.deps.Line.UnlinkRichMenu: %v", err)
	}

	if err := c.deps.Line.LinkRichMenu(ctx, userId, richMenuId); err != nil {
		log.
			WithField("user_id", userId).
			WithField("menu", menu).
			Errorf("c.deps.Line.LinkRichMenu: %v", err)
	}
}
