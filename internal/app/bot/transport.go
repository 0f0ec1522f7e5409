package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/deps/pharmacy"
	"github.com/hsuehyc/herbalink/internal/menu"
	"github.com/hsuehyc/herbalink/internal/models"
	"github.com/hsuehyc/herbalink/internal/session"
	"github.com/hsuehyc/herbalink/internal/token"
	"github.com/hsuehyc/herbalink/pkg/env"
)

// LineClient is the outbound chat surface of the messaging platform.
type LineClient interface {
	Reply(ctx context.Context, replyToken string, messages ...line.Message) error
	Push(ctx context.Context, to string, messages ...line.Message) error
	Content(ctx context.Context, messageId string) ([]byte, error)
}

// PharmacyClient is the external member/order REST API.
type PharmacyClient interface {
	Login(ctx context.Context, account, password string) (*models.Member, string, error)
	ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) (string, error)
	DeleteAccount(ctx context.Context, accessToken string) (string, error)
	SearchPharmacies(ctx context.Context, area string) ([]models.Pharmacy, error)
	Orders(ctx context.Context, accessToken string) ([]models.Order, error)
	Order(ctx context.Context, accessToken string, orderId int64) (*models.Order, string, error)
	CreateOrder(ctx context.Context, accessToken string, params pharmacy.CreateOrderParams) (*models.Order, string, error)
}

// NotifyBridge is the order-notification relay.
type NotifyBridge interface {
	Connect(ctx context.Context, userId string, memberId int64, accessToken string) error
	Disconnect(ctx context.Context, memberId int64) error
	EnsureConnected(ctx context.Context, userId string) (bool, error)
}

type Config struct {
	Addr          string `validate:"required"`
	ChannelSecret string `validate:"required"`
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

type Dependencies struct {
	Line     LineClient
	Pharmacy PharmacyClient
	Sessions *session.Store
	Menu     *menu.Controller
	Tokens   *token.Codec
	Notify   NotifyBridge
}

// Transport receives webhook deliveries from the messaging platform
// and routes every event to exactly one outbound reply attempt.
type Transport struct {
	config Config
	deps   Dependencies
}

func NewTransport(config Config, deps Dependencies) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Transport{
		config: config,
		deps:   deps,
	}, nil
}

func (b *Transport) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		b.handleWebhook(ctx, w, r)
	})

	server := &http.Server{
		Addr:         b.config.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.
			WithField("addr", b.config.Addr).
			Warn("bot webhook transport starting")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server.ListenAndServe: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("server.Shutdown: %v", err)
		}
	}()
}

func (b *Transport) handleWebhook(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("io.ReadAll: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Line-Signature")

	if !line.VerifySignature(b.config.ChannelSecret, body, signature) {
		// Outside production a bad signature is tolerated so local
		// tooling can post webhook bodies by hand.
		if env.IsProduction() {
			log.Warn("webhook signature verification failed")
			w.WriteHeader(http.StatusForbidden)
			return
		}

		log.Warn("webhook signature verification failed, tolerated outside production")
	}

	webhook, err := line.ParseWebhook(body)
	if err != nil {
		log.Errorf("line.ParseWebhook: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, event := range webhook.Events {
		res := b.route(ctx, event)

		entry := log.
			WithField("event.type", res.EventType).
			WithField("event.action", res.Action).
			WithField("user_id", event.Source.UserId)

		if !res.Success {
			entry.Errorf("event handling failed: %v", res.Err)
			continue
		}

		entry.Info("event handled")
	}

	w.WriteHeader(http.StatusOK)
}
