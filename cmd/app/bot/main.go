package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	bottransport "github.com/hsuehyc/herbalink/internal/app/bot"
	"github.com/hsuehyc/herbalink/internal/config"
	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/internal/deps/pharmacy"
	"github.com/hsuehyc/herbalink/internal/deps/storage/kv"
	"github.com/hsuehyc/herbalink/internal/menu"
	"github.com/hsuehyc/herbalink/internal/notify"
	"github.com/hsuehyc/herbalink/internal/session"
	"github.com/hsuehyc/herbalink/internal/token"
	"github.com/hsuehyc/herbalink/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Init()

	log.Warn("herbalink bot app initializing")

	storage, err := kv.NewRedis(ctx, kv.Config{
		Host:     config.Get(ctx, config.RedisHost).String(),
		Port:     config.Get(ctx, config.RedisPort).String(),
		Password: config.Get(ctx, config.RedisPassword).String(),
	})
	if err != nil {
		log.Fatalf("kv.NewRedis: %v", err)
	}

	httpClient := resty.NewWithClient(http.DefaultClient)

	lineClient, err := line.NewClient(
		line.Config{
			ChannelToken: config.Get(ctx, config.LineChannelToken).String(),
		},
		line.Dependencies{
			Client: httpClient,
		})
	if err != nil {
		log.Fatalf("line.NewClient: %v", err)
	}

	pharmacyClient, err := pharmacy.NewClient(
		pharmacy.Config{
			BaseURL: config.Get(ctx, config.PharmacyAPIURL).String(),
		},
		pharmacy.Dependencies{
			Client: httpClient,
		})
	if err != nil {
		log.Fatalf("pharmacy.NewClient: %v", err)
	}

	tokenCodec, err := token.NewCodec(token.Config{
		Secret: config.Get(ctx, config.SessionTokenSecret).String(),
	})
	if err != nil {
		log.Fatalf("token.NewCodec: %v", err)
	}

	sessionStore := session.NewStore(
		session.Config{},
		session.Dependencies{
			Storage: storage,
			Codec:   tokenCodec,
		})

	menuController, err := menu.NewController(
		menu.Config{
			GuestId:    config.Get(ctx, config.RichMenuGuestId).String(),
			MemberId:   config.Get(ctx, config.RichMenuMemberId).String(),
			LoadingId:  config.Get(ctx, config.RichMenuLoadingId).String(),
			ApplyDelay: 300 * time.Millisecond,
		},
		menu.Dependencies{
			Line:     lineClient,
			Sessions: sessionStore,
		})
	if err != nil {
		log.Fatalf("menu.NewController: %v", err)
	}

	notifyBridge, err := notify.NewBridge(ctx,
		notify.Config{
			URL: config.Get(ctx, config.NotifySocketURL).String(),
		},
		notify.Dependencies{
			Storage: storage,
			Line:    lineClient,
			Dialer:  notify.NewWebsocketDialer(),
			Tokens:  tokenCodec,
		})
	if err != nil {
		log.Fatalf("notify.NewBridge: %v", err)
	}

	transport, err := bottransport.NewTransport(
		bottransport.Config{
			Addr:          config.Get(ctx, config.HTTPAddr).String(),
			ChannelSecret: config.Get(ctx, config.LineChannelSecret).String(),
		},
		bottransport.Dependencies{
			Line:     lineClient,
			Pharmacy: pharmacyClient,
			Sessions: sessionStore,
			Menu:     menuController,
			Tokens:   tokenCodec,
			Notify:   notifyBridge,
		})
	if err != nil {
		log.Fatalf("bottransport.NewTransport: %v", err)
	}

	transport.Start(ctx)

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, syscall.SIGINT, syscall.SIGTERM)
	<-exitSignal

	log.Warn("herbalink bot app terminating")
}
