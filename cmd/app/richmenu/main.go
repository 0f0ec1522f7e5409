package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hsuehyc/herbalink/internal/config"
	"github.com/hsuehyc/herbalink/internal/deps/line"
	"github.com/hsuehyc/herbalink/pkg/logger"
)

var (
	action    string
	specPath  string
	imagePath string
	menuId    string
)

// Provisioning tool for the bot's rich menus. Create prints the new
// menu id so it can be written into the environment configuration.
func main() {
	ctx := context.Background()

	logger.Init()

	flag.StringVar(&action, "action", "list", "one of: create, list, delete")
	flag.StringVar(&specPath, "spec", "", "path to a rich menu JSON spec (create)")
	flag.StringVar(&imagePath, "image", "", "path to the menu image (create)")
	flag.StringVar(&menuId, "id", "", "rich menu id (delete)")
	flag.Parse()

	lineClient, err := line.NewClient(
		line.Config{
			ChannelToken: config.Get(ctx, config.LineChannelToken).String(),
		},
		line.Dependencies{
			Client: resty.NewWithClient(http.DefaultClient),
		})
	if err != nil {
		log.Fatalf("line.NewClient: %v", err)
	}

	switch action {
	case "create":
		create(ctx, lineClient)

	case "list":
		list(ctx, lineClient)

	case "delete":
		remove(ctx, lineClient)

	default:
		log.Fatalf("unknown action: %s", action)
	}
}

func create(ctx context.Context, client *line.Client) {
	specBody, err := os.ReadFile(specPath)
	if err != nil {
		log.Fatalf("os.ReadFile: %v", err)
	}

	menu := line.RichMenu{}

	if err = json.Unmarshal(specBody, &menu); err != nil {
		log.Fatalf("json.Unmarshal: %v", err)
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		log.Fatalf("os.ReadFile: %v", err)
	}

	created, err := client.CreateRichMenu(ctx, menu)
	if err != nil {
		log.Fatalf("client.CreateRichMenu: %v", err)
	}

	if err = client.UploadRichMenuImage(ctx, created, http.DetectContentType(image), image); err != nil {
		log.Fatalf("client.UploadRichMenuImage: %v", err)
	}

	log.
		WithField("rich_menu_id", created).
		Info("rich menu created")
}

func list(ctx context.Context, client *line.Client) {
	menus, err := client.ListRichMenus(ctx)
	if err != nil {
		log.Fatalf("client.ListRichMenus: %v", err)
	}

	for _, menu := range menus {
		log.
			WithField("rich_menu_id", menu.Id).
			WithField("name", menu.Name).
			Info("rich menu")
	}
}

func remove(ctx context.Context, client *line.Client) {
	if menuId == "" {
		log.Fatal("rich menu id required")
	}

	if err := client.DeleteRichMenu(ctx, menuId); err != nil {
		log.Fatalf("client.DeleteRichMenu: %v", err)
	}

	log.
		WithField("rich_menu_id", menuId).
		Info("rich menu deleted")
}
