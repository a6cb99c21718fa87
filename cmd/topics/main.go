// Command topics lists the forum topics of a chat, so their ids can be used
// in forwarding_rules.json.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/DimaPhil/telegram-forwarder/internal/config"
	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: topics <chat>")
		fmt.Println("example: topics @golang_chat")
		fmt.Println("example: topics -1001234567890")
		os.Exit(1)
	}
	ref := os.Args[1]

	_ = godotenv.Load()
	settings := config.LoadSettings()

	if err := logger.Init("warn", ""); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	cfg, err := config.Load(settings.ConfigFile)
	if err != nil {
		fmt.Printf("error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.APIID == 0 || cfg.APIHash == "" {
		fmt.Printf("no API credentials in %s, run the forwarder first\n", settings.ConfigFile)
		os.Exit(1)
	}

	ctx := context.Background()

	client, err := telegram.NewClient(ctx, cfg, settings.SessionFile)
	if err != nil {
		fmt.Printf("error creating client: %v\n", err)
		os.Exit(1)
	}
	defer client.Stop()

	chat, err := client.ResolvePeer(ctx, ref)
	if err != nil {
		fmt.Printf("error resolving %s: %v\n", ref, err)
		os.Exit(1)
	}

	if !chat.IsForum {
		fmt.Printf("%s is not a forum (no topics available)\n", chat.Title)
		os.Exit(0)
	}

	topics, err := client.GetForumTopics(ctx, chat)
	if err != nil {
		fmt.Printf("error fetching topics: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("forum: %s (%s)\n", chat.Title, chat.Key())
	fmt.Printf("total topics: %d\n\n", len(topics))

	fmt.Printf("%-8s | %-40s\n", "id", "title")
	fmt.Println(strings.Repeat("-", 52))
	for _, t := range topics {
		title := t.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Printf("%-8d | %-40s\n", t.ID, title)
	}

	fmt.Println("\nto forward from a specific topic, use its id in the rule:")
	fmt.Println(`  {"chat_id": "...", "topic_id": 15}`)
}
