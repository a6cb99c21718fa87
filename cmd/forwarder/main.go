package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/DimaPhil/telegram-forwarder/internal/config"
	"github.com/DimaPhil/telegram-forwarder/internal/entity"
	"github.com/DimaPhil/telegram-forwarder/internal/forwarder"
	"github.com/DimaPhil/telegram-forwarder/internal/links"
	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/rules"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
	"github.com/DimaPhil/telegram-forwarder/internal/topic"
)

func main() {
	// 1. Load environment and settings
	_ = godotenv.Load()
	settings := config.LoadSettings()

	// 2. Initialize logger
	if err := logger.Init(settings.LogLevel, settings.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting telegram forwarder")

	// 3. Load config, prompting for credentials on first run
	cfg, err := config.Load(settings.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", settings.ConfigFile).Msg("failed to load config")
	}
	if cfg.APIID == 0 || cfg.APIHash == "" {
		if err := config.PromptCredentials(os.Stdin, os.Stdout, cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to read credentials")
		}
		if err := config.Save(settings.ConfigFile, cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to save config")
		}
		log.Info().Str("file", settings.ConfigFile).Msg("credentials saved")
	}

	// 4. Load forwarding rules, offering interactive setup when empty
	ruleSet, err := rules.Load(settings.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", settings.RulesFile).Msg("failed to load forwarding rules")
	}
	if len(ruleSet) == 0 {
		added, err := rules.SetupInteractive(ruleSet, settings.RulesFile, os.Stdin, os.Stdout)
		if err != nil {
			log.Fatal().Err(err).Msg("interactive rule setup failed")
		}
		if !added {
			log.Warn().Msg("no forwarding rules configured, nothing will be forwarded")
		}
	}
	log.Info().Int("sources", len(ruleSet)).Msg("forwarding rules loaded")

	// 5. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 6. Connect to telegram
	client, err := telegram.NewClient(ctx, cfg, settings.SessionFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telegram client")
	}
	defer client.Stop()

	if self := client.Self(); self != nil {
		log.Info().
			Str("first_name", self.FirstName).
			Str("username", self.Username).
			Int64("user_id", self.ID).
			Msg("logged in")
	}

	// 7. Wire the forwarding pipeline
	entities := entity.NewCache(client)
	pipeline := forwarder.NewPipeline(
		client,
		entities,
		rules.NewMatcher(ruleSet),
		topic.NewResolver(entities),
		links.NewResolver(client, entities),
	)
	pipeline.Register(client.Proto())

	go func() {
		<-ctx.Done()
		client.Stop()
	}()

	log.Info().Msg("forwarder is running, press Ctrl+C to stop")
	if err := client.Idle(); err != nil {
		log.Error().Err(err).Msg("client stopped with error")
	}
	log.Info().Msg("shutdown complete")
}
