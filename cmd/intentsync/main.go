package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/convobench/inbenta-relay-go/internal/config"
	"github.com/convobench/inbenta-relay-go/internal/corpus"
	"github.com/convobench/inbenta-relay-go/internal/database"
	"github.com/convobench/inbenta-relay-go/internal/inbenta"
	"github.com/convobench/inbenta-relay-go/internal/redis"
	"github.com/convobench/inbenta-relay-go/internal/sync"
)

const usage = `Usage: intentsync <command> [flags]

Commands:
  import   pull remote intents into the local utterance corpus
  export   push local utterance sets back to the remote knowledge base

Import flags:
  -build-convos              also generate conversation scaffolds

Export flags:
  -delete-old-utterances     remove remote phrases absent locally
`

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	importFlags := flag.NewFlagSet("import", flag.ExitOnError)
	buildConvos := importFlags.Bool("build-convos", false, "also generate conversation scaffolds")

	exportFlags := flag.NewFlagSet("export", flag.ExitOnError)
	deleteOld := exportFlags.Bool("delete-old-utterances", false, "remove remote phrases absent locally")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.ValidateEditor(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	engine, cleanup, err := buildEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer cleanup()

	ctx := context.Background()
	switch command {
	case "import":
		importFlags.Parse(os.Args[2:])
		_, err = engine.Import(ctx, sync.ImportOptions{BuildConvos: *buildConvos})
	case "export":
		exportFlags.Parse(os.Args[2:])
		_, err = engine.Export(ctx, sync.ExportOptions{DeleteOldUtterances: *deleteOld})
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("sync failed")
	}
}

func buildEngine(cfg *config.Config) (*sync.Engine, func(), error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	cleanup := func() { db.Close() }

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := corpus.EnsureSchema(ctx, db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	var cache inbenta.TokenCache
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		cache = redis.NewTokenCache(redisClient)
		prev := cleanup
		cleanup = func() {
			redisClient.Close()
			prev()
		}
	}

	creds := inbenta.Credentials{
		APIKey:         cfg.EditorAPIKey,
		Secret:         cfg.EditorSecret,
		PersonalSecret: cfg.EditorPersonalSecret,
		APIVersion:     cfg.APIVersion,
	}
	tokens := inbenta.NewTokenManager(creds, inbenta.ScopeEditor, inbenta.TokenManagerOptions{
		BaseURL: cfg.AuthBaseURL,
		Cache:   cache,
	})
	editor := inbenta.NewEditorClient(creds, tokens, nil)
	store := corpus.NewPostgresStore(db)

	return sync.NewEngine(editor, store), cleanup, nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
