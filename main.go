package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	orchestratorx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/agents/specialist"
	apix "github.com/tanpawarit/Chative-Shopping-Assistant/agent/api"
	approvalx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/approval"
	cartx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/cart"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/llm"
	searchx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/search"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
	toolx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/tool"
	configx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/config"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
	_ "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/qstash"
	redisx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/redis"
)

const (
	modeCLI   = "cli"
	modeServe = "serve"

	backendMemory  = "memory"
	backendRedis   = "redis"
	backendUpstash = "upstash"
)

type AppConfig struct {
	MaxSteps      int `envconfig:"MAX_STEPS" split_words:"true" default:"25"`
	DefaultUserID int `envconfig:"DEFAULT_USER_ID" split_words:"true"`
}

type StateConfig struct {
	Backend   string        `envconfig:"BACKEND" split_words:"true" default:"memory"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

// app holds the wired components shared by both run modes.
type app struct {
	orchestrator *orchestratorx.Orchestrator
	carts        *cartx.Store
	catalog      *catalogx.Catalog
	verifier     apix.SignatureVerifier
}

func main() {
	mode := modeCLI
	if args := configx.Args(); len(args) > 0 {
		mode = strings.ToLower(strings.TrimSpace(args[0]))
	}

	ctx := context.Background()
	a, err := build(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to start shopping assistant")
	}

	switch mode {
	case modeCLI:
		err = runCLI(ctx, a, os.Stdin, os.Stdout)
	case modeServe:
		err = runServer(ctx, a)
	default:
		err = fmt.Errorf("unknown mode %q, want %q or %q", mode, modeCLI, modeServe)
	}
	if err != nil {
		logx.Fatal().Err(err).Str("mode", mode).Msg("shopping assistant stopped")
	}
}

func build(ctx context.Context) (*app, error) {
	appCfg := configx.MustNew[AppConfig]("APP")

	catalogCfg := configx.MustNew[catalogx.Config]("CATALOG")
	catalog, err := catalogx.LoadDir(catalogCfg.DataDir, !catalogCfg.SkipHistory)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logx.Info().
		Str("dir", catalogCfg.DataDir).
		Int("products", catalog.Len()).
		Msg("catalog loaded")

	llmCfg := configx.MustNew[llmx.Config]("LLM")

	embeddingCfg := configx.MustNew[searchx.EmbeddingConfig]("EMBEDDING")
	searcher, err := buildSearcher(ctx, *llmCfg, *embeddingCfg, catalog)
	if err != nil {
		return nil, err
	}

	carts := cartx.NewStore()
	gateway, err := toolx.NewGateway(toolx.Deps{
		Catalog:    catalog,
		Carts:      carts,
		Searcher:   searcher,
		SearchTopK: embeddingCfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("create tool gateway: %w", err)
	}

	registry, err := specialistx.NewRegistry(ctx, *llmCfg, gateway)
	if err != nil {
		return nil, fmt.Errorf("create agents: %w", err)
	}

	store, err := buildStore(ctx, *configx.MustNew[StateConfig]("STATE"))
	if err != nil {
		return nil, err
	}

	notifier, verifier, err := buildApproval()
	if err != nil {
		return nil, err
	}

	orchCfg := orchestratorx.Config{MaxSteps: appCfg.MaxSteps}
	if appCfg.DefaultUserID > 0 {
		uid := appCfg.DefaultUserID
		orchCfg.DefaultUserID = &uid
	} else if uid, ok := catalog.DefaultUserID(); ok {
		orchCfg.DefaultUserID = &uid
	}

	orchestrator, err := orchestratorx.New(store, registry, gateway, notifier, orchCfg)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	return &app{
		orchestrator: orchestrator,
		carts:        carts,
		catalog:      catalog,
		verifier:     verifier,
	}, nil
}

// buildSearcher embeds the catalog when embeddings are enabled and falls back
// to the keyword index otherwise.
func buildSearcher(ctx context.Context, llmCfg llmx.Config, embeddingCfg searchx.EmbeddingConfig, catalog *catalogx.Catalog) (searchx.Searcher, error) {
	docs := searchx.DocumentsFromCatalog(catalog)

	if !embeddingCfg.Enabled {
		logx.Info().Int("documents", len(docs)).Msg("using keyword product search")
		return searchx.NewKeywordIndex(docs), nil
	}

	client := openrouterx.NewClient(llmCfg.OpenRouterFor(contractx.AgentTypeSales))
	embedder, err := searchx.NewOpenAIEmbedder(client, embeddingCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	index, err := searchx.BuildVectorIndex(ctx, embedder, docs, embeddingCfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	logx.Info().
		Int("documents", len(docs)).
		Str("model", embeddingCfg.Model).
		Msg("vector product search ready")
	return index, nil
}

func buildStore(ctx context.Context, cfg StateConfig) (statex.Store, error) {
	var opts []statex.StoreOption
	if cfg.KeyPrefix != "" {
		opts = append(opts, statex.WithKeyPrefix(cfg.KeyPrefix))
	}
	opts = append(opts, statex.WithTTL(cfg.TTL))

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	logx.Info().Str("backend", backend).Msg("conversation store selected")

	switch backend {
	case "", backendMemory:
		return statex.NewMemoryStore(), nil
	case backendRedis:
		redisCfg := configx.MustNew[redisx.Config]("REDIS")
		client, err := redisCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return statex.NewRedisStore(client, opts...)
	case backendUpstash:
		upstashCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH")
		return statex.NewUpstashRedisStore(*upstashCfg, opts...)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// buildApproval wires QStash delivery of approval requests when both a token
// and a destination are configured.
func buildApproval() (contractx.ApprovalNotifier, apix.SignatureVerifier, error) {
	approvalCfg := configx.MustNew[approvalx.Config]("APPROVAL")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	if strings.TrimSpace(qstashCfg.Token) == "" || strings.TrimSpace(approvalCfg.Destination) == "" {
		logx.Info().Msg("approval notifications disabled")
		return nil, nil, nil
	}

	client, err := qstashx.NewClient(*qstashCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create qstash client: %w", err)
	}
	notifier, err := approvalx.NewQStashNotifier(client, approvalCfg.Destination)
	if err != nil {
		return nil, nil, err
	}
	if qstashCfg.CurrentSigningKey == "" && qstashCfg.NextSigningKey == "" {
		return notifier, nil, nil
	}
	return notifier, client, nil
}
