package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/truthcast/pkg/adapter"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/service/admission"
	"github.com/m-mizutani/truthcast/pkg/service/cache"
	"github.com/m-mizutani/truthcast/pkg/service/content"
	"github.com/m-mizutani/truthcast/pkg/service/policy"
	"github.com/m-mizutani/truthcast/pkg/service/stages"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
	"github.com/m-mizutani/truthcast/pkg/usecase/generate"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	logLevel   string
	configPath string

	// Store
	firestoreProject  string
	firestoreDatabase string
	sqlitePath        string

	// LLM and knowledge base
	geminiProject  string
	geminiLocation string
	geminiModel    string
	kbDataset      string
	kbTable        string

	// Intake policy
	policyDir string

	// Tunables
	concurrency   int64
	admissionWait time.Duration
	snapshotTTL   time.Duration
	generationTTL time.Duration
	cacheSize     int64
	streamBuffer  int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("TRUTHCAST_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file providing defaults",
			Sources:     cli.EnvVars("TRUTHCAST_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for the Firestore store",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Path to the SQLite store (used when no Firestore project is set)",
			Sources:     cli.EnvVars("TRUTHCAST_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
	}
}

// llmFlags returns flags for pipeline-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model name",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "kb-dataset",
			Usage:       "BigQuery dataset of the evidence knowledge base",
			Sources:     cli.EnvVars("TRUTHCAST_KB_DATASET"),
			Destination: &cfg.kbDataset,
		},
		&cli.StringFlag{
			Name:        "kb-table",
			Usage:       "BigQuery table of the evidence knowledge base",
			Sources:     cli.EnvVars("TRUTHCAST_KB_TABLE"),
			Destination: &cfg.kbTable,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego intake policies",
			Sources:     cli.EnvVars("TRUTHCAST_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// tuningFlags returns the pipeline tunables with destination config
func tuningFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Maximum concurrent pipeline stage calls",
			Value:       admission.DefaultSlots,
			Sources:     cli.EnvVars("TRUTHCAST_CONCURRENCY"),
			Destination: &cfg.concurrency,
		},
		&cli.DurationFlag{
			Name:        "admission-wait",
			Usage:       "Maximum wait for an admission slot",
			Value:       admission.DefaultWait,
			Sources:     cli.EnvVars("TRUTHCAST_ADMISSION_WAIT"),
			Destination: &cfg.admissionWait,
		},
		&cli.DurationFlag{
			Name:        "snapshot-ttl",
			Usage:       "TTL of the risk snapshot cache",
			Value:       cache.DefaultTTL,
			Sources:     cli.EnvVars("TRUTHCAST_SNAPSHOT_TTL"),
			Destination: &cfg.snapshotTTL,
		},
		&cli.DurationFlag{
			Name:        "generation-ttl",
			Usage:       "TTL of the generation cache",
			Value:       cache.DefaultTTL,
			Sources:     cli.EnvVars("TRUTHCAST_GENERATION_TTL"),
			Destination: &cfg.generationTTL,
		},
		&cli.IntFlag{
			Name:        "cache-size",
			Usage:       "Maximum entries per cache",
			Value:       cache.DefaultMaxSize,
			Sources:     cli.EnvVars("TRUTHCAST_CACHE_SIZE"),
			Destination: &cfg.cacheSize,
		},
		&cli.IntFlag{
			Name:        "stream-buffer",
			Usage:       "Per-connection event buffer size",
			Value:       chat.DefaultStreamBuffer,
			Sources:     cli.EnvVars("TRUTHCAST_STREAM_BUFFER"),
			Destination: &cfg.streamBuffer,
		},
	}
}

func coreFlags(cfg *config) []cli.Flag {
	flags := globalFlags(cfg)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, tuningFlags(cfg)...)
	return flags
}

// fileConfig mirrors config for the YAML file. Pointer fields distinguish
// absent keys from zero values.
type fileConfig struct {
	LogLevel          *string        `yaml:"log_level"`
	FirestoreProject  *string        `yaml:"firestore_project"`
	FirestoreDatabase *string        `yaml:"firestore_database"`
	SQLitePath        *string        `yaml:"sqlite_path"`
	GeminiProject     *string        `yaml:"gemini_project"`
	GeminiLocation    *string        `yaml:"gemini_location"`
	GeminiModel       *string        `yaml:"gemini_model"`
	KBDataset         *string        `yaml:"kb_dataset"`
	KBTable           *string        `yaml:"kb_table"`
	PolicyDir         *string        `yaml:"policy_dir"`
	Concurrency       *int64         `yaml:"concurrency"`
	AdmissionWait     *time.Duration `yaml:"admission_wait"`
	SnapshotTTL       *time.Duration `yaml:"snapshot_ttl"`
	GenerationTTL     *time.Duration `yaml:"generation_ttl"`
	CacheSize         *int64         `yaml:"cache_size"`
	StreamBuffer      *int64         `yaml:"stream_buffer"`
}

// loadFile overlays YAML values for every flag the user did not set
// explicitly. Flag and environment values always win over the file.
func (cfg *config) loadFile(cmd *cli.Command) error {
	if cfg.configPath == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
	}

	overlay(cmd, "log-level", &cfg.logLevel, fc.LogLevel)
	overlay(cmd, "firestore-project", &cfg.firestoreProject, fc.FirestoreProject)
	overlay(cmd, "firestore-database", &cfg.firestoreDatabase, fc.FirestoreDatabase)
	overlay(cmd, "sqlite-path", &cfg.sqlitePath, fc.SQLitePath)
	overlay(cmd, "gemini-project", &cfg.geminiProject, fc.GeminiProject)
	overlay(cmd, "gemini-location", &cfg.geminiLocation, fc.GeminiLocation)
	overlay(cmd, "gemini-model", &cfg.geminiModel, fc.GeminiModel)
	overlay(cmd, "kb-dataset", &cfg.kbDataset, fc.KBDataset)
	overlay(cmd, "kb-table", &cfg.kbTable, fc.KBTable)
	overlay(cmd, "policy-dir", &cfg.policyDir, fc.PolicyDir)
	overlay(cmd, "concurrency", &cfg.concurrency, fc.Concurrency)
	overlay(cmd, "admission-wait", &cfg.admissionWait, fc.AdmissionWait)
	overlay(cmd, "snapshot-ttl", &cfg.snapshotTTL, fc.SnapshotTTL)
	overlay(cmd, "generation-ttl", &cfg.generationTTL, fc.GenerationTTL)
	overlay(cmd, "cache-size", &cfg.cacheSize, fc.CacheSize)
	overlay(cmd, "stream-buffer", &cfg.streamBuffer, fc.StreamBuffer)

	return nil
}

func overlay[T any](cmd *cli.Command, name string, dst *T, src *T) {
	if src != nil && !cmd.IsSet(name) {
		*dst = *src
	}
}

// setup loads the config file and installs the logger into the context.
// Every command action calls it first.
func (cfg *config) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := cfg.loadFile(cmd); err != nil {
		return ctx, err
	}

	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newStore picks the history store backend: Firestore when a project is
// configured, SQLite when a path is, otherwise in-memory.
func (cfg *config) newStore(ctx context.Context) (repository.Repository, error) {
	switch {
	case cfg.firestoreProject != "":
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore store")
		}
		return repo, nil

	case cfg.sqlitePath != "":
		repo, err := repository.NewSQLite(cfg.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create sqlite store")
		}
		return repo, nil

	default:
		logging.From(ctx).Warn("no store configured, records are kept in memory only")
		return repository.NewMemory(), nil
	}
}

// newGemini creates the Gemini adapter
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newPipeline builds the stage pipeline, attaching the BigQuery evidence
// knowledge base when configured. The Gemini adapter is returned alongside
// so other services can share the client.
func (cfg *config) newPipeline(ctx context.Context) (stages.Pipeline, adapter.Gemini, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, nil, err
	}

	var opts []stages.Option
	if cfg.kbDataset != "" && cfg.kbTable != "" {
		kb, err := adapter.NewBigQueryKB(ctx, cfg.geminiProject, cfg.kbDataset, cfg.kbTable)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create evidence knowledge base")
		}
		opts = append(opts, stages.WithEvidenceKB(kb))
	}

	return stages.New(gemini, opts...), gemini, nil
}

// newAdmission builds the admission controller. One instance per process:
// every service doing expensive inference shares it.
func (cfg *config) newAdmission() *admission.Controller {
	return admission.New(int(cfg.concurrency), admission.WithWait(cfg.admissionWait))
}

// services bundles what the transport commands wire together.
type services struct {
	chat    *chat.Service
	content *generate.Service
	repo    repository.Repository
}

// newServices assembles the chat and content services over one store, one
// Gemini client, and one shared admission controller.
func (cfg *config) newServices(ctx context.Context) (*services, error) {
	repo, err := cfg.newStore(ctx)
	if err != nil {
		return nil, err
	}

	pipeline, gemini, err := cfg.newPipeline(ctx)
	if err != nil {
		return nil, err
	}

	gate, err := policy.New(ctx, cfg.policyDir)
	if err != nil {
		return nil, err
	}

	ctrl := cfg.newAdmission()
	chatSvc := chat.New(chat.NewInput{
		Repo:            repo,
		Pipeline:        pipeline,
		Admission:       ctrl,
		Gate:            gate,
		SnapshotCache:   cache.New("snapshot", int(cfg.cacheSize), cfg.snapshotTTL),
		GenerationCache: cache.New("generation", int(cfg.cacheSize), cfg.generationTTL),
	})

	return &services{
		chat:    chatSvc,
		content: generate.New(repo, content.New(gemini), ctrl),
		repo:    repo,
	}, nil
}
