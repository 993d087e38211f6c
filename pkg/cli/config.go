package cli

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/adapter"
	"github.com/m-mizutani/lorekeeper/pkg/repository"
	"github.com/m-mizutani/lorekeeper/pkg/usecase/knowledge"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	storeAuto      = "auto"
	storeSQLite    = "sqlite"
	storeChroma    = "chroma"
	storeFirestore = "firestore"
	storeMilvus    = "milvus"
	storeMemory    = "memory"

	embedderHash   = "hash"
	embedderGemini = "gemini"
	embedderOllama = "ollama"
)

// config holds configuration values
type config struct {
	// Vector store
	chromaPath        string
	store             string
	firestoreProject  string
	firestoreDatabase string
	milvusAddress     string

	// Embedding
	embedder       string
	dimensions     int64
	geminiProject  string
	geminiLocation string
	ollamaURL      string
	ollamaModel    string

	logLevel string
}

// storeFlags returns flags selecting and addressing the vector store
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "chroma-path",
			Usage:       "Vector store location: a directory for the local store or a Chroma server URL",
			Value:       "./chroma-data",
			Sources:     cli.EnvVars("CHROMA_PATH"),
			Destination: &cfg.chromaPath,
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Vector store backend (auto, sqlite, chroma, firestore, milvus, memory)",
			Value:       storeAuto,
			Sources:     cli.EnvVars("LOREKEEPER_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for Firestore",
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
			Name:        "milvus-address",
			Usage:       "Milvus server address",
			Value:       "localhost:19530",
			Sources:     cli.EnvVars("MILVUS_ADDRESS"),
			Destination: &cfg.milvusAddress,
		},
	}
}

// embedderFlags returns flags for the embedding model
func embedderFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding model (hash, gemini, ollama)",
			Value:       embedderHash,
			Sources:     cli.EnvVars("LOREKEEPER_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Usage:       "Embedding vector size for hash and gemini embedders",
			Value:       768,
			Sources:     cli.EnvVars("LOREKEEPER_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.dimensions,
		},
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
			Name:        "ollama-url",
			Usage:       "Ollama server URL",
			Value:       "http://localhost:11434",
			Sources:     cli.EnvVars("OLLAMA_URL"),
			Destination: &cfg.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "ollama-model",
			Usage:       "Ollama embedding model",
			Value:       "nomic-embed-text",
			Sources:     cli.EnvVars("OLLAMA_MODEL"),
			Destination: &cfg.ollamaModel,
		},
	}
}

// logFlags returns the logging flags
func logFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LOREKEEPER_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// knowledgeFlags bundles everything needed to build a knowledge client
func knowledgeFlags(cfg *config) []cli.Flag {
	flags := storeFlags(cfg)
	flags = append(flags, embedderFlags(cfg)...)
	flags = append(flags, logFlags(cfg)...)
	return flags
}

// withLogger installs a stderr logger at the configured level into ctx
func (cfg *config) withLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// storeKind resolves "auto" into a concrete backend name
func (cfg *config) storeKind() (string, error) {
	switch cfg.store {
	case storeAuto, "":
		if isURL(cfg.chromaPath) {
			return storeChroma, nil
		}
		return storeSQLite, nil
	case storeSQLite, storeChroma, storeFirestore, storeMilvus, storeMemory:
		return cfg.store, nil
	default:
		return "", goerr.New("unsupported store",
			goerr.V("store", cfg.store),
			goerr.V("supported", []string{storeAuto, storeSQLite, storeChroma, storeFirestore, storeMilvus, storeMemory}))
	}
}

// newConnector returns a connector opening the configured backend. Nothing is
// opened until the knowledge client first needs the store.
func (cfg *config) newConnector() (knowledge.Connector, error) {
	kind, err := cfg.storeKind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case storeSQLite:
		if cfg.chromaPath == "" {
			return nil, goerr.New("chroma-path is required for sqlite store")
		}
		path := cfg.chromaPath
		return func(ctx context.Context) (repository.Repository, error) {
			return repository.NewSQLite(path)
		}, nil

	case storeChroma:
		if !isURL(cfg.chromaPath) {
			return nil, goerr.New("chroma store requires an http(s) chroma-path", goerr.V("chroma-path", cfg.chromaPath))
		}
		url := cfg.chromaPath
		return func(ctx context.Context) (repository.Repository, error) {
			return repository.NewChroma(url)
		}, nil

	case storeFirestore:
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required for firestore store")
		}
		if cfg.firestoreDatabase == "" {
			return nil, goerr.New("firestore-database is required for firestore store")
		}
		project, database := cfg.firestoreProject, cfg.firestoreDatabase
		return func(ctx context.Context) (repository.Repository, error) {
			return repository.New(project, database)
		}, nil

	case storeMilvus:
		if cfg.milvusAddress == "" {
			return nil, goerr.New("milvus-address is required for milvus store")
		}
		address := cfg.milvusAddress
		return func(ctx context.Context) (repository.Repository, error) {
			return repository.NewMilvus(ctx, address)
		}, nil

	default:
		repo := repository.NewMemory()
		return func(ctx context.Context) (repository.Repository, error) {
			return repo, nil
		}, nil
	}
}

// newEmbedder creates the configured embedding adapter
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	switch cfg.embedder {
	case embedderHash, "":
		return adapter.NewHashEmbedder(int(cfg.dimensions)), nil

	case embedderGemini:
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithDimensions(int(cfg.dimensions)))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini embedder")
		}
		return gemini, nil

	case embedderOllama:
		if cfg.ollamaURL == "" {
			return nil, goerr.New("ollama-url is required")
		}
		return adapter.NewOllama(cfg.ollamaURL, cfg.ollamaModel), nil

	default:
		return nil, goerr.New("unsupported embedder",
			goerr.V("embedder", cfg.embedder),
			goerr.V("supported", []string{embedderHash, embedderGemini, embedderOllama}))
	}
}

// newKnowledge wires the embedder and the store connector into a knowledge client
func (cfg *config) newKnowledge(ctx context.Context) (*knowledge.Client, error) {
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	connect, err := cfg.newConnector()
	if err != nil {
		return nil, err
	}

	return knowledge.New(connect, embedder), nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}
