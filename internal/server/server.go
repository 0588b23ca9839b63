package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minescope/backend/internal/jobs"
	"github.com/minescope/backend/internal/queue"
	mid "github.com/minescope/backend/internal/server/middleware"
	"github.com/minescope/backend/internal/storage"
	"github.com/minescope/backend/internal/util"
	"github.com/minescope/backend/pkg/ai"
	oai "github.com/minescope/backend/pkg/ai/ollama"
	gai "github.com/minescope/backend/pkg/ai/openai"
	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/ontology"
	"github.com/minescope/backend/pkg/query"
	"github.com/minescope/backend/pkg/store"
	pgxstore "github.com/minescope/backend/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runMigrations()

	poolCfg, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to parse database config", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	aiClient := newAIClient()
	embedder, err := embed.NewEmbedder(ctx, aiClient)
	if err != nil {
		logger.Fatal("Failed to probe embedding model", "err", err)
	}

	ont := loadOntology()
	sparse := embed.NewSparseEncoder(ont.VocabularyTerms())

	pgStorage := pgxstore.NewStorageWithConnection(conn)

	indexDim, err := pgStorage.VectorDimension(ctx)
	if err != nil {
		logger.Fatal("Failed to read vector index dimension", "err", err)
	}
	if err := store.VerifyDimension(indexDim, embedder.Dim()); err != nil {
		logger.Fatal("Embedding model does not match the vector index", "err", err)
	}

	app := &mid.App{
		DBConn: conn,
		Queue:  ch,
		S3:     s3,
		Jobs:   jobs.NewStore(conn),
		Graph:  pgStorage,
		Query: query.NewOrchestrator(query.Params{
			Embedder: embedder,
			Sparse:   sparse,
			Vectors:  pgStorage,
			Graph:    pgStorage,
			Client:   aiClient,
			Ontology: ont,
		}),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("100M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// newAIClient builds the model client selected by AI_ADAPTER.
func newAIClient() ai.Client {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewClient(gai.NewClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentEmbeddings: int64(util.GetEnvInt("AI_PARALLEL_REQ", 4)),
		})
	}
}

// loadOntology returns the ontology from ONTOLOGY_PATH, or the built-in
// default when the variable is unset.
func loadOntology() *ontology.Ontology {
	path := util.GetEnv("ONTOLOGY_PATH")
	if path == "" {
		return ontology.Default()
	}
	ont, err := ontology.Load(path)
	if err != nil {
		logger.Fatal("Failed to load ontology", "path", path, "err", err)
	}
	logger.Info("Loaded ontology", "path", path, "schema_version", ont.SchemaVersion)
	return ont
}

func runMigrations() {
	path := util.GetEnvString("MIGRATIONS_PATH", "migrations")
	m, err := migrate.New("file://"+path, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}
