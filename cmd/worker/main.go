package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minescope/backend/internal/jobs"
	"github.com/minescope/backend/internal/queue"
	"github.com/minescope/backend/internal/storage"
	"github.com/minescope/backend/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/minescope/backend/pkg/ai"
	oai "github.com/minescope/backend/pkg/ai/ollama"
	gai "github.com/minescope/backend/pkg/ai/openai"
	"github.com/minescope/backend/pkg/chunker"
	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/extract"
	"github.com/minescope/backend/pkg/ingest"
	"github.com/minescope/backend/pkg/leaselock"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/logger/console"
	"github.com/minescope/backend/pkg/ontology"
	"github.com/minescope/backend/pkg/store"
	pgxstore "github.com/minescope/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

const maxRetries = 10

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)
	payloads := storage.NewPayloads(s3Client)

	aiClient := newAIClient()

	// Init pgx client
	poolCfg, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to parse database config", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// Ingestion pipeline
	chk, err := chunker.New(chunker.Params{
		MaxTokens:     util.GetEnvInt("CHUNK_MAX_TOKENS", 0),
		OverlapTokens: util.GetEnvInt("CHUNK_OVERLAP_TOKENS", 0),
	})
	if err != nil {
		logger.Fatal("Failed to create chunker", "err", err)
	}

	embedder, err := embed.NewEmbedder(ctx, aiClient)
	if err != nil {
		logger.Fatal("Failed to probe embedding model", "err", err)
	}

	ont := loadOntology()
	sparse := embed.NewSparseEncoder(ont.VocabularyTerms())

	var model extract.Extractor
	if util.GetEnv("AI_CHAT_EXTRACT_MODEL") != "" {
		model = extract.NewModelExtractor(aiClient)
	}
	extractor := extract.NewPipeline(model, extract.NewFallbackExtractor())

	pgStorage := pgxstore.NewStorageWithConnection(pgConn)

	indexDim, err := pgStorage.VectorDimension(ctx)
	if err != nil {
		logger.Fatal("Failed to read vector index dimension", "err", err)
	}
	if err := store.VerifyDimension(indexDim, embedder.Dim()); err != nil {
		logger.Fatal("Embedding model does not match the vector index", "err", err)
	}

	pipeline := ingest.NewPipeline(ingest.Params{
		Chunker:     chk,
		Embedder:    embedder,
		Sparse:      sparse,
		Extractor:   extractor,
		Vectors:     pgStorage,
		Graph:       pgStorage,
		Ontology:    ont,
		Concurrency: util.GetEnvInt("INGEST_CONCURRENCY", 4),
	})

	jobStore := jobs.NewStore(pgConn)
	locks := leaselock.New(pgConn)

	logger.Info("Listening for messages")

	// Create a single consumer channel with prefetch=1 so only one message
	// is delivered at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.IngestQueue:
					processingErr = queue.ProcessIngestMessage(ctx, payloads, pipeline, jobStore, locks, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName, maxRetries)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

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
			logger.Fatal("Could not create Ollama client", "err", err)
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
