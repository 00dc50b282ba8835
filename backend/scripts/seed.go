package main

import (
	"context"
	"flag"
	"fmt"

	"kgraph/backend/internal/graph"
	"kgraph/backend/internal/service"
	"kgraph/backend/pkg/config"
	"kgraph/backend/pkg/logger"

	"go.uber.org/zap"
)

// Seeds the graph store with schema constraints and a small sample dataset,
// useful for local development and demos.
func main() {
	documentID := flag.String("document-id", "sample-journey", "Document id for the seeded batch")
	skipData := flag.Bool("schema-only", false, "Create constraints and indexes but skip the sample data")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph store seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	runner, err := graph.NewNeo4jRunner(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		log.Fatal("Failed to connect to graph store", zap.Error(err))
	}
	defer runner.Close(ctx)

	log.Info("Creating constraints and indexes...")
	if err := createSchema(ctx, runner); err != nil {
		log.Warn("Failed to create some schema objects (may already exist)", zap.Error(err))
	}

	if *skipData {
		log.Info("Schema-only run complete")
		return
	}

	repo := graph.NewRepository(runner,
		graph.WithMaxRetries(cfg.MaxRetries),
		graph.WithDeleteBatchSize(cfg.DeleteBatchSize),
	)
	svc := service.NewIngestService(repo, nil)

	rows, err := service.RowsFromTable(
		[]string{"case_id", "customer", "branch", "timestamp", "activity", "amount"},
		sampleRecords(),
	)
	if err != nil {
		log.Fatal("Failed to build sample rows", zap.Error(err))
	}

	result, err := svc.IngestRows(ctx, rows, *documentID)
	if err != nil {
		log.Fatal("Failed to ingest sample data", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.String("document_id", result.DocumentID),
		zap.Int("nodes", result.NodesCommitted),
		zap.Int("edges", result.EdgesCommitted),
	)
}

func createSchema(ctx context.Context, runner graph.QueryRunner) error {
	statements := []string{
		"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE",
		"CREATE INDEX entity_type IF NOT EXISTS FOR (n:Entity) ON (n.type)",
		"CREATE INDEX entity_doc IF NOT EXISTS FOR (n:Entity) ON (n.doc)",
		"CREATE INDEX entity_pk IF NOT EXISTS FOR (n:Entity) ON (n.pk)",
	}
	for _, statement := range statements {
		if _, err := runner.WriteQuery(ctx, statement, nil); err != nil {
			return err
		}
	}
	return nil
}

// sampleRecords is a compact customer journey with one fraud branch, enough
// to light up every sequence edge label
func sampleRecords() [][]string {
	return [][]string{
		{"1001", "C001", "B01", "2024-01-02", "Account Opened", "0"},
		{"1001", "C001", "B01", "2024-01-05", "Deposit Received", "2500"},
		{"1001", "C001", "B01", "2024-02-10", "Card Issued", "0"},
		{"1002", "C002", "B02", "2024-01-03", "Account Opened", "0"},
		{"1002", "C002", "B02", "2024-01-20", "Payment Fraud Detected", "940"},
		{"1002", "C002", "B02", "2024-01-25", "Account Closed", "0"},
	}
}
