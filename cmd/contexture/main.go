// Command contexture is a CLI front-end for the retrieval engine:
// index documents, run the retrieval pipeline, ask the iterative agent,
// vote on chunk relevance, and manage the document store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contexture-ai/contexture"
	"github.com/contexture-ai/contexture/ingest"
	"github.com/contexture-ai/contexture/internal/config"
	"github.com/contexture-ai/contexture/observer"
	"github.com/contexture-ai/contexture/provider/openaicompat"
	"github.com/contexture-ai/contexture/store/postgres"
	"github.com/contexture-ai/contexture/store/sqlite"
)

const usage = `Usage: contexture <command> [args]

Commands:
  index <file>        chunk, embed, and index a text file
  query <question>    run the retrieval pipeline and print the answer context
  ask <question>      let the iterative agent answer using search tools
  vote <chunk-id> <up|down>   record relevance feedback for a chunk
  list                list indexed documents
  delete <doc-id>     delete a document and everything derived from it

Config is read from contexture.toml (override with CONTEXTURE_CONFIG).`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(os.Getenv("CONTEXTURE_CONFIG"))
	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, command string, args []string) error {
	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup(ctx)

	switch command {
	case "index":
		return cmdIndex(ctx, deps, cfg, args)
	case "query":
		return cmdQuery(ctx, deps, cfg, args)
	case "ask":
		return cmdAsk(ctx, deps, cfg, args)
	case "vote":
		return cmdVote(ctx, deps, args)
	case "list":
		return cmdList(ctx, deps)
	case "delete":
		return cmdDelete(ctx, deps, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// deps holds the wired components shared by all commands.
type deps struct {
	index     contexture.Index
	embedder  contexture.Embedder
	generator contexture.Generator
	inst      *observer.Instruments
	logger    *slog.Logger
}

// buildDeps wires providers and the store from config. PostgresURL selects
// the remote backend; otherwise the local sqlite file is used.
func buildDeps(ctx context.Context, cfg config.Config) (deps, func(context.Context), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	llmClient := openaicompat.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	embClient := llmClient
	if cfg.Embedding.BaseURL != cfg.LLM.BaseURL || cfg.Embedding.APIKey != cfg.LLM.APIKey {
		embClient = openaicompat.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	}

	var embedder contexture.Embedder = openaicompat.NewEmbedding(embClient, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	var generator contexture.Generator = openaicompat.NewGeneration(llmClient, cfg.LLM.Model)

	cleanup := func(context.Context) {}
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return deps{}, nil, fmt.Errorf("init observer: %w", err)
		}
		embedder = observer.WrapEmbedding(embedder, cfg.Embedding.Model, inst)
		generator = observer.WrapGeneration(generator, cfg.LLM.Model, inst)
		cleanup = func(ctx context.Context) { _ = shutdown(ctx) }
	}

	fusion := contexture.FusionParams{
		Alpha:          cfg.Retrieval.Alpha,
		Threshold:      cfg.Retrieval.Threshold,
		LexicalBonus:   cfg.Retrieval.LexicalBonus,
		LexicalPenalty: cfg.Retrieval.LexicalPenalty,
	}

	var index contexture.Index
	if cfg.Database.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			cleanup(ctx)
			return deps{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		index = postgres.New(pool,
			postgres.WithLogger(logger),
			postgres.WithFusionParams(fusion),
			postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions),
		)
		prev := cleanup
		cleanup = func(ctx context.Context) { pool.Close(); prev(ctx) }
	} else {
		store := sqlite.New(cfg.Database.Path,
			sqlite.WithLogger(logger),
			sqlite.WithFusionParams(fusion),
		)
		index = store
		prev := cleanup
		cleanup = func(ctx context.Context) { _ = store.Close(); prev(ctx) }
	}

	if err := index.Init(ctx); err != nil {
		cleanup(ctx)
		return deps{}, nil, fmt.Errorf("init store: %w", err)
	}

	return deps{index: index, embedder: embedder, generator: generator, inst: inst, logger: logger}, cleanup, nil
}

func cmdIndex(ctx context.Context, d deps, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	title := fs.String("title", "", "document title (default: file name)")
	source := fs.String("source", "", "document source label")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("index: expected one file argument")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if *title == "" {
		*title = path
	}
	if *source == "" {
		*source = path
	}

	indexer := ingest.NewIndexer(d.index, d.embedder,
		ingest.WithChunker(ingest.NewHierarchicalChunker(
			ingest.WithSmallChunkSize(cfg.Chunking.SmallChunkSize),
			ingest.WithParentChunkSize(cfg.Chunking.ParentChunkSize),
		)),
		ingest.WithSparseEncoder(contexture.NewSparseEncoder(
			contexture.WithSparseDimension(uint32(cfg.Sparse.Dimension)),
		)),
		ingest.WithIndexerLogger(d.logger),
	)

	n, err := indexer.IndexDocument(ctx, string(data), map[string]string{
		"title":  *title,
		"source": *source,
	})
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	fmt.Printf("indexed %s: %d chunks\n", path, n)
	return nil
}

func cmdQuery(ctx context.Context, d deps, cfg config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("query: expected one question argument")
	}

	pipeline := contexture.NewPipeline(d.index, d.embedder, d.generator,
		contexture.WithTopK(cfg.Retrieval.TopK),
		contexture.WithRerankTopK(cfg.Retrieval.RerankTopK),
		contexture.WithPipelineLogger(d.logger),
	)

	var progress contexture.Progress
	if d.inst != nil {
		progress = observer.StageProgress(ctx, d.inst)
	}

	answer, err := pipeline.Run(ctx, args[0], progress)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	fmt.Printf("mode: %s\n", answer.Mode)
	if answer.Mode == contexture.ModeDirect {
		fmt.Println("no retrieval needed for this query")
		return nil
	}
	fmt.Println()
	fmt.Println(answer.Context)
	if len(answer.Sources) > 0 {
		fmt.Println("\nsources:")
		for _, src := range answer.Sources {
			fmt.Printf("  %s\n", src.ID)
		}
	}
	return nil
}

func cmdAsk(ctx context.Context, d deps, cfg config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("ask: expected one question argument")
	}

	agent := contexture.NewAgent(d.index, d.embedder, d.generator,
		contexture.WithMaxIterations(cfg.Agent.MaxIterations),
		contexture.WithAgentLogger(d.logger),
	)
	answer, err := agent.Answer(ctx, args[0])
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	fmt.Println(answer)
	return nil
}

func cmdVote(ctx context.Context, d deps, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("vote: expected <chunk-id> <up|down>")
	}
	var vote contexture.Vote
	switch args[1] {
	case "up":
		vote = contexture.VoteUp
	case "down":
		vote = contexture.VoteDown
	default:
		return fmt.Errorf("vote: direction must be up or down, got %q", args[1])
	}

	fb, ok := d.index.(contexture.FeedbackStore)
	if !ok {
		return fmt.Errorf("vote: store does not support relevance feedback")
	}
	b, err := fb.UpdateChunkRelevance(ctx, args[0], vote)
	if err != nil {
		return fmt.Errorf("update relevance: %w", err)
	}
	fmt.Printf("chunk %s: boost %.3f after %d votes\n", b.ChunkID, b.Boost, b.Votes)
	return nil
}

func cmdList(ctx context.Context, d deps) error {
	docs, err := d.index.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("no documents indexed")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%s  %s (%s)\n", doc.ID, doc.Title, doc.Source)
	}
	return nil
}

func cmdDelete(ctx context.Context, d deps, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete: expected one document-id argument")
	}
	if err := d.index.DeleteDocument(ctx, args[0]); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}
