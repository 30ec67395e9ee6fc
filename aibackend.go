// Package aibackend provides a high-level façade over the turn engine and
// its supporting services (retrieval, safety, checkpoints, tools). Most
// applications interact with this package by:
//  1. Creating a Backend via New() (optionally overriding default in-memory services)
//  2. Registering tools and ingesting documents
//  3. Running conversation turns with RunTurn
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a remote embedder, a
// durable checkpoint store and a structured logger.
package aibackend

import (
	"context"

	"github.com/Shahrukh072/ai-backend/checkpoint"
	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/engine"
	"github.com/Shahrukh072/ai-backend/logging"
	"github.com/Shahrukh072/ai-backend/model"
	"github.com/Shahrukh072/ai-backend/retrieval"
	"github.com/Shahrukh072/ai-backend/safety"
	"github.com/Shahrukh072/ai-backend/tool"
)

// Options configures the Backend instance.
type Options struct {
	// EngineConfig bounds each turn (iterations, timeouts, history window).
	EngineConfig engine.Config

	// Embedder powers the retrieval pipeline. Defaults to the deterministic
	// hashing embedder, which needs no network access.
	Embedder retrieval.Embedder

	// Index stores embedded chunks. Defaults to an in-memory index matching
	// the embedder's dimension.
	Index retrieval.VectorIndex

	// RetrievalOptions customize the pipeline (top_k, threshold, compressor).
	RetrievalOptions []func(o *retrieval.Options)

	// Checkpoints persists thread state. Defaults to the in-memory store.
	Checkpoints core.CheckpointStore

	// Filter screens input and output. Defaults to the rule based filter.
	Filter safety.Filter

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Backend is the high-level façade aggregating the engine and its services.
type Backend struct {
	engine   *engine.Engine
	pipeline *retrieval.Pipeline
	tools    *tool.Registry
}

// New creates a Backend around the given reasoning model. Any unset service
// is initialized with an in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) *Backend {
	opts := Options{
		EngineConfig: engine.Config{
			MaxIterations:      10,
			RetrievalEnabled:   true,
			ContextTokenBudget: 2000,
			MaxParallelTools:   4,
			MaxHistoryMessages: 20,
		},
		Checkpoints: checkpoint.NewInMemoryStore(),
		Filter:      safety.NewRuleFilter(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = retrieval.NewHashingEmbedder(256)
	}
	if opts.Index == nil {
		opts.Index = retrieval.NewInMemoryIndex(opts.Embedder.Dimension())
	}

	pipelineOpts := append([]func(o *retrieval.Options){func(o *retrieval.Options) {
		o.Logger = opts.Logger
	}}, opts.RetrievalOptions...)
	pipeline := retrieval.NewPipeline(opts.Embedder, opts.Index, pipelineOpts...)

	tools := tool.NewRegistry(tool.NewCalculator(), tool.NewCurrentTime())

	eng := engine.New(m, tools, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Checkpoints = opts.Checkpoints
		o.Retriever = pipeline
		o.Filter = opts.Filter
		o.Logger = opts.Logger
	})

	return &Backend{engine: eng, pipeline: pipeline, tools: tools}
}

// RegisterTool adds a tool to the registry used by every turn.
func (b *Backend) RegisterTool(t tool.Tool) { b.tools.Register(t) }

// IngestDocument splits, embeds and indexes a document under the user scope.
// It returns the number of chunks stored.
func (b *Backend) IngestDocument(ctx context.Context, userID, documentID, text string) (int, error) {
	return b.pipeline.Ingest(ctx, userID, documentID, text)
}

// RunTurn executes one conversation turn.
func (b *Backend) RunTurn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error) {
	return b.engine.RunTurn(ctx, req)
}

// Retrieval exposes the underlying pipeline, for example to bind the
// document search tool:
//
//	b.RegisterTool(tool.NewDocumentSearch(b.Retrieval(), userID, ""))
func (b *Backend) Retrieval() *retrieval.Pipeline { return b.pipeline }
