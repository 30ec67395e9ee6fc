package aibackend

import (
	"fmt"

	"github.com/Shahrukh072/ai-backend/checkpoint"
	"github.com/Shahrukh072/ai-backend/config"
	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/engine"
	"github.com/Shahrukh072/ai-backend/logging"
	"github.com/Shahrukh072/ai-backend/model"
	"github.com/Shahrukh072/ai-backend/retrieval"
	"github.com/Shahrukh072/ai-backend/safety"
)

// NewFromConfig builds a Backend from a loaded configuration. The embedder
// still defaults to the in-process hashing embedder; supply a remote one via
// optFns when the configured embedding model should actually be used.
func NewFromConfig(cfg *config.Config, m model.Model, optFns ...func(o *Options)) (*Backend, error) {
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	var store core.CheckpointStore
	switch cfg.Checkpoint.Backend {
	case "libsql":
		s, err := checkpoint.OpenLibSQL(cfg.Checkpoint.Path)
		if err != nil {
			return nil, fmt.Errorf("checkpoint backend: %w", err)
		}
		store = s
	case "", "memory":
		store = checkpoint.NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}

	var filter safety.Filter = safety.NewRuleFilter(func(o *safety.Options) {
		o.ToxicityThreshold = cfg.Guardrails.MaxToxicityScore
		o.DetectPII = cfg.Guardrails.PIIDetection
	})
	if !cfg.Guardrails.Enabled {
		filter = safety.NoOpFilter{}
	}

	base := func(o *Options) {
		o.EngineConfig = engine.Config{
			MaxIterations:      cfg.Agent.MaxIterations,
			RetrievalEnabled:   cfg.Retrieval.Enabled,
			ContextTokenBudget: cfg.Retrieval.ContextTokenBudget,
			ReasoningTimeout:   cfg.Agent.ReasoningTimeout,
			ToolTimeout:        cfg.Agent.ToolTimeout,
			MaxParallelTools:   cfg.Agent.MaxParallelTools,
			RetryBackoff:       cfg.Agent.RetryBackoff,
			MaxHistoryMessages: cfg.Agent.MaxHistoryMessages,
			SystemPrompt:       cfg.Agent.SystemPrompt,
		}
		o.RetrievalOptions = append(o.RetrievalOptions, func(r *retrieval.Options) {
			r.TopK = cfg.Retrieval.TopK
			r.SimilarityThreshold = cfg.Retrieval.SimilarityThreshold
			r.ChunkSize = cfg.Retrieval.ChunkSize
			r.ChunkOverlap = cfg.Retrieval.ChunkOverlap
		})
		o.Checkpoints = store
		o.Filter = filter
		o.Logger = logger
	}

	return New(m, append([]func(o *Options){base}, optFns...)...), nil
}
