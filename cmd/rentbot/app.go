package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rentbot/internal/chunker"
	"rentbot/internal/config"
	"rentbot/internal/domain"
	"rentbot/internal/embedding/hashing"
	"rentbot/internal/extract"
	"rentbot/internal/llm/extractive"
	"rentbot/internal/llm/openai"
	"rentbot/internal/logger"
	"rentbot/internal/registry/sqlite"
	"rentbot/internal/scope"
	"rentbot/internal/service"
	"rentbot/internal/summarizer"
)

// app holds the components assembled from the configuration.
type app struct {
	cfg      *config.AppConfig
	store    *sqlite.Store
	svc      *service.RAGService
	resolver *scope.Resolver
}

// newApp assembles the components. Commands that never answer questions pass
// answering=false and get the offline completer, so they work without an API key.
func newApp(cfg *config.AppConfig, answering bool) (*app, error) {
	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "window", "":
		ch = chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	provider := cfg.LLM.Provider
	if !answering {
		provider = "extractive"
	}
	var comp domain.Completer
	switch provider {
	case "openai", "":
		client, err := openai.NewClient(openai.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKeyEnv:   cfg.LLM.APIKeyEnv,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai completer init failed: %w", err)
		}
		logger.Debug("answering with openai model %s", client.ModelName())
		comp = client
	case "extractive":
		comp = extractive.New(2)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}

	store, err := sqlite.NewStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("registry at %s", store.Path())

	svc := service.NewRAGService(ch, hashing.New(cfg.Vectorizer.Dimension), extract.New(), comp,
		service.WithMaxTokens(cfg.LLM.MaxTokens),
		service.WithSummarizer(summarizer.NewFrequencySummarizer()),
	)
	a := &app{
		cfg:      cfg,
		store:    store,
		svc:      svc,
		resolver: scope.NewResolver(svc, store, cfg.Storage.UploadDir),
	}
	a.restorePersonal()
	return a, nil
}

func (a *app) Close() error { return a.store.Close() }

// restorePersonal installs the personal scope saved by the last upload.
func (a *app) restorePersonal() {
	path := a.cfg.Storage.SnapshotPath
	if _, err := os.Stat(path); err != nil {
		return
	}
	sc, err := service.LoadScope(path, a.svc.Dimension())
	if err != nil {
		logger.Warn("ignoring personal snapshot: %v", err)
		return
	}
	a.resolver.SetPersonal(sc)
	logger.Debug("restored personal scope with %d chunks", sc.Len())
}

// identity resolves a username to the identity scopes are resolved for.
// Without a username only the personal scope is visible.
func (a *app) identity(ctx context.Context, username string) (domain.Identity, error) {
	if username == "" {
		return domain.Identity{Role: domain.RoleTenant}, nil
	}
	u, err := a.store.FindUser(ctx, username)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: u.ID, Role: u.Role, HouseID: u.TenantHouseID}, nil
}

func personalDoc(path string, raw []byte) domain.Document {
	return domain.Document{SourceID: filepath.Base(path), Path: path, Kind: extract.KindFromFilename(path), Raw: raw}
}

// session binds the pipeline to one identity's scopes.
type session struct {
	app  *app
	id   domain.Identity
	topK int
}

func (s *session) Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	scopes, err := s.app.resolver.Resolve(ctx, s.id)
	if err != nil {
		return nil, err
	}
	return s.app.svc.Retrieve(ctx, question, s.topK, scopes...)
}

func (s *session) Generate(ctx context.Context, question string, results []domain.SearchResult) (string, error) {
	return s.app.svc.Generate(ctx, question, results)
}

// Ask answers question and returns the passages used.
func (s *session) Ask(ctx context.Context, question string) (string, []domain.SearchResult, error) {
	results, err := s.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	answer, err := s.Generate(ctx, question, results)
	return answer, results, err
}

// explain turns pipeline errors into messages for the terminal.
func explain(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotIndexed):
		return fmt.Errorf("nothing to search yet: upload a document or join a house with documents (%w)", err)
	case errors.Is(err, domain.ErrEmptyDocument):
		return fmt.Errorf("no text could be extracted from the document (%w)", err)
	case errors.Is(err, domain.ErrGeneration):
		return fmt.Errorf("the language model call failed: %w", err)
	default:
		return err
	}
}
