package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sha1n/snipsearch/internal/config"
	"github.com/sha1n/snipsearch/internal/discovery"
	"github.com/sha1n/snipsearch/internal/encoder"
	"github.com/sha1n/snipsearch/internal/explain"
	"github.com/sha1n/snipsearch/internal/index"
	mcputil "github.com/sha1n/snipsearch/internal/mcp"
	"github.com/sha1n/snipsearch/internal/retriever"
)

// ServerName is the MCP implementation name.
const ServerName = "snipsearch"

// openEncoder loads the text encoder; nil selects the ONNX encoder.
var openEncoder func(encoder.AssetsConfig) (retriever.Encoder, error)

// Services holds the collaborators shared by the MCP tools and the HTTP API.
// A nil field disables the features that depend on it.
type Services struct {
	Searcher  mcputil.Searcher
	Catalog   mcputil.Catalog
	Snippets  mcputil.SnippetSource
	Explainer mcputil.Explainer
}

// RunParams contains dependencies for the run functions
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *Services, *config.Settings) error
	CreateServices    func(context.Context, *config.Settings) (*Services, func(), error)
	BuildIndexes      func(context.Context, *config.Settings) error
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServices: CreateServices,
		BuildIndexes:   BuildIndexes,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := setup(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting snipsearch server", "version", version)
	config.Log(settings)

	services, cleanup, err := params.CreateServices(ctx, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	if services == nil {
		services = &Services{}
	}

	mcpServer := mcputil.CreateServer(mcputil.ServerConfig{
		Name:      ServerName,
		Version:   version,
		Searcher:  services.Searcher,
		Catalog:   services.Catalog,
		Snippets:  services.Snippets,
		Explainer: services.Explainer,
	})

	// Start server
	if settings.Transport == config.TransportStdio {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, services, settings)
}

// RunIndexWithDeps builds (or with --rebuild, rebuilds) the facet indexes and exits.
func RunIndexWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := setup(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Building snipsearch indexes", "version", version)
	config.Log(settings)

	return params.BuildIndexes(ctx, settings)
}

func setup(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr, stdout carries the stdio transport
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))
	slog.Debug("Resolved settings", "settings", config.SettingsLogValue(*settings))

	return settings, nil
}

// CreateServices bootstraps the retriever, the catalog and, when configured, the explainer.
func CreateServices(ctx context.Context, settings *config.Settings) (*Services, func(), error) {
	svc, closeRetriever, err := retriever.Bootstrap(ctx, BootstrapParams(settings))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start retriever: %w", err)
	}

	catalog, err := discovery.NewCatalog(svc.Snippets())
	if err != nil {
		closeRetriever()
		return nil, nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	cleanup := func() {
		if err := catalog.Close(); err != nil {
			slog.Error("Failed to close catalog", "error", err)
		}
		closeRetriever()
	}

	services := &Services{Searcher: svc, Catalog: catalog, Snippets: svc}

	if settings.Explain.Enabled() {
		client, err := explain.New(explain.Config{
			APIKey:  settings.Explain.APIKey,
			BaseURL: settings.Explain.BaseURL,
			Model:   settings.Explain.Model,
			Timeout: settings.Explain.Timeout,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create explain client: %w", err)
		}
		services.Explainer = client
	} else {
		slog.Info("Code explanation disabled, no API key configured")
	}

	return services, cleanup, nil
}

// BuildIndexes prepares every facet index without serving.
func BuildIndexes(ctx context.Context, settings *config.Settings) error {
	params := BootstrapParams(settings)
	if params.Rebuild {
		slog.Info("Rebuild requested, existing indexes will be purged", "dir", settings.Index.Dir)
	} else if len(params.RebuildFacets) > 0 {
		slog.Info("Rebuild requested for selected facets", "dir", settings.Index.Dir, "facets", params.RebuildFacets)
	}

	_, cleanup, err := retriever.Bootstrap(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to build indexes: %w", err)
	}
	cleanup()
	return nil
}

// BootstrapParams maps settings onto retriever bootstrap parameters.
func BootstrapParams(settings *config.Settings) retriever.BootstrapParams {
	return retriever.BootstrapParams{
		CorpusPath: settings.Corpus.Path,
		Assets: encoder.AssetsConfig{
			Dir:            settings.Model.Dir,
			ModelFile:      settings.Model.File,
			TokenizerFile:  settings.Model.TokenizerFile,
			RuntimeLibrary: settings.Model.RuntimeLibrary,
			OutputName:     settings.Model.OutputName,
			Config: encoder.Config{
				MaxLength: settings.Model.MaxLength,
				BatchSize: settings.Model.BatchSize,
				CacheSize: settings.Model.QueryCacheSize,
			},
		},
		Store: index.StoreConfig{
			Dir:         settings.Index.Dir,
			BatchSize:   settings.Model.BatchSize,
			LockTimeout: settings.Index.LockTimeout,
		},
		Rebuild:       settings.Index.Rebuild,
		RebuildFacets: settings.Index.RebuildFacets,
		OpenEncoder:   openEncoder,
		Search: retriever.Config{
			DefaultTopK: settings.Search.DefaultTopK,
			MaxTopK:     settings.Search.MaxTopK,
		},
	}
}
