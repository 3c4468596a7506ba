// Package commands implements the CLI subcommands for the baton binary.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/baton-ci/baton/internal/alert"
	"github.com/baton-ci/baton/internal/backend"
	"github.com/baton-ci/baton/internal/config"
	"github.com/baton-ci/baton/internal/journal"
	ddbjournal "github.com/baton-ci/baton/internal/journal/dynamodb"
	fsjournal "github.com/baton-ci/baton/internal/journal/firestore"
	"github.com/baton-ci/baton/internal/journal/memory"
	pgjournal "github.com/baton-ci/baton/internal/journal/postgres"
	redisjournal "github.com/baton-ci/baton/internal/journal/redis"
	"github.com/baton-ci/baton/internal/orchestrator"
	"github.com/baton-ci/baton/internal/secret"
	"github.com/baton-ci/baton/pkg/types"
)

// loadProject reads baton.yaml from the working directory and resolves its
// secret references.
func loadProject(ctx context.Context) (*types.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ResolveSecrets(ctx, cfg, secret.NewResolver()); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}
	return cfg, nil
}

// buildBackends constructs one adapter per configured backend.
func buildBackends(cfg *types.Config) ([]backend.Backend, error) {
	backends := make([]backend.Backend, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		b, err := backend.New(bc)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// newJournalStore creates the configured journal store. The memory store is
// the default when no journal section is present.
func newJournalStore(ctx context.Context, cfg *types.Config) (journal.Store, error) {
	j := cfg.Journal
	switch j.Type {
	case "", types.StoreMemory:
		return memory.New(), nil
	case types.StoreDynamoDB:
		return ddbjournal.New(ctx, j.DynamoDB)
	case types.StoreRedis:
		return redisjournal.New(j.Redis), nil
	case types.StorePostgres:
		store, err := pgjournal.New(ctx, j.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if j.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrating Postgres: %w", err)
			}
		}
		return store, nil
	case types.StoreFirestore:
		return fsjournal.New(ctx, j.Firestore)
	default:
		return nil, fmt.Errorf("unsupported journal store: %s", j.Type)
	}
}

// buildOrchestrator assembles the orchestrator with its journal store and
// alert dispatcher. The caller closes the returned store.
func buildOrchestrator(ctx context.Context, cfg *types.Config, extra ...orchestrator.Option) (*orchestrator.Orchestrator, journal.Store, error) {
	backends, err := buildBackends(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := newJournalStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating journal store: %w", err)
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, nil)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	opts := append([]orchestrator.Option{
		orchestrator.WithJournal(store),
		orchestrator.WithAlertFunc(dispatcher.Func()),
	}, extra...)
	return orchestrator.New(backends, opts...), store, nil
}

// parseInputs turns repeated key=value flags into the inputs map.
func parseInputs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}

// pickBackend resolves the --backend flag against the configured backends.
// With a single configured backend the flag may be omitted.
func pickBackend(cfg *types.Config, name string) (*types.BackendConfig, error) {
	if name == "" {
		if len(cfg.Backends) == 1 {
			return &cfg.Backends[0], nil
		}
		return nil, fmt.Errorf("multiple backends configured, pass --backend (%s)", backendNames(cfg))
	}
	for i := range cfg.Backends {
		if cfg.Backends[i].Name == name {
			return &cfg.Backends[i], nil
		}
	}
	return nil, fmt.Errorf("unknown backend %q (configured: %s)", name, backendNames(cfg))
}

func backendNames(cfg *types.Config) string {
	names := make([]string, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// verdictString renders a verdict code with the conventional colors.
func verdictString(code types.VerdictCode) string {
	switch code {
	case types.VerdictSucceeded:
		return color.GreenString(string(code))
	case types.VerdictCancelled:
		return color.YellowString(string(code))
	default:
		return color.RedString(string(code))
	}
}
