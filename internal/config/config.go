// Package config handles loading and validation of baton.yaml project configuration.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/baton-ci/baton/internal/secret"
	"github.com/baton-ci/baton/pkg/types"
)

// FileName is the configuration file baton looks for.
const FileName = "baton.yaml"

// Load reads and parses baton.yaml from the given directory.
func Load(dir string) (*types.Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ResolveSecrets materializes every secret reference in cfg in place:
// backend tokens, webhook URLs, store credentials, and the API key.
func ResolveSecrets(ctx context.Context, cfg *types.Config, r *secret.Resolver) error {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		token, err := r.Resolve(ctx, b.Token)
		if err != nil {
			return fmt.Errorf("backend %s token: %w", b.Name, err)
		}
		b.Token = token
	}
	for i := range cfg.Alerts {
		a := &cfg.Alerts[i]
		if a.Type != types.SinkWebhook {
			continue
		}
		url, err := r.Resolve(ctx, a.URL)
		if err != nil {
			return fmt.Errorf("webhook sink url: %w", err)
		}
		a.URL = url
	}
	if rc := cfg.Journal.Redis; rc != nil {
		password, err := r.Resolve(ctx, rc.Password)
		if err != nil {
			return fmt.Errorf("redis password: %w", err)
		}
		rc.Password = password
	}
	if pc := cfg.Journal.Postgres; pc != nil {
		dsn, err := r.Resolve(ctx, pc.DSN)
		if err != nil {
			return fmt.Errorf("postgres dsn: %w", err)
		}
		pc.DSN = dsn
	}
	if cfg.Server.APIKey != "" {
		key, err := r.Resolve(ctx, cfg.Server.APIKey)
		if err != nil {
			return fmt.Errorf("server api key: %w", err)
		}
		cfg.Server.APIKey = key
	}
	return nil
}

func validate(cfg *types.Config) error {
	if len(cfg.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	seen := make(map[string]bool, len(cfg.Backends))
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
		if err := validateBackend(b); err != nil {
			return fmt.Errorf("backend %s: %w", b.Name, err)
		}
	}

	if err := validateJournal(&cfg.Journal); err != nil {
		return err
	}

	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.SinkConsole:
		case types.SinkWebhook:
			if a.URL == "" {
				return fmt.Errorf("alerts[%d]: webhook url is required", i)
			}
		case types.SinkFile:
			if a.Path == "" {
				return fmt.Errorf("alerts[%d]: file path is required", i)
			}
		case types.SinkSNS:
			if a.TopicARN == "" {
				return fmt.Errorf("alerts[%d]: sns topicArn is required", i)
			}
		case types.SinkEventBridge:
			// An empty event bus name falls back to the account default.
		case types.SinkPubSub:
			if a.ProjectID == "" || a.TopicID == "" {
				return fmt.Errorf("alerts[%d]: pubsub projectId and topicId are required", i)
			}
		case types.SinkS3:
			if a.Bucket == "" {
				return fmt.Errorf("alerts[%d]: s3 bucket is required", i)
			}
		default:
			return fmt.Errorf("alerts[%d]: unknown sink type %q", i, a.Type)
		}
	}

	return nil
}

func validateBackend(b *types.BackendConfig) error {
	switch b.Kind {
	case types.BackendGitHubActions:
		if b.Owner == "" {
			return fmt.Errorf("owner is required")
		}
		if b.Token == "" {
			return fmt.Errorf("token is required")
		}
	case types.BackendJenkins:
		if b.BaseURL == "" {
			return fmt.Errorf("baseUrl is required")
		}
	case types.BackendAzureDevOps:
		if b.Owner == "" {
			return fmt.Errorf("owner (organization) is required")
		}
		if b.Project == "" {
			return fmt.Errorf("project is required")
		}
		if b.Token == "" {
			return fmt.Errorf("token is required")
		}
	case types.BackendStepFunctions:
		// Region falls back to the SDK's default chain.
	case types.BackendCloudWorkflows:
		if b.ProjectID == "" {
			return fmt.Errorf("projectId is required")
		}
		if b.Region == "" {
			return fmt.Errorf("region is required")
		}
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unknown backend kind %q", b.Kind)
	}
	return nil
}

func validateJournal(j *types.JournalConfig) error {
	switch j.Type {
	case "", types.StoreMemory:
	case types.StoreDynamoDB:
		if j.DynamoDB == nil || j.DynamoDB.TableName == "" {
			return fmt.Errorf("journal: dynamodb.tableName is required")
		}
	case types.StoreRedis:
		if j.Redis == nil || j.Redis.Addr == "" {
			return fmt.Errorf("journal: redis.addr is required")
		}
	case types.StorePostgres:
		if j.Postgres == nil || j.Postgres.DSN == "" {
			return fmt.Errorf("journal: postgres.dsn is required")
		}
	case types.StoreFirestore:
		if j.Firestore == nil || j.Firestore.ProjectID == "" {
			return fmt.Errorf("journal: firestore.projectId is required")
		}
	default:
		return fmt.Errorf("journal: unknown store type %q", j.Type)
	}
	return nil
}
