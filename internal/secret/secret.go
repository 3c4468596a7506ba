// Package secret resolves secret references found in configuration.
//
// A reference is a plain string with an optional scheme prefix:
//
//	env:NAME        value of the environment variable NAME
//	file:/path      contents of the file at /path, trimmed
//	aws-sm:id       SecretString of the AWS Secrets Manager secret id
//
// Anything without a recognized prefix resolves to itself, so literal
// values keep working.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by Resolver.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver resolves secret references. The zero value resolves env, file,
// and literal references; the Secrets Manager client is created lazily on
// the first aws-sm reference.
type Resolver struct {
	sm SecretsManagerAPI
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSecretsManagerClient sets a custom Secrets Manager client (useful for testing).
func WithSecretsManagerClient(c SecretsManagerAPI) Option {
	return func(r *Resolver) { r.sm = c }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve materializes one reference. Empty references resolve to empty.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case ref == "":
		return "", nil

	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return v, nil

	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	case strings.HasPrefix(ref, "aws-sm:"):
		id := strings.TrimPrefix(ref, "aws-sm:")
		return r.fromSecretsManager(ctx, id)

	default:
		return ref, nil
	}
}

func (r *Resolver) fromSecretsManager(ctx context.Context, id string) (string, error) {
	if r.sm == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return "", fmt.Errorf("loading AWS config: %w", err)
		}
		r.sm = secretsmanager.NewFromConfig(cfg)
	}

	out, err := r.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	return *out.SecretString, nil
}
