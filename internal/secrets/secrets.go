// Package secrets resolves credential references from configuration. A
// reference is either "aws:<secret-id>" (AWS Secrets Manager),
// "env:<VAR>" (process environment), or a literal value.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

const (
	schemeAWS = "aws:"
	schemeEnv = "env:"
)

type awsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver turns credential references into their values. Resolved values
// must never appear in errors or logs.
type Resolver struct {
	aws    awsClient
	getenv func(string) string
}

// NewResolver builds a resolver without AWS support; aws: refs fail until
// WithAWS is used. Suitable for deployments that keep keys in env vars.
func NewResolver() *Resolver {
	return &Resolver{getenv: os.Getenv}
}

// NewResolverWithAWS loads the default AWS config and enables aws: refs.
func NewResolverWithAWS(ctx context.Context) (*Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return &Resolver{
		aws:    secretsmanager.NewFromConfig(cfg),
		getenv: os.Getenv,
	}, nil
}

// NewResolverWithClient injects the AWS client; used by tests.
func NewResolverWithClient(client awsClient, getenv func(string) string) *Resolver {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Resolver{aws: client, getenv: getenv}
}

// Resolve dereferences ref. An empty ref resolves to an empty value without
// error, so optional credentials stay optional.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, schemeAWS):
		return r.resolveAWS(ctx, strings.TrimPrefix(ref, schemeAWS))
	case strings.HasPrefix(ref, schemeEnv):
		return r.resolveEnv(strings.TrimPrefix(ref, schemeEnv))
	default:
		return ref, nil
	}
}

func (r *Resolver) resolveAWS(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty aws secret id", ErrInvalidConfig)
	}
	if r.aws == nil {
		return "", fmt.Errorf("%w: aws resolver not configured", ErrInvalidConfig)
	}
	out, err := r.aws.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &id,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", id, err)
	}
	if out.SecretString != nil && strings.TrimSpace(*out.SecretString) != "" {
		return strings.TrimSpace(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, id)
}

func (r *Resolver) resolveEnv(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty env key", ErrInvalidConfig)
	}
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, key)
	}
	return v, nil
}
