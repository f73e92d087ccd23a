// Package credentials resolves provider API keys and endpoints at
// connection-construction time, so rotation takes effect on the next
// connection without a restart.
package credentials

import (
	"context"
	"fmt"

	"github.com/eleven-am/meeting-scribe/internal/shared"
	"github.com/redis/go-redis/v9"
)

// Credential is what a streaming provider needs to accept a connection.
type Credential struct {
	APIKey    string
	ServerURL string
}

// Resolver looks up a provider's credential. Implementations return
// shared.ErrNoCredentials when the provider is not configured.
type Resolver interface {
	Lookup(ctx context.Context, provider string) (Credential, error)
}

// RedisResolver reads credentials from redis hashes keyed
// credentials:<provider> with fields api_key and server_url.
type RedisResolver struct {
	client *redis.Client
}

func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

func (r *RedisResolver) Lookup(ctx context.Context, provider string) (Credential, error) {
	key := "credentials:" + provider

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Credential{}, fmt.Errorf("lookup %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Credential{}, fmt.Errorf("%s: %w", provider, shared.ErrNoCredentials)
	}

	cred := Credential{
		APIKey:    fields["api_key"],
		ServerURL: fields["server_url"],
	}
	if cred.ServerURL == "" {
		return Credential{}, fmt.Errorf("%s missing server_url: %w", provider, shared.ErrNoCredentials)
	}
	return cred, nil
}

// StaticResolver serves fixed credentials, for environment-configured
// deployments and tests.
type StaticResolver struct {
	creds map[string]Credential
}

func NewStaticResolver(creds map[string]Credential) *StaticResolver {
	return &StaticResolver{creds: creds}
}

func (r *StaticResolver) Lookup(_ context.Context, provider string) (Credential, error) {
	cred, ok := r.creds[provider]
	if !ok || cred.ServerURL == "" {
		return Credential{}, fmt.Errorf("%s: %w", provider, shared.ErrNoCredentials)
	}
	return cred, nil
}
