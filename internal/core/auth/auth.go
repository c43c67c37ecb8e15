// Package auth provides HMAC-based API key authentication for gRPC services.
// Each key belongs to one WonderPush application; authenticated requests
// carry the application ID in their context.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wonderpush/segmenter/internal/types"
)

type contextKey string

const appIDKey = contextKey("app_id")

// APIKeyHeader is the metadata key carrying the API key.
const APIKeyHeader = "x-api-key"

// lastUsedThrottle bounds last_used_at writes per key.
const lastUsedThrottle = time.Minute

// Queries defines the database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	logger  hclog.Logger
	now     func() time.Time

	// publicMethods are full method name prefixes served without a key.
	publicMethods []string
}

// NewAuthenticator creates an authenticator with HMAC secrets keyed by secret ID.
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger hclog.Logger) *Authenticator {
	return &Authenticator{
		secrets:       secrets,
		queries:       queries,
		logger:        logger,
		now:           time.Now,
		publicMethods: []string{"/grpc.health.v1.Health/"},
	}
}

// Authenticate validates apiKey and returns the owning application.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (types.ApplicationID, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		AppID      string       `db:"app_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	if a.shouldUpdateLastUsed(result.LastUsedAt) {
		if _, err := a.queries.Exec(ctx, "update-last-used", a.now().UTC(), result.APIKeyID); err != nil {
			a.logger.Warn("failed to update key last use", "api_key_id", result.APIKeyID, "error", err)
		}
	}

	return types.ApplicationID(result.AppID), nil
}

func (a *Authenticator) shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return a.now().Sub(lastUsed.Time) > lastUsedThrottle
}

// UnaryInterceptor returns a gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, prefix := range a.publicMethods {
			if strings.HasPrefix(info.FullMethod, prefix) {
				return handler(ctx, req)
			}
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get(APIKeyHeader)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		appID, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			switch {
			case errors.Is(err, ErrKeyRevoked):
				return nil, status.Error(codes.PermissionDenied, err.Error())
			case errors.Is(err, ErrUnavailable):
				a.logger.Error("authentication failed", "method", info.FullMethod, "error", err)
				return nil, status.Error(codes.Unavailable, ErrUnavailable.Error())
			default:
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		return handler(WithApplicationID(ctx, appID), req)
	}
}

// WithApplicationID returns a context carrying appID.
func WithApplicationID(ctx context.Context, appID types.ApplicationID) context.Context {
	return context.WithValue(ctx, appIDKey, appID)
}

// ApplicationIDFromContext extracts the authenticated application.
// Returns empty string if not found.
func ApplicationIDFromContext(ctx context.Context) types.ApplicationID {
	if appID, ok := ctx.Value(appIDKey).(types.ApplicationID); ok {
		return appID
	}
	return ""
}

// CreateAPIKey generates a key for appID signed under secretID and stores its hash.
// The plaintext key is returned once and never stored.
func CreateAPIKey(ctx context.Context, queries Queries, secrets map[string][]byte, secretID string, appID types.ApplicationID, name string) (keyID, apiKey string, err error) {
	secret, ok := secrets[secretID]
	if !ok {
		return "", "", ErrUnknownKey
	}
	apiKey, err = GenerateAPIKey(secretID)
	if err != nil {
		return "", "", err
	}

	keyID = uuid.Must(uuid.NewV7()).String()
	_, err = queries.Exec(ctx, "create-api-key", keyID, string(appID), name, ComputeHMAC(secret, apiKey), time.Now().UTC())
	if err != nil {
		return "", "", fmt.Errorf("failed to store API key: %w", err)
	}
	return keyID, apiKey, nil
}

// RevokeAPIKey marks a key as revoked. Returns ErrInvalidKey if no active key matched.
func RevokeAPIKey(ctx context.Context, queries Queries, keyID string) error {
	result, err := queries.Exec(ctx, "revoke-api-key", time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if n == 0 {
		return ErrInvalidKey
	}
	return nil
}
