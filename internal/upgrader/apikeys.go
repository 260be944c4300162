package upgrader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apimplane/apim/internal/repository"
)

// ApiKeySubscriptionsUpgrader copies the legacy single subscription of an
// API key into its subscriptions list.
type ApiKeySubscriptionsUpgrader struct {
	store  repository.ApiKeyStore
	logger *slog.Logger
}

// NewApiKeySubscriptionsUpgrader creates an ApiKeySubscriptionsUpgrader.
func NewApiKeySubscriptionsUpgrader(store repository.ApiKeyStore, logger *slog.Logger) *ApiKeySubscriptionsUpgrader {
	return &ApiKeySubscriptionsUpgrader{store: store, logger: logger}
}

func (u *ApiKeySubscriptionsUpgrader) Name() string { return "ApiKeySubscriptionsUpgrader" }
func (u *ApiKeySubscriptionsUpgrader) Order() int   { return ApiKeySubscriptionsOrder }

func (u *ApiKeySubscriptionsUpgrader) Upgrade(ctx context.Context) error {
	keys, err := u.store.ListApiKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	migrated := 0
	for _, key := range keys {
		if key.Subscription == "" || len(key.Subscriptions) > 0 {
			continue
		}
		key.Subscriptions = []string{key.Subscription}
		key.UpdatedAt = time.Now().UTC()
		if err := u.store.UpdateApiKey(ctx, key); err != nil {
			return fmt.Errorf("update api key %s: %w", key.ID, err)
		}
		migrated++
	}
	u.logger.Info("api key subscriptions migrated", "total", len(keys), "migrated", migrated)
	return nil
}
