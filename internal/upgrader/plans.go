package upgrader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

const planOrderPageSize = 100

// PlanOrderStore is what PlanOrderUpgrader reads and writes.
type PlanOrderStore interface {
	ListApis(ctx context.Context, q repository.ApiQuery) ([]*model.Api, int, error)
	repository.PlanStore
}

// PlanOrderUpgrader renumbers the non-closed plans of every API to a
// contiguous 1..n order, keeping their relative position.
type PlanOrderUpgrader struct {
	store  PlanOrderStore
	logger *slog.Logger
}

// NewPlanOrderUpgrader creates a PlanOrderUpgrader.
func NewPlanOrderUpgrader(store PlanOrderStore, logger *slog.Logger) *PlanOrderUpgrader {
	return &PlanOrderUpgrader{store: store, logger: logger}
}

func (u *PlanOrderUpgrader) Name() string { return "PlanOrderUpgrader" }
func (u *PlanOrderUpgrader) Order() int   { return PlanOrderOrder }

func (u *PlanOrderUpgrader) Upgrade(ctx context.Context) error {
	apis, updated := 0, 0
	for page := 1; ; page++ {
		batch, _, err := u.store.ListApis(ctx, repository.ApiQuery{Page: page, Size: planOrderPageSize})
		if err != nil {
			return fmt.Errorf("list apis: %w", err)
		}
		for _, api := range batch {
			n, err := u.renumber(ctx, api.ID)
			if err != nil {
				return err
			}
			updated += n
		}
		apis += len(batch)
		if len(batch) < planOrderPageSize {
			break
		}
	}
	u.logger.Info("plan order renumbered", "apis", apis, "plans_updated", updated)
	return nil
}

func (u *PlanOrderUpgrader) renumber(ctx context.Context, apiID string) (int, error) {
	plans, err := u.store.ListPlansByApi(ctx, apiID)
	if err != nil {
		return 0, fmt.Errorf("list plans of api %s: %w", apiID, err)
	}

	updated := 0
	order := 1
	for _, p := range plans {
		if p.Status == model.PlanClosed {
			continue
		}
		if p.Order != order {
			p.Order = order
			p.UpdatedAt = time.Now().UTC()
			if err := u.store.UpdatePlan(ctx, p); err != nil {
				return updated, fmt.Errorf("update plan %s: %w", p.ID, err)
			}
			updated++
		}
		order++
	}
	return updated, nil
}
