package upgrader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

// AlertTriggerStore is what AlertTriggerReferenceUpgrader reads and writes.
type AlertTriggerStore interface {
	repository.AlertTriggerStore
	GetApi(ctx context.Context, id string) (*model.Api, error)
	GetApplication(ctx context.Context, id string) (*model.Application, error)
}

// AlertTriggerReferenceUpgrader backfills the environment of alert triggers
// from the API or application they watch. Environment-scoped triggers
// without a reference get their environment as reference.
type AlertTriggerReferenceUpgrader struct {
	store  AlertTriggerStore
	logger *slog.Logger
}

// NewAlertTriggerReferenceUpgrader creates an AlertTriggerReferenceUpgrader.
func NewAlertTriggerReferenceUpgrader(store AlertTriggerStore, logger *slog.Logger) *AlertTriggerReferenceUpgrader {
	return &AlertTriggerReferenceUpgrader{store: store, logger: logger}
}

func (u *AlertTriggerReferenceUpgrader) Name() string { return "AlertTriggerReferenceUpgrader" }
func (u *AlertTriggerReferenceUpgrader) Order() int   { return AlertTriggerReferenceOrder }

func (u *AlertTriggerReferenceUpgrader) Upgrade(ctx context.Context) error {
	triggers, err := u.store.ListAlertTriggers(ctx)
	if err != nil {
		return fmt.Errorf("list alert triggers: %w", err)
	}

	updated := 0
	for _, trigger := range triggers {
		changed, err := u.backfill(ctx, trigger)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		trigger.UpdatedAt = time.Now().UTC()
		if err := u.store.UpdateAlertTrigger(ctx, trigger); err != nil {
			return fmt.Errorf("update alert trigger %s: %w", trigger.ID, err)
		}
		updated++
	}
	u.logger.Info("alert trigger references backfilled", "total", len(triggers), "updated", updated)
	return nil
}

func (u *AlertTriggerReferenceUpgrader) backfill(ctx context.Context, trigger *model.AlertTrigger) (bool, error) {
	switch trigger.ReferenceType {
	case model.ReferenceEnvironment:
		switch {
		case trigger.ReferenceID == "" && trigger.EnvironmentID != "":
			trigger.ReferenceID = trigger.EnvironmentID
			return true, nil
		case trigger.EnvironmentID == "" && trigger.ReferenceID != "":
			trigger.EnvironmentID = trigger.ReferenceID
			return true, nil
		}
		return false, nil

	case model.ReferenceAPI:
		if trigger.EnvironmentID != "" {
			return false, nil
		}
		api, err := u.store.GetApi(ctx, trigger.ReferenceID)
		if errors.Is(err, repository.ErrApiNotFound) {
			u.logger.Warn("alert trigger references a missing api", "trigger_id", trigger.ID, "api_id", trigger.ReferenceID)
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("get api %s: %w", trigger.ReferenceID, err)
		}
		trigger.EnvironmentID = api.EnvironmentID
		return true, nil

	case model.ReferenceApplication:
		if trigger.EnvironmentID != "" {
			return false, nil
		}
		app, err := u.store.GetApplication(ctx, trigger.ReferenceID)
		if errors.Is(err, repository.ErrApplicationNotFound) {
			u.logger.Warn("alert trigger references a missing application", "trigger_id", trigger.ID, "application_id", trigger.ReferenceID)
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("get application %s: %w", trigger.ReferenceID, err)
		}
		trigger.EnvironmentID = app.EnvironmentID
		return true, nil
	}
	return false, nil
}
