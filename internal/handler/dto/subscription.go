package dto

import (
	"time"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// SubscriptionEntity is the management representation of a subscription.
type SubscriptionEntity struct {
	ID             string     `json:"id"`
	ApiID          string     `json:"apiId"`
	PlanID         string     `json:"planId"`
	ApplicationID  string     `json:"applicationId"`
	Status         string     `json:"status"`
	SubscribedBy   string     `json:"subscribedBy,omitempty"`
	ProcessedBy    string     `json:"processedBy,omitempty"`
	RequestMessage string     `json:"consumerMessage,omitempty"`
	Reason         string     `json:"publisherMessage,omitempty"`
	StartingAt     *time.Time `json:"startingAt,omitempty"`
	EndingAt       *time.Time `json:"endingAt,omitempty"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	PausedAt       *time.Time `json:"pausedAt,omitempty"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ToSubscriptionEntity converts a subscription model to its DTO.
func ToSubscriptionEntity(sub *model.Subscription) SubscriptionEntity {
	return SubscriptionEntity{
		ID:             sub.ID,
		ApiID:          sub.ApiID,
		PlanID:         sub.PlanID,
		ApplicationID:  sub.ApplicationID,
		Status:         string(sub.Status),
		SubscribedBy:   sub.SubscribedBy,
		ProcessedBy:    sub.ProcessedBy,
		RequestMessage: sub.RequestMessage,
		Reason:         sub.Reason,
		StartingAt:     sub.StartingAt,
		EndingAt:       sub.EndingAt,
		ProcessedAt:    sub.ProcessedAt,
		PausedAt:       sub.PausedAt,
		ClosedAt:       sub.ClosedAt,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
}

// NewSubscriptionEntity is the request body for subscribing an application.
type NewSubscriptionEntity struct {
	PlanID         string     `json:"planId"`
	ApplicationID  string     `json:"applicationId"`
	RequestMessage string     `json:"consumerMessage,omitempty"`
	StartingAt     *time.Time `json:"startingAt,omitempty"`
	EndingAt       *time.Time `json:"endingAt,omitempty"`
}

// ToInput converts the request to service input.
func (e NewSubscriptionEntity) ToInput() service.CreateSubscriptionInput {
	return service.CreateSubscriptionInput{
		PlanID:         e.PlanID,
		ApplicationID:  e.ApplicationID,
		RequestMessage: e.RequestMessage,
		StartingAt:     e.StartingAt,
		EndingAt:       e.EndingAt,
	}
}

// ProcessSubscriptionEntity carries the publisher's answer to a pending subscription.
type ProcessSubscriptionEntity struct {
	Reason string `json:"reason,omitempty"`
}

// CreatedSubscriptionEntity is returned on creation. ApiKey is set when the
// plan issued one.
type CreatedSubscriptionEntity struct {
	SubscriptionEntity
	ApiKey *ApiKeyEntity `json:"apiKey,omitempty"`
}

// ApiKeyEntity is the representation of an API key.
type ApiKeyEntity struct {
	ID            string     `json:"id"`
	Key           string     `json:"key"`
	ApplicationID string     `json:"applicationId"`
	Subscriptions []string   `json:"subscriptions"`
	ExpireAt      *time.Time `json:"expireAt,omitempty"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	Paused        bool       `json:"paused"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ToApiKeyEntity converts an API key to its DTO. It returns nil for a nil key.
func ToApiKeyEntity(key *model.ApiKey) *ApiKeyEntity {
	if key == nil {
		return nil
	}
	subs := key.Subscriptions
	if len(subs) == 0 && key.Subscription != "" {
		subs = []string{key.Subscription}
	}
	return &ApiKeyEntity{
		ID:            key.ID,
		Key:           key.Key,
		ApplicationID: key.ApplicationID,
		Subscriptions: nonNil(subs),
		ExpireAt:      key.ExpireAt,
		Revoked:       key.Revoked,
		RevokedAt:     key.RevokedAt,
		Paused:        key.Paused,
		CreatedAt:     key.CreatedAt,
	}
}
