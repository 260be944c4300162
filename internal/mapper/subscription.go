package mapper

import (
	"github.com/apimplane/apim/internal/mapper/portal"
	"github.com/apimplane/apim/internal/model"
)

// ConvertSubscription maps a subscription.
func ConvertSubscription(sub *model.Subscription) portal.Subscription {
	return portal.Subscription{
		ID:          sub.ID,
		Api:         sub.ApiID,
		Plan:        sub.PlanID,
		Application: sub.ApplicationID,
		Status:      string(sub.Status),
		Request:     sub.RequestMessage,
		Reason:      sub.Reason,
		StartAt:     sub.StartingAt,
		EndAt:       sub.EndingAt,
		ProcessedAt: sub.ProcessedAt,
		PausedAt:    sub.PausedAt,
		ClosedAt:    sub.ClosedAt,
		CreatedAt:   sub.CreatedAt,
	}
}

// ConvertSubscriptions maps subscriptions keeping their order.
func ConvertSubscriptions(subs []*model.Subscription) []portal.Subscription {
	out := make([]portal.Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, ConvertSubscription(s))
	}
	return out
}
