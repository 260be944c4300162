package mapper

import (
	"sort"
	"strings"

	"github.com/apimplane/apim/internal/mapper/portal"
	"github.com/apimplane/apim/internal/model"
)

// ConvertPlans maps plans in ascending order. Closed plans are dropped.
func ConvertPlans(plans []*model.Plan) []portal.Plan {
	sorted := make([]*model.Plan, 0, len(plans))
	for _, p := range plans {
		if p.Status != model.PlanClosed {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	out := make([]portal.Plan, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, ConvertPlan(p))
	}
	return out
}

// ConvertPlan maps one plan. Enum values are lower-cased for the portal.
func ConvertPlan(plan *model.Plan) portal.Plan {
	return portal.Plan{
		ID:                plan.ID,
		Name:              plan.Name,
		Description:       plan.Description,
		Security:          strings.ToLower(string(plan.Security)),
		Validation:        strings.ToLower(string(plan.Validation)),
		Mode:              strings.ToLower(string(plan.Mode)),
		Order:             plan.Order,
		Characteristics:   orEmpty(plan.Characteristics),
		CommentRequired:   plan.CommentRequired,
		CommentQuestion:   plan.CommentMessage,
		GeneralConditions: plan.GeneralConditions,
	}
}
