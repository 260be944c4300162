// Package mapper converts domain models to the portal REST models.
//
// Mappers are pure: they never read storage and never fail.
package mapper

import (
	"strings"

	"github.com/apimplane/apim/internal/mapper/portal"
	"github.com/apimplane/apim/internal/model"
)

// ApiOptions carries the deployment values an Api representation needs.
type ApiOptions struct {
	// BaseURL is the portal API root, e.g. https://portal.example.com/portal/environments/DEFAULT.
	BaseURL string
	// Entrypoints are the gateway base URLs the API is reachable on.
	Entrypoints []string
}

// ConvertApi maps an API and its primary owner. owner may be nil.
func ConvertApi(api *model.Api, owner *model.PrimaryOwner, opts ApiOptions) portal.Api {
	out := portal.Api{
		ID:          api.ID,
		Name:        api.Name,
		Version:     api.Version,
		Description: api.Description,
		Labels:      orEmpty(api.Labels),
		Categories:  orEmpty(api.Categories),
		Entrypoints: entrypoints(opts.Entrypoints, api.ContextPath),
		Running:     api.IsStarted(),
		Owner:       ConvertOwner(owner),
		CreatedAt:   api.CreatedAt,
		UpdatedAt:   api.UpdatedAt,
	}
	if opts.BaseURL != "" {
		self := strings.TrimRight(opts.BaseURL, "/") + "/apis/" + api.ID
		out.Links = &portal.ApiLinks{
			Self:    self,
			Picture: self + "/picture",
			Plans:   self + "/plans",
		}
	}
	return out
}

// ConvertOwner maps a primary owner. It returns nil for a nil owner.
func ConvertOwner(owner *model.PrimaryOwner) *portal.Owner {
	if owner == nil {
		return nil
	}
	return &portal.Owner{ID: owner.ID, DisplayName: owner.DisplayName, Email: owner.Email}
}

func entrypoints(bases []string, contextPath string) []string {
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" {
			continue
		}
		out = append(out, base+contextPath)
	}
	return out
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
