package mapper

import (
	"net/url"
	"testing"
	"time"

	"github.com/apimplane/apim/internal/model"
)

func TestConvertApi(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	api := &model.Api{
		ID:          "api-1",
		Name:        "Echo",
		Version:     "1.0",
		Description: "echo service",
		ContextPath: "/echo",
		State:       model.ApiStateStarted,
		Categories:  []string{"tools"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	owner := &model.PrimaryOwner{ID: "user-1", DisplayName: "John Doe", Email: "john@example.com", Type: model.MemberUser}

	got := ConvertApi(api, owner, ApiOptions{
		BaseURL:     "https://portal.example.com/portal/environments/DEFAULT/",
		Entrypoints: []string{"https://gw.example.com/", " ", "http://internal:8082"},
	})

	if got.Name != "Echo" || got.Version != "1.0" || !got.Running {
		t.Errorf("unexpected api header: %+v", got)
	}
	wantEntrypoints := []string{"https://gw.example.com/echo", "http://internal:8082/echo"}
	if len(got.Entrypoints) != len(wantEntrypoints) {
		t.Fatalf("entrypoints = %v, want %v", got.Entrypoints, wantEntrypoints)
	}
	for i := range wantEntrypoints {
		if got.Entrypoints[i] != wantEntrypoints[i] {
			t.Errorf("entrypoint[%d] = %q, want %q", i, got.Entrypoints[i], wantEntrypoints[i])
		}
	}
	if got.Labels == nil || len(got.Labels) != 0 {
		t.Errorf("labels should be an empty list, got %#v", got.Labels)
	}
	if got.Owner == nil || got.Owner.DisplayName != "John Doe" {
		t.Errorf("owner = %+v", got.Owner)
	}
	if got.Links == nil {
		t.Fatal("links should be set when a base URL is given")
	}
	if got.Links.Self != "https://portal.example.com/portal/environments/DEFAULT/apis/api-1" {
		t.Errorf("self link = %q", got.Links.Self)
	}
	if got.Links.Plans != got.Links.Self+"/plans" || got.Links.Picture != got.Links.Self+"/picture" {
		t.Errorf("unexpected links %+v", got.Links)
	}

	bare := ConvertApi(api, nil, ApiOptions{})
	if bare.Owner != nil || bare.Links != nil {
		t.Errorf("owner and links should be omitted, got %+v", bare)
	}
}

func TestConvertPlans(t *testing.T) {
	plans := []*model.Plan{
		{ID: "silver", Order: 2, Security: model.SecurityApiKey, Validation: model.ValidationManual, Mode: model.PlanModeStandard, Status: model.PlanPublished},
		{ID: "closed", Order: 0, Security: model.SecurityKeyless, Status: model.PlanClosed},
		{ID: "gold", Order: 1, Security: model.SecurityOAuth2, Validation: model.ValidationAuto, Mode: model.PlanModeStandard, Status: model.PlanPublished, CommentRequired: true, CommentMessage: "why?"},
	}

	got := ConvertPlans(plans)
	if len(got) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(got))
	}
	if got[0].ID != "gold" || got[1].ID != "silver" {
		t.Errorf("plans not ordered: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Security != "oauth2" || got[1].Security != "api_key" {
		t.Errorf("security not lower-cased: %q, %q", got[0].Security, got[1].Security)
	}
	if got[1].Validation != "manual" || got[0].Mode != "standard" {
		t.Errorf("unexpected enums: %+v", got)
	}
	if !got[0].CommentRequired || got[0].CommentQuestion != "why?" {
		t.Errorf("comment not mapped: %+v", got[0])
	}
	if plans[0].ID != "silver" {
		t.Error("input slice must not be reordered")
	}
}

func TestConvertSubscription(t *testing.T) {
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := &model.Subscription{
		ID:             "sub-1",
		ApiID:          "api-1",
		PlanID:         "plan-1",
		ApplicationID:  "app-1",
		Status:         model.SubscriptionAccepted,
		RequestMessage: "please",
		EndingAt:       &end,
	}

	got := ConvertSubscription(sub)
	if got.Api != "api-1" || got.Plan != "plan-1" || got.Application != "app-1" {
		t.Errorf("references not mapped: %+v", got)
	}
	if got.Status != "ACCEPTED" || got.Request != "please" {
		t.Errorf("unexpected subscription %+v", got)
	}
	if got.EndAt == nil || !got.EndAt.Equal(end) {
		t.Errorf("end = %v", got.EndAt)
	}
}

func TestPaginationLinks(t *testing.T) {
	base, _ := url.Parse("https://portal.example.com/apis?q=echo&page=2&size=10")

	tests := []struct {
		name               string
		page, size, total  int
		wantPrev, wantNext bool
		wantLast           string
	}{
		{name: "first page", page: 1, size: 10, total: 25, wantNext: true, wantLast: "3"},
		{name: "middle page", page: 2, size: 10, total: 25, wantPrev: true, wantNext: true, wantLast: "3"},
		{name: "last page", page: 3, size: 10, total: 25, wantPrev: true, wantLast: "3"},
		{name: "empty listing", page: 1, size: 10, total: 0, wantLast: "1"},
		{name: "past the end", page: 5, size: 10, total: 25, wantPrev: true, wantLast: "3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			links := PaginationLinks(base, tt.page, tt.size, tt.total)
			if (links.Prev != "") != tt.wantPrev {
				t.Errorf("prev = %q, want present=%v", links.Prev, tt.wantPrev)
			}
			if (links.Next != "") != tt.wantNext {
				t.Errorf("next = %q, want present=%v", links.Next, tt.wantNext)
			}
			last, err := url.Parse(links.Last)
			if err != nil {
				t.Fatalf("parse last: %v", err)
			}
			if last.Query().Get("page") != tt.wantLast {
				t.Errorf("last page = %q, want %q", last.Query().Get("page"), tt.wantLast)
			}
			if last.Query().Get("q") != "echo" {
				t.Error("query parameters should be preserved")
			}
		})
	}

	if PaginationLinks(nil, 1, 10, 3) != nil {
		t.Error("no links without a request URL")
	}
}

func TestNewPage(t *testing.T) {
	base, _ := url.Parse("/apis")
	page := NewPage([]string{"a", "b"}, base, 2, 2, 5)

	p := page.Metadata.Pagination
	if p.First != 3 || p.Last != 4 || p.TotalPages != 3 || p.Total != 5 {
		t.Errorf("unexpected pagination %+v", p)
	}

	empty := NewPage[string](nil, base, 1, 10, 0)
	if empty.Data == nil {
		t.Error("data should be an empty list")
	}
	if empty.Metadata.Pagination.First != 0 {
		t.Errorf("first = %d, want 0", empty.Metadata.Pagination.First)
	}
}

func TestETag(t *testing.T) {
	a, err := ETag(map[string]string{"name": "Echo"})
	if err != nil {
		t.Fatalf("ETag failed: %v", err)
	}
	b, _ := ETag(map[string]string{"name": "Echo"})
	c, _ := ETag(map[string]string{"name": "Other"})

	if a != b {
		t.Error("same representation should give the same tag")
	}
	if a == c {
		t.Error("different representations should give different tags")
	}
	if len(a) != 18 || a[0] != '"' || a[len(a)-1] != '"' {
		t.Errorf("tag %s is not a quoted 16 digit hash", a)
	}

	if _, err := ETag(make(chan int)); err == nil {
		t.Error("unencodable values should fail")
	}
}
