package presenter

import (
	"testing"
	"time"

	"waypost/api/internal/store"
)

func TestContentPayload(t *testing.T) {
	guide := store.Guide{ID: "gd_1", Slug: "agile-delivery", Type: "community"}
	edition := store.Edition{
		ID:          "ed_1",
		GuideID:     "gd_1",
		Version:     2,
		State:       "published",
		Title:       "Agile delivery",
		Description: "How teams deliver iteratively",
		Body:        "Intro paragraph.\n\n## Working in sprints\n\ntext\n\n### Not a header link\n\n## Retrospectives\n",
		UpdateType:  "major",
		OwnerName:   "Delivery community",
		UpdatedAt:   time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
	}

	payload := Content(guide, edition)

	if payload.BasePath != "/agile-delivery" {
		t.Errorf("BasePath = %q", payload.BasePath)
	}
	if payload.PublicUpdatedAt != "2025-04-01T12:00:00Z" {
		t.Errorf("PublicUpdatedAt = %q", payload.PublicUpdatedAt)
	}
	if payload.ContentOwner != "Delivery community" {
		t.Errorf("ContentOwner = %q", payload.ContentOwner)
	}

	if len(payload.HeaderLinks) != 2 {
		t.Fatalf("expected 2 header links, got %d: %+v", len(payload.HeaderLinks), payload.HeaderLinks)
	}
	if payload.HeaderLinks[0].Title != "Working in sprints" || payload.HeaderLinks[0].Href != "#working-in-sprints" {
		t.Errorf("first header link = %+v", payload.HeaderLinks[0])
	}
	if payload.HeaderLinks[1].Href != "#retrospectives" {
		t.Errorf("second header link = %+v", payload.HeaderLinks[1])
	}
}

func TestHeaderLinksEmptyBody(t *testing.T) {
	if links := headerLinks(""); len(links) != 0 {
		t.Fatalf("expected no links, got %+v", links)
	}
}
