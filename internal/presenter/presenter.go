// Package presenter shapes a guide edition into the payload handed to
// downstream consumers: the search indexer and the publishing feed.
package presenter

import (
	"strings"
	"time"

	"waypost/api/internal/store"
	"waypost/api/internal/util"
)

// HeaderLink is one level-two heading of the body, used to render an
// in-page table of contents.
type HeaderLink struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// ContentPayload is the rendered representation of one published edition.
type ContentPayload struct {
	GuideID         string       `json:"guideId"`
	BasePath        string       `json:"basePath"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Body            string       `json:"body"`
	UpdateType      string       `json:"updateType"`
	ContentOwner    string       `json:"contentOwner,omitempty"`
	PublicUpdatedAt string       `json:"publicUpdatedAt"`
	HeaderLinks     []HeaderLink `json:"headerLinks"`
}

// Content builds the publishing payload for a guide edition.
func Content(guide store.Guide, edition store.Edition) ContentPayload {
	return ContentPayload{
		GuideID:         guide.ID,
		BasePath:        "/" + strings.TrimPrefix(guide.Slug, "/"),
		Title:           edition.Title,
		Description:     edition.Description,
		Body:            edition.Body,
		UpdateType:      edition.UpdateType,
		ContentOwner:    edition.OwnerName,
		PublicUpdatedAt: edition.UpdatedAt.UTC().Format(time.RFC3339),
		HeaderLinks:     headerLinks(edition.Body),
	}
}

// headerLinks extracts the markdown level-two headings from a body.
func headerLinks(body string) []HeaderLink {
	links := make([]HeaderLink, 0)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "###") {
			continue
		}
		title := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
		if title == "" {
			continue
		}
		links = append(links, HeaderLink{
			Title: title,
			Href:  "#" + util.Slugify(title),
		})
	}
	return links
}
