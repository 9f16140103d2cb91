package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Guide is the logical content item; its content lives in Editions.
type Guide struct {
	ID        string
	Slug      string
	Type      string // 'community' or 'point'
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Edition is one revision of a guide. Editions sharing a version number form
// one review cycle; a published edition is never mutated, every change after
// publication starts a new cycle at version+1.
type Edition struct {
	ID             string
	GuideID        string
	Version        int
	State          string // draft, review_requested, approved, published, discarded
	Title          string
	Description    string
	Body           string
	UpdateType     string // 'major' or 'minor'
	AuthorID       string
	AuthorName     string
	ContentOwnerID string // empty when unassigned
	OwnerName      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Comment struct {
	ID         string
	EditionID  string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// Approval is an append-only record of a reviewer approving an edition.
// Repeated approvals by the same reviewer create separate rows.
type Approval struct {
	ID           string
	EditionID    string
	ApproverID   string
	ApproverName string
	CreatedAt    time.Time
}

// Topic is a navigational grouping; a guide must appear in at least one
// topic before it can be published.
type Topic struct {
	ID        string
	Slug      string
	Title     string
	CreatedAt time.Time
}

// GuideSummary joins a guide with its latest edition for listings.
type GuideSummary struct {
	Guide
	Latest Edition
}

// GuideFilter narrows guide listings.
type GuideFilter struct {
	State          string
	AuthorID       string
	ContentOwnerID string
}
