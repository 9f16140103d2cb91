package app

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"waypost/api/internal/auth"
	"waypost/api/internal/authpw"
	"waypost/api/internal/config"
	"waypost/api/internal/email"
	"waypost/api/internal/presenter"
	"waypost/api/internal/rbac"
	"waypost/api/internal/search"
	"waypost/api/internal/store"
	"waypost/api/internal/thread"
	"waypost/api/internal/util"
	"waypost/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// GuideInput carries the editable content of an edition.
type GuideInput struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Body           string `json:"body"`
	UpdateType     string `json:"updateType"`
	ContentOwnerID string `json:"contentOwnerId"`
}

// CreateGuideInput creates a guide together with its first draft edition.
type CreateGuideInput struct {
	GuideInput
	Slug string `json:"slug"`
	Type string `json:"type"`
}

type CreateTopicInput struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

var allowedGuideTypes = map[string]struct{}{
	"community": {},
	"point":     {},
}

var allowedUpdateTypes = map[string]struct{}{
	"":      {},
	"major": {},
	"minor": {},
}

type dataStore interface {
	Ping(ctx context.Context) error
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertGuide(context.Context, store.Guide) error
	GetGuide(context.Context, string) (store.Guide, error)
	TouchGuide(context.Context, string) error
	ListGuides(context.Context, store.GuideFilter) ([]store.GuideSummary, error)
	InsertEdition(context.Context, store.Edition) (store.Edition, error)
	LatestEdition(context.Context, string) (store.Edition, error)
	ListCycleEditions(context.Context, string, int) ([]store.Edition, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	ListCycleComments(context.Context, string, int) ([]store.Comment, error)
	InsertApproval(context.Context, store.Approval) (store.Approval, error)
	ListCycleApprovals(context.Context, string, int) ([]store.Approval, error)
	InsertTopic(context.Context, store.Topic) error
	AddGuideToTopic(context.Context, string, string) error
	GuideIncludedInTopic(context.Context, string) (bool, error)
	GuideSubscribers(context.Context, string) ([]store.User, error)
}

// sessionStore is satisfied by both the Redis store and PostgresStore, so
// refresh sessions work with or without Redis configured.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type guideSearch interface {
	Search(search.Query) ([]search.Result, int, error)
	IndexGuide(search.GuideRecord)
	DeleteGuide(string)
}

type mailer interface {
	IsConfigured() bool
	SendGuidePublishedEmail(to []string, guideName, guideURL, publisher string) error
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	search     guideSearch
	mail       mailer
	authPw     *authpw.Service
	policy     workflow.Policy
	threadOpts thread.Options
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchSvc *search.Service, mailSvc *email.Service, authSvc *authpw.Service) *Service {
	s := &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   sessions,
		authPw:     authSvc,
		policy:     workflow.Policy{ApproveFromDraft: cfg.ApproveFromDraft},
		threadOpts: thread.Options{EmitUnassigned: cfg.ThreadEmitUnassigned},
	}
	if sessions == nil {
		s.sessions = dataStore
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	if mailSvc != nil {
		s.mail = mailSvc
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authPw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// Bootstrap seeds an empty database with a topic and a starter guide so a
// fresh install has something to look at.
func (s *Service) Bootstrap(ctx context.Context) error {
	guides, err := s.store.ListGuides(ctx, store.GuideFilter{})
	if err != nil {
		return err
	}
	if len(guides) > 0 {
		return nil
	}

	owner, err := s.store.EnsureUserByName(ctx, "Ada")
	if err != nil {
		return err
	}

	topic := store.Topic{
		ID:    util.NewID("tp"),
		Slug:  "agile-delivery",
		Title: "Agile delivery",
	}
	if err := s.store.InsertTopic(ctx, topic); err != nil {
		return err
	}

	guide := store.Guide{
		ID:   util.NewID("gd"),
		Slug: "writing-user-stories",
		Type: "community",
	}
	if err := s.store.InsertGuide(ctx, guide); err != nil {
		return err
	}
	if _, err := s.store.InsertEdition(ctx, store.Edition{
		ID:          util.NewID("ed"),
		GuideID:     guide.ID,
		Version:     1,
		State:       string(workflow.StateDraft),
		Title:       "Writing user stories",
		Description: "How to describe work from the user's point of view",
		Body:        "## Start with the user need\n\nA user story describes a small piece of work from the user's perspective.\n",
		AuthorID:    owner.ID,
	}); err != nil {
		return err
	}
	return s.store.AddGuideToTopic(ctx, topic.ID, guide.ID)
}

// Sessions

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

// CreateSession issues a session for an already authenticated user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis backend only persists the user id; reload the row so role
	// changes take effect on the next refresh.
	if fresh, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = fresh
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Guides

func (s *Service) ListGuides(ctx context.Context, filter store.GuideFilter) (map[string]any, error) {
	if filter.State != "" && !workflow.Valid(workflow.State(filter.State)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown state filter", nil)
	}
	summaries, err := s.store.ListGuides(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, map[string]any{
			"id":        summary.ID,
			"slug":      summary.Slug,
			"type":      summary.Type,
			"title":     summary.Latest.Title,
			"state":     summary.Latest.State,
			"version":   summary.Latest.Version,
			"author":    summary.Latest.AuthorName,
			"owner":     summary.Latest.OwnerName,
			"updatedAt": summary.Latest.UpdatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"guides": items}, nil
}

func (s *Service) CreateGuide(ctx context.Context, input CreateGuideInput, session Session) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if _, ok := allowedUpdateTypes[input.UpdateType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "updateType must be 'major' or 'minor'", nil)
	}
	guideType := strings.TrimSpace(input.Type)
	if guideType == "" {
		guideType = "community"
	}
	if _, ok := allowedGuideTypes[guideType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be 'community' or 'point'", nil)
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = util.Slugify(title)
	}

	guide := store.Guide{
		ID:   util.NewID("gd"),
		Slug: slug,
		Type: guideType,
	}
	if err := s.store.InsertGuide(ctx, guide); err != nil {
		return nil, err
	}

	edition, err := s.store.InsertEdition(ctx, store.Edition{
		ID:             util.NewID("ed"),
		GuideID:        guide.ID,
		Version:        1,
		State:          string(workflow.StateDraft),
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Body:           input.Body,
		UpdateType:     input.UpdateType,
		AuthorID:       session.UserID,
		ContentOwnerID: strings.TrimSpace(input.ContentOwnerID),
	})
	if err != nil {
		return nil, err
	}

	s.indexGuide(guide, edition)
	return s.guidePayload(ctx, guide, edition)
}

func (s *Service) GetGuide(ctx context.Context, guideID string) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}
	return s.guidePayload(ctx, guide, latest)
}

// SaveDraft appends a draft edition with the given content. Published and
// discarded cycles are reopened the way the state machine allows: a published
// guide starts version+1, a discarded cycle resumes at the same version.
// Editions under review must be sent back before content changes.
func (s *Service) SaveDraft(ctx context.Context, guideID string, input GuideInput, session Session) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if _, ok := allowedUpdateTypes[input.UpdateType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "updateType must be 'major' or 'minor'", nil)
	}

	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}

	version := latest.Version
	switch workflow.State(latest.State) {
	case workflow.StateDraft, workflow.StateDiscarded:
		// Draft keeps accumulating rows; a discarded cycle reopens in place.
	case workflow.StatePublished:
		version = latest.Version + 1
	default:
		return nil, domainError(http.StatusConflict, "EDITION_LOCKED", "edition is in review; send it back before editing", nil)
	}

	edition, err := s.store.InsertEdition(ctx, store.Edition{
		ID:             util.NewID("ed"),
		GuideID:        guide.ID,
		Version:        version,
		State:          string(workflow.StateDraft),
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Body:           input.Body,
		UpdateType:     input.UpdateType,
		AuthorID:       session.UserID,
		ContentOwnerID: strings.TrimSpace(firstNonBlank(input.ContentOwnerID, latest.ContentOwnerID)),
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchGuide(ctx, guide.ID); err != nil {
		return nil, err
	}

	s.indexGuide(guide, edition)
	return s.guidePayload(ctx, guide, edition)
}

// StartNewDraft opens the next review cycle for a published guide, carrying
// the published content forward as the new draft's starting point.
func (s *Service) StartNewDraft(ctx context.Context, guideID string, session Session) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanStartNewDraft(workflow.State(latest.State)) {
		return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", "a new draft requires a published guide", map[string]any{
			"state": latest.State,
		})
	}

	edition, err := s.store.InsertEdition(ctx, store.Edition{
		ID:             util.NewID("ed"),
		GuideID:        guide.ID,
		Version:        latest.Version + 1,
		State:          string(workflow.StateDraft),
		Title:          latest.Title,
		Description:    latest.Description,
		Body:           latest.Body,
		UpdateType:     latest.UpdateType,
		AuthorID:       session.UserID,
		ContentOwnerID: latest.ContentOwnerID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchGuide(ctx, guide.ID); err != nil {
		return nil, err
	}
	return s.guidePayload(ctx, guide, edition)
}

func (s *Service) RequestReview(ctx context.Context, guideID string, session Session) (map[string]any, error) {
	return s.transition(ctx, guideID, workflow.ActionRequestReview, session)
}

// Approve records an approval row and moves the cycle to approved. Approval
// rows are append-only: approving an already-approved edition adds another
// row and leaves the state alone, so the thread still shows one state change.
func (s *Service) Approve(ctx context.Context, guideID string, session Session) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}

	current := workflow.State(latest.State)
	next := current
	if current != workflow.StateApproved {
		next, err = workflow.Transition(current, workflow.ActionApprove, s.policy)
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.store.InsertApproval(ctx, store.Approval{
		ID:         util.NewID("apr"),
		EditionID:  latest.ID,
		ApproverID: session.UserID,
	}); err != nil {
		return nil, err
	}

	edition := latest
	if next != current {
		edition, err = s.appendTransitionEdition(ctx, latest, next, session)
		if err != nil {
			return nil, err
		}
	}
	return s.guidePayload(ctx, guide, edition)
}

func (s *Service) SendBack(ctx context.Context, guideID string, session Session) (map[string]any, error) {
	return s.transition(ctx, guideID, workflow.ActionSendBack, session)
}

func (s *Service) Discard(ctx context.Context, guideID string, session Session) (map[string]any, error) {
	return s.transition(ctx, guideID, workflow.ActionDiscard, session)
}

// Publish moves an approved edition live. The guide must sit in at least one
// topic. Search indexing happens in the background and never fails the
// publish; subscribers are emailed unless the publisher is the only one.
func (s *Service) Publish(ctx context.Context, guideID string, session Session) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}

	included, err := s.store.GuideIncludedInTopic(ctx, guide.ID)
	if err != nil {
		return nil, err
	}
	next, err := workflow.Publish(workflow.State(latest.State), included, s.policy)
	if err != nil {
		return nil, err
	}

	edition, err := s.appendTransitionEdition(ctx, latest, next, session)
	if err != nil {
		return nil, err
	}

	s.indexGuide(guide, edition)
	s.notifyPublished(ctx, guide, edition, session)

	return s.guidePayload(ctx, guide, edition)
}

func (s *Service) transition(ctx context.Context, guideID string, action workflow.Action, session Session) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}
	next, err := workflow.Transition(workflow.State(latest.State), action, s.policy)
	if err != nil {
		return nil, err
	}
	edition, err := s.appendTransitionEdition(ctx, latest, next, session)
	if err != nil {
		return nil, err
	}
	return s.guidePayload(ctx, guide, edition)
}

// appendTransitionEdition writes the cycle's next snapshot: a fresh row with
// the same version and content but the new state. Published rows stay frozen
// because the change lands in a new row, never an UPDATE.
func (s *Service) appendTransitionEdition(ctx context.Context, latest store.Edition, next workflow.State, session Session) (store.Edition, error) {
	edition, err := s.store.InsertEdition(ctx, store.Edition{
		ID:             util.NewID("ed"),
		GuideID:        latest.GuideID,
		Version:        latest.Version,
		State:          string(next),
		Title:          latest.Title,
		Description:    latest.Description,
		Body:           latest.Body,
		UpdateType:     latest.UpdateType,
		AuthorID:       session.UserID,
		ContentOwnerID: latest.ContentOwnerID,
	})
	if err != nil {
		return store.Edition{}, err
	}
	if err := s.store.TouchGuide(ctx, latest.GuideID); err != nil {
		return store.Edition{}, err
	}
	return edition, nil
}

func (s *Service) indexGuide(guide store.Guide, edition store.Edition) {
	if s.search == nil {
		return
	}
	s.search.IndexGuide(search.GuideRecord{
		ID:          guide.ID,
		Slug:        guide.Slug,
		Title:       edition.Title,
		Description: edition.Description,
		Body:        edition.Body,
		State:       edition.State,
		Author:      edition.AuthorName,
	})
}

// notifyPublished emails the guide's authors and content owners. When the
// publisher is the only subscriber there is nobody to tell, so nothing is
// sent. Failures are logged; a lost email never unpublishes a guide.
func (s *Service) notifyPublished(ctx context.Context, guide store.Guide, edition store.Edition, session Session) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	subscribers, err := s.store.GuideSubscribers(ctx, guide.ID)
	if err != nil {
		log.Printf("publish: list subscribers for %s: %v", guide.ID, err)
		return
	}
	if len(subscribers) == 0 {
		return
	}
	if len(subscribers) == 1 && subscribers[0].ID == session.UserID {
		return
	}

	recipients := make([]string, 0, len(subscribers))
	for _, subscriber := range subscribers {
		if subscriber.Email != "" {
			recipients = append(recipients, subscriber.Email)
		}
	}
	if len(recipients) == 0 {
		return
	}

	guideURL := strings.TrimRight(s.cfg.SiteBaseURL, "/") + "/" + guide.Slug
	go func() {
		if err := s.mail.SendGuidePublishedEmail(recipients, edition.Title, guideURL, session.UserName); err != nil {
			log.Printf("publish: notify subscribers of %s: %v", guide.ID, err)
		}
	}()
}

// Comments and approvals

func (s *Service) AddComment(ctx context.Context, guideID, body string, session Session) (map[string]any, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}

	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestEdition(ctx, guide.ID)
	if err != nil {
		return nil, err
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		ID:        util.NewID("cm"),
		EditionID: latest.ID,
		AuthorID:  session.UserID,
		Body:      text,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"id":        comment.ID,
		"editionId": comment.EditionID,
		"author":    session.UserName,
		"body":      comment.Body,
		"createdAt": comment.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GuideThread rebuilds the audit narrative of one review cycle. version <= 0
// means the latest cycle.
func (s *Service) GuideThread(ctx context.Context, guideID string, version int) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if version <= 0 {
		latest, err := s.store.LatestEdition(ctx, guide.ID)
		if err != nil {
			return nil, err
		}
		version = latest.Version
	}

	editions, err := s.store.ListCycleEditions(ctx, guide.ID, version)
	if err != nil {
		return nil, err
	}
	if len(editions) == 0 {
		return nil, sql.ErrNoRows
	}
	comments, err := s.store.ListCycleComments(ctx, guide.ID, version)
	if err != nil {
		return nil, err
	}

	events := thread.Build(editions, comments, s.threadOpts)
	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		item := map[string]any{
			"kind": string(event.Kind),
			"at":   event.At.Format(time.RFC3339),
		}
		switch event.Kind {
		case thread.KindNewDraft:
			item["editionId"] = event.Edition.ID
			item["author"] = event.Edition.AuthorName
		case thread.KindAssigned:
			item["editionId"] = event.Edition.ID
			item["contentOwnerId"] = event.Edition.ContentOwnerID
			item["owner"] = event.Edition.OwnerName
		case thread.KindStateChanged:
			item["editionId"] = event.Edition.ID
			item["actor"] = event.Edition.AuthorName
			item["from"] = string(event.From)
			item["to"] = string(event.To)
		case thread.KindCommented:
			item["commentId"] = event.Comment.ID
			item["author"] = event.Comment.AuthorName
			item["body"] = event.Comment.Body
		}
		items = append(items, item)
	}

	return map[string]any{
		"guideId": guide.ID,
		"version": version,
		"events":  items,
	}, nil
}

// Topics

func (s *Service) CreateTopic(ctx context.Context, input CreateTopicInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = util.Slugify(title)
	}

	topic := store.Topic{
		ID:    util.NewID("tp"),
		Slug:  slug,
		Title: title,
	}
	if err := s.store.InsertTopic(ctx, topic); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":    topic.ID,
		"slug":  topic.Slug,
		"title": topic.Title,
	}, nil
}

func (s *Service) AddGuideToTopic(ctx context.Context, topicID, guideID string) (map[string]any, error) {
	guide, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddGuideToTopic(ctx, topicID, guide.ID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// Search

func (s *Service) Search(ctx context.Context, text, state string, limit, offset int) (map[string]any, error) {
	if state != "" && !workflow.Valid(workflow.State(state)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown state filter", nil)
	}
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}

	results, total, err := s.search.Search(search.Query{
		Text:        text,
		FilterState: state,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]any{
			"guideId": result.GuideID,
			"slug":    result.Slug,
			"title":   result.Title,
			"snippet": result.Snippet,
			"state":   result.State,
			"author":  result.Author,
		})
	}
	return map[string]any{
		"results": items,
		"total":   total,
		"query":   text,
	}, nil
}

// guidePayload is the shared response shape for guide reads and mutations.
func (s *Service) guidePayload(ctx context.Context, guide store.Guide, latest store.Edition) (map[string]any, error) {
	approvals, err := s.store.ListCycleApprovals(ctx, guide.ID, latest.Version)
	if err != nil {
		return nil, err
	}
	approvalItems := make([]map[string]any, 0, len(approvals))
	for _, approval := range approvals {
		approvalItems = append(approvalItems, map[string]any{
			"id":         approval.ID,
			"editionId":  approval.EditionID,
			"approver":   approval.ApproverName,
			"approverId": approval.ApproverID,
			"createdAt":  approval.CreatedAt.Format(time.RFC3339),
		})
	}

	payload := map[string]any{
		"id":   guide.ID,
		"slug": guide.Slug,
		"type": guide.Type,
		"edition": map[string]any{
			"id":             latest.ID,
			"version":        latest.Version,
			"state":          latest.State,
			"title":          latest.Title,
			"description":    latest.Description,
			"body":           latest.Body,
			"updateType":     latest.UpdateType,
			"author":         latest.AuthorName,
			"authorId":       latest.AuthorID,
			"contentOwnerId": latest.ContentOwnerID,
			"owner":          latest.OwnerName,
			"createdAt":      latest.CreatedAt.Format(time.RFC3339),
			"updatedAt":      latest.UpdatedAt.Format(time.RFC3339),
		},
		"approvals": approvalItems,
	}
	if workflow.State(latest.State) == workflow.StatePublished {
		payload["content"] = presenter.Content(guide, latest)
	}
	return payload, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
