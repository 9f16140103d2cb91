package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"waypost/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name, role FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	insertUser := `
		INSERT INTO users (id, display_name, email, role, is_email_verified)
		VALUES ($1, $2, CONCAT(LOWER(REPLACE($2, ' ', '.')), '@local.waypost.dev'), 'author', TRUE)
		RETURNING id, display_name, role
	`
	if err := s.db.QueryRowContext(ctx, insertUser, util.NewID("usr"), name).Scan(&user.ID, &user.DisplayName, &user.Role); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), role, is_email_verified
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), role, is_email_verified
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- sessions ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- guides ----

func (s *PostgresStore) InsertGuide(ctx context.Context, guide Guide) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guides (id, slug, guide_type)
		VALUES ($1, $2, $3)
	`, guide.ID, guide.Slug, guide.Type)
	if err != nil {
		return fmt.Errorf("insert guide: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGuide(ctx context.Context, guideID string) (Guide, error) {
	var guide Guide
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, guide_type, created_at, updated_at
		FROM guides WHERE id=$1
	`, guideID).Scan(&guide.ID, &guide.Slug, &guide.Type, &guide.CreatedAt, &guide.UpdatedAt)
	if err != nil {
		return Guide{}, err
	}
	return guide, nil
}

func (s *PostgresStore) TouchGuide(ctx context.Context, guideID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE guides SET updated_at=NOW() WHERE id=$1`, guideID)
	if err != nil {
		return fmt.Errorf("touch guide: %w", err)
	}
	return nil
}

const editionColumns = `
	e.id, e.guide_id, e.version, e.state, e.title, COALESCE(e.description, ''), e.body,
	COALESCE(e.update_type, ''), e.author_id, COALESCE(a.display_name, ''),
	COALESCE(e.content_owner_id, ''), COALESCE(o.display_name, ''),
	e.created_at, e.updated_at
`

func scanEdition(row interface{ Scan(...any) error }) (Edition, error) {
	var e Edition
	err := row.Scan(
		&e.ID, &e.GuideID, &e.Version, &e.State, &e.Title, &e.Description, &e.Body,
		&e.UpdateType, &e.AuthorID, &e.AuthorName,
		&e.ContentOwnerID, &e.OwnerName,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

// ListGuides returns each guide with its latest edition, newest update first.
// Filters match against the latest edition only, the way the listing screen
// filters by current workflow state and current author.
func (s *PostgresStore) ListGuides(ctx context.Context, filter GuideFilter) ([]GuideSummary, error) {
	query := `
		SELECT g.id, g.slug, g.guide_type, g.created_at, g.updated_at, ` + editionColumns + `
		FROM guides g
		JOIN LATERAL (
			SELECT * FROM editions
			WHERE guide_id = g.id
			ORDER BY version DESC, created_at DESC
			LIMIT 1
		) e ON TRUE
		LEFT JOIN users a ON a.id = e.author_id
		LEFT JOIN users o ON o.id = e.content_owner_id
		WHERE 1=1
	`
	args := []any{}
	if filter.State != "" {
		args = append(args, filter.State)
		query += fmt.Sprintf(" AND e.state = $%d", len(args))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		query += fmt.Sprintf(" AND e.author_id = $%d", len(args))
	}
	if filter.ContentOwnerID != "" {
		args = append(args, filter.ContentOwnerID)
		query += fmt.Sprintf(" AND e.content_owner_id = $%d", len(args))
	}
	query += " ORDER BY g.updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list guides: %w", err)
	}
	defer rows.Close()

	items := make([]GuideSummary, 0)
	for rows.Next() {
		var item GuideSummary
		if err := rows.Scan(
			&item.ID, &item.Slug, &item.Type, &item.CreatedAt, &item.UpdatedAt,
			&item.Latest.ID, &item.Latest.GuideID, &item.Latest.Version, &item.Latest.State,
			&item.Latest.Title, &item.Latest.Description, &item.Latest.Body,
			&item.Latest.UpdateType, &item.Latest.AuthorID, &item.Latest.AuthorName,
			&item.Latest.ContentOwnerID, &item.Latest.OwnerName,
			&item.Latest.CreatedAt, &item.Latest.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan guide summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guides: %w", err)
	}
	return items, nil
}

// ---- editions ----

func (s *PostgresStore) InsertEdition(ctx context.Context, e Edition) (Edition, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO editions (id, guide_id, version, state, title, description, body, update_type, author_id, content_owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''))
		RETURNING created_at, updated_at
	`, e.ID, e.GuideID, e.Version, e.State, e.Title, e.Description, e.Body, e.UpdateType, e.AuthorID, e.ContentOwnerID).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Edition{}, fmt.Errorf("insert edition: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetEdition(ctx context.Context, editionID string) (Edition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+editionColumns+`
		FROM editions e
		LEFT JOIN users a ON a.id = e.author_id
		LEFT JOIN users o ON o.id = e.content_owner_id
		WHERE e.id=$1
	`, editionID)
	return scanEdition(row)
}

// LatestEdition returns the newest edition of a guide by version then
// creation time, the row all workflow actions operate on.
func (s *PostgresStore) LatestEdition(ctx context.Context, guideID string) (Edition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+editionColumns+`
		FROM editions e
		LEFT JOIN users a ON a.id = e.author_id
		LEFT JOIN users o ON o.id = e.content_owner_id
		WHERE e.guide_id=$1
		ORDER BY e.version DESC, e.created_at DESC
		LIMIT 1
	`, guideID)
	return scanEdition(row)
}

// ListCycleEditions returns the editions of one review cycle, oldest first.
func (s *PostgresStore) ListCycleEditions(ctx context.Context, guideID string, version int) ([]Edition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+editionColumns+`
		FROM editions e
		LEFT JOIN users a ON a.id = e.author_id
		LEFT JOIN users o ON o.id = e.content_owner_id
		WHERE e.guide_id=$1 AND e.version=$2
		ORDER BY e.created_at ASC, e.id ASC
	`, guideID, version)
	if err != nil {
		return nil, fmt.Errorf("list cycle editions: %w", err)
	}
	defer rows.Close()

	items := make([]Edition, 0)
	for rows.Next() {
		item, err := scanEdition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edition: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate editions: %w", err)
	}
	return items, nil
}

// ---- comments ----

func (s *PostgresStore) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, edition_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.EditionID, c.AuthorID, c.Body).Scan(&c.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// ListCycleComments returns the comments attached to any edition of one
// review cycle, oldest first.
func (s *PostgresStore) ListCycleComments(ctx context.Context, guideID string, version int) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.edition_id, c.author_id, COALESCE(u.display_name, ''), c.body, c.created_at
		FROM comments c
		JOIN editions e ON e.id = c.edition_id
		LEFT JOIN users u ON u.id = c.author_id
		WHERE e.guide_id=$1 AND e.version=$2
		ORDER BY c.created_at ASC, c.id ASC
	`, guideID, version)
	if err != nil {
		return nil, fmt.Errorf("list cycle comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.EditionID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// ---- approvals ----

func (s *PostgresStore) InsertApproval(ctx context.Context, a Approval) (Approval, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO approvals (id, edition_id, approver_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, a.ID, a.EditionID, a.ApproverID).Scan(&a.CreatedAt)
	if err != nil {
		return Approval{}, fmt.Errorf("insert approval: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListCycleApprovals(ctx context.Context, guideID string, version int) ([]Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ap.id, ap.edition_id, ap.approver_id, COALESCE(u.display_name, ''), ap.created_at
		FROM approvals ap
		JOIN editions e ON e.id = ap.edition_id
		LEFT JOIN users u ON u.id = ap.approver_id
		WHERE e.guide_id=$1 AND e.version=$2
		ORDER BY ap.created_at ASC, ap.id ASC
	`, guideID, version)
	if err != nil {
		return nil, fmt.Errorf("list cycle approvals: %w", err)
	}
	defer rows.Close()

	items := make([]Approval, 0)
	for rows.Next() {
		var item Approval
		if err := rows.Scan(&item.ID, &item.EditionID, &item.ApproverID, &item.ApproverName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return items, nil
}

// ---- topics ----

func (s *PostgresStore) InsertTopic(ctx context.Context, topic Topic) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, slug, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO NOTHING
	`, topic.ID, topic.Slug, topic.Title)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddGuideToTopic(ctx context.Context, topicID, guideID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_guides (topic_id, guide_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, topicID, guideID)
	if err != nil {
		return fmt.Errorf("add guide to topic: %w", err)
	}
	return nil
}

// GuideIncludedInTopic reports whether the guide is reachable from at least
// one navigational topic, the publish precondition.
func (s *PostgresStore) GuideIncludedInTopic(ctx context.Context, guideID string) (bool, error) {
	var included bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM topic_guides WHERE guide_id=$1)`, guideID).Scan(&included)
	if err != nil {
		return false, fmt.Errorf("check topic placement: %w", err)
	}
	return included, nil
}

// ---- notifications ----

// GuideSubscribers returns the distinct users who have authored or owned an
// edition of the guide, the audience for the publication email.
func (s *PostgresStore) GuideSubscribers(ctx context.Context, guideID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT u.id, u.display_name, u.email
		FROM users u
		JOIN editions e ON u.id = e.author_id OR u.id = e.content_owner_id
		WHERE e.guide_id=$1
		ORDER BY u.display_name
	`, guideID)
	if err != nil {
		return nil, fmt.Errorf("list guide subscribers: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.DisplayName, &item.Email); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return items, nil
}
