package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
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

// EnsureMemberByName is the dev login path: looks a user up by display name
// and creates one in the default institution when absent.
func (s *PostgresStore) EnsureMemberByName(ctx context.Context, name string) (User, error) {
	const findUser = `
		SELECT id, display_name, role, COALESCE(institution_id, '')
		FROM users WHERE display_name = $1
	`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.Role, &user.InstitutionID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	institutionID, err := s.defaultInstitutionID(ctx)
	if err != nil {
		return User{}, err
	}

	insertUser := `
		INSERT INTO users (display_name, email, role, institution_id, is_email_verified)
		VALUES ($1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.compass.dev'), 'member', $2, TRUE)
		RETURNING id, display_name, role, COALESCE(institution_id, '')
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name, institutionID).Scan(&user.ID, &user.DisplayName, &user.Role, &user.InstitutionID); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, role, COALESCE(institution_id, ''), is_email_verified
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Role, &user.InstitutionID, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, COALESCE(institution_id, ''), is_email_verified
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.InstitutionID, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	institutionID := user.InstitutionID
	if institutionID == "" {
		resolved, err := s.defaultInstitutionID(ctx)
		if err != nil {
			return err
		}
		institutionID = resolved
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, institution_id, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, institutionID, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
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
		return fmt.Errorf("verify email rows: %w", err)
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
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
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

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role, COALESCE(u.institution_id, '')
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role, &user.InstitutionID)
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

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW()
	`, jti).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) ListInstitutions(ctx context.Context) ([]Institution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, created_at FROM institutions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	var items []Institution
	for rows.Next() {
		var item Institution
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetInstitution(ctx context.Context, id string) (Institution, error) {
	var item Institution
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug, created_at FROM institutions WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt)
	if err != nil {
		return Institution{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertInstitution(ctx context.Context, item Institution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO institutions (id, name, slug) VALUES ($1, $2, $3)
	`, item.ID, item.Name, item.Slug)
	if err != nil {
		return fmt.Errorf("insert institution: %w", err)
	}
	return nil
}

func (s *PostgresStore) defaultInstitutionID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM institutions ORDER BY created_at LIMIT 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("default institution: %w", err)
	}
	return id, nil
}

// GetCurrentCycle returns the most recent cycle for an institution, open or not.
func (s *PostgresStore) GetCurrentCycle(ctx context.Context, institutionID string) (Cycle, error) {
	var cycle Cycle
	err := s.db.QueryRowContext(ctx, `
		SELECT id, institution_id, title, state, map_x, map_y, created_at
		FROM cycles WHERE institution_id=$1
		ORDER BY created_at DESC LIMIT 1
	`, institutionID).Scan(&cycle.ID, &cycle.InstitutionID, &cycle.Title, &cycle.State, &cycle.MapX, &cycle.MapY, &cycle.CreatedAt)
	if err != nil {
		return Cycle{}, err
	}
	return cycle, nil
}

func (s *PostgresStore) GetCycle(ctx context.Context, id string) (Cycle, error) {
	var cycle Cycle
	err := s.db.QueryRowContext(ctx, `
		SELECT id, institution_id, title, state, map_x, map_y, created_at FROM cycles WHERE id=$1
	`, id).Scan(&cycle.ID, &cycle.InstitutionID, &cycle.Title, &cycle.State, &cycle.MapX, &cycle.MapY, &cycle.CreatedAt)
	if err != nil {
		return Cycle{}, err
	}
	return cycle, nil
}

func (s *PostgresStore) InsertCycle(ctx context.Context, cycle Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, institution_id, title, state) VALUES ($1, $2, $3, $4)
	`, cycle.ID, cycle.InstitutionID, cycle.Title, cycle.State)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func (s *PostgresStore) CloseCycle(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE cycles SET state='closed' WHERE id=$1 AND state='open'`, id)
	if err != nil {
		return false, fmt.Errorf("close cycle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close cycle rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateCyclePosition(ctx context.Context, id string, x, y int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE cycles SET map_x=$2, map_y=$3 WHERE id=$1`, id, x, y)
	if err != nil {
		return false, fmt.Errorf("update cycle position: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update cycle position rows: %w", err)
	}
	return affected > 0, nil
}
