package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
	"github.com/carelink-solutions/carelink-auth/pkg/database"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
)

// DBTX is the subset of *pgxpool.Pool the repository uses, so tests can
// substitute pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, role, caregiver_id, patient_id, phone,
	address1, address2, city, state, county, zip, first_name, last_name,
	agree_terms, agree_privacy_policy, token_version, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. The id is a random UUID.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "CreateUser", "INSERT INTO users")
	defer func() { end(err) }()

	now := time.Now().UTC()
	id := uuid.NewString()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = r.db.Exec(ctx, query,
		id,
		u.Email,
		u.PasswordHash,
		string(u.Role),
		u.CaregiverID,
		u.PatientID,
		u.Phone,
		u.Address1,
		u.Address2,
		u.City,
		u.State,
		u.County,
		u.Zip,
		u.FirstName,
		u.LastName,
		u.AgreeTerms,
		u.AgreePrivacyPolicy,
		u.TokenVersion,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	u.ID, u.CreatedAt, u.UpdatedAt = id, now, now
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetUserByID", "SELECT FROM users WHERE id")
	defer func() { end(err) }()

	// A malformed id cannot match any row.
	if _, perr := uuid.Parse(id); perr != nil {
		return nil, apperrors.NotFound("user", id)
	}

	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetUserByEmail", "SELECT FROM users WHERE email")
	defer func() { end(err) }()

	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) (_ []domain.User, _ int, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ListUsers", "SELECT FROM users ORDER BY created_at")
	defer func() { end(err) }()

	var total int
	if err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate user rows: %w", err)
	}

	return users, total, nil
}

// Update writes every mutable column of u except token_version, which only
// moves forward so a concurrent revocation is never undone.
func (r *UserRepository) Update(ctx context.Context, u *domain.User, bumpTokenVersion bool) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "UpdateUser", "UPDATE users WHERE id RETURNING token_version")
	defer func() { end(err) }()

	if _, perr := uuid.Parse(u.ID); perr != nil {
		return apperrors.NotFound("user", u.ID)
	}

	updatedAt := time.Now().UTC()
	bump := 0
	if bumpTokenVersion {
		bump = 1
	}

	query := `
		UPDATE users
		SET email = $1, password_hash = $2, role = $3, caregiver_id = $4, patient_id = $5,
		    phone = $6, address1 = $7, address2 = $8, city = $9, state = $10, county = $11,
		    zip = $12, first_name = $13, last_name = $14, agree_terms = $15,
		    agree_privacy_policy = $16, token_version = token_version + $17, updated_at = $18
		WHERE id = $19
		RETURNING token_version`

	var version int
	err = r.db.QueryRow(ctx, query,
		u.Email,
		u.PasswordHash,
		string(u.Role),
		u.CaregiverID,
		u.PatientID,
		u.Phone,
		u.Address1,
		u.Address2,
		u.City,
		u.State,
		u.County,
		u.Zip,
		u.FirstName,
		u.LastName,
		u.AgreeTerms,
		u.AgreePrivacyPolicy,
		bump,
		updatedAt,
		u.ID,
	).Scan(&version)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.NotFound("user", u.ID)
		case isUniqueViolation(err):
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}

	u.TokenVersion = version
	u.UpdatedAt = updatedAt
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteUser", "DELETE FROM users WHERE id RETURNING")
	defer func() { end(err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return nil, apperrors.NotFound("user", id)
	}

	u, err := scanUser(r.db.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id string) (_ int, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "IncrementTokenVersion", "UPDATE users SET token_version")
	defer func() { end(err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return 0, apperrors.NotFound("user", id)
	}

	var version int
	err = r.db.QueryRow(ctx,
		`UPDATE users SET token_version = token_version + 1, updated_at = $2 WHERE id = $1 RETURNING token_version`,
		id, time.Now().UTC(),
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NotFound("user", id)
		}
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return version, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.CaregiverID,
		&u.PatientID,
		&u.Phone,
		&u.Address1,
		&u.Address2,
		&u.City,
		&u.State,
		&u.County,
		&u.Zip,
		&u.FirstName,
		&u.LastName,
		&u.AgreeTerms,
		&u.AgreePrivacyPolicy,
		&u.TokenVersion,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
