package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signin_service/internal/config"
	"signin_service/internal/lib/random"
	"signin_service/internal/models"
	"signin_service/internal/storage"
	"signin_service/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/puddle/v2"
	"github.com/pressly/goose/v3"
)

const uniqueViolationCode = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	if err := runMigrations(ctx, dsn); err != nil {
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	return goose.UpContext(ctx, db, ".")
}

func (r *PostgresRepo) CreateUser(ctx context.Context, email string, role models.Role) (models.User, error) {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users (email, role)
		VALUES ($1, $2)
		RETURNING id, email, email_verified_at, image, role, created_at, updated_at;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email, role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: failed to create user: %w", op, classify(err))
	}

	return u, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `
		SELECT id, email, email_verified_at, image, role, created_at, updated_at
		FROM users
		WHERE email = $1;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	return u, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `
		SELECT id, email, email_verified_at, image, role, created_at, updated_at
		FROM users
		WHERE id = $1;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	return u, nil
}

// * VerifyEmail отмечает email подтвержденным; повторный вызов обновляет отметку времени
func (r *PostgresRepo) VerifyEmail(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.VerifyEmail"

	query := `
		UPDATE users
		SET email_verified_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING id, email, email_verified_at, image, role, created_at, updated_at;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	return u, nil
}

func (r *PostgresRepo) CreateVerificationToken(ctx context.Context, identifier string, ttl time.Duration) (models.VerificationToken, error) {
	const op = "storage.postgres.CreateVerificationToken"

	value, err := random.TokenValue()
	if err != nil {
		return models.VerificationToken{}, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO verification_tokens (identifier, token, expires)
		VALUES ($1, $2, $3)
		RETURNING identifier, token, expires, created_at;
	`

	var vt models.VerificationToken

	err = r.pool.QueryRow(ctx, query, identifier, value, time.Now().Add(ttl)).
		Scan(&vt.Identifier, &vt.Token, &vt.Expires, &vt.CreatedAt)
	if err != nil {
		return models.VerificationToken{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	return vt, nil
}

func (r *PostgresRepo) VerificationTokenByValue(ctx context.Context, token string) (models.VerificationToken, error) {
	const op = "storage.postgres.VerificationTokenByValue"

	query := `
		SELECT identifier, token, expires, created_at
		FROM verification_tokens
		WHERE token = $1;
	`

	var vt models.VerificationToken

	err := r.pool.QueryRow(ctx, query, token).
		Scan(&vt.Identifier, &vt.Token, &vt.Expires, &vt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VerificationToken{}, storage.ErrVerificationTokenNotFound
		}

		return models.VerificationToken{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	return vt, nil
}

// * DeleteVerificationToken удаляет токен только при совпадении обоих полей
func (r *PostgresRepo) DeleteVerificationToken(ctx context.Context, identifier, token string) (int64, error) {
	const op = "storage.postgres.DeleteVerificationToken"

	query := `DELETE FROM verification_tokens WHERE identifier = $1 AND token = $2`

	tag, err := r.pool.Exec(ctx, query, identifier, token)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) DeleteVerificationTokens(ctx context.Context, identifier string) (int64, error) {
	const op = "storage.postgres.DeleteVerificationTokens"

	query := `DELETE FROM verification_tokens WHERE identifier = $1`

	tag, err := r.pool.Exec(ctx, query, identifier)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) CreateRefreshToken(ctx context.Context, userID int64, ttl time.Duration) (models.RefreshToken, error) {
	const op = "storage.postgres.CreateRefreshToken"

	value, err := random.TokenValue()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO refresh_tokens (user_id, token, expires)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token, expires, created_at;
	`

	var rt models.RefreshToken

	err = r.pool.QueryRow(ctx, query, userID, value, time.Now().Add(ttl)).
		Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.Expires, &rt.CreatedAt)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, classify(err))
	}

	return rt, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.EmailVerifiedAt,
		&u.Image,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

// classify maps pool-level failures to storage.ErrUnavailable so callers can
// answer 503 instead of a generic 500.
func classify(err error) error {
	if errors.Is(err, puddle.ErrClosedPool) {
		return storage.ErrUnavailable
	}

	return err
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
