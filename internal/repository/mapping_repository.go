package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrPathExists      = errors.New("path already exists")
	ErrMissingQRCode   = errors.New("wechat mapping requires qr code data")
)

type MappingRepository interface {
	Create(ctx context.Context, m *models.Mapping) error
	GetByPath(ctx context.Context, path string) (*models.Mapping, error)
	Update(ctx context.Context, oldPath string, m *models.Mapping) error
	Delete(ctx context.Context, path string) error
	GetActiveTarget(ctx context.Context, path string, now time.Time) (*models.ActiveTarget, error)
	List(ctx context.Context, offset, limit int, excluded []string) ([]models.Mapping, int64, error)
	ListExpiring(ctx context.Context, horizon time.Time) ([]models.Mapping, error)
	ListExpiredPaths(ctx context.Context, now time.Time, limit int) ([]string, error)
	DeleteByPaths(ctx context.Context, paths []string) (int64, error)
}

type mappingRepository struct {
	db *PostgresDB
}

func NewMappingRepository(db *PostgresDB) MappingRepository {
	return &mappingRepository{db: db}
}

const mappingColumns = `path, target, name, expiry, enabled, is_wechat, qr_code_data, created_at`

func (r *mappingRepository) Create(ctx context.Context, m *models.Mapping) error {
	query := `
		INSERT INTO mappings (path, target, name, expiry, enabled, is_wechat, qr_code_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		m.Path,
		m.Target,
		m.Name,
		m.Expiry,
		m.Enabled,
		m.IsWechat,
		m.QRCodeData,
		m.CreatedAt,
	).Scan(&m.CreatedAt)

	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrPathExists
		case isCheckViolation(err):
			return ErrMissingQRCode
		}
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	return nil
}

func (r *mappingRepository) GetByPath(ctx context.Context, path string) (*models.Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE path = $1`

	m, err := scanMapping(r.db.Pool.QueryRow(ctx, query, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return m, nil
}

// Update перезаписывает строку oldPath; переименование выполняется тем же UPDATE,
// поэтому created_at сохраняется, а конфликт ключа ловит PRIMARY KEY
func (r *mappingRepository) Update(ctx context.Context, oldPath string, m *models.Mapping) error {
	query := `
		UPDATE mappings
		SET path = $1, target = $2, name = $3, expiry = $4, enabled = $5, is_wechat = $6, qr_code_data = $7
		WHERE path = $8
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		m.Path,
		m.Target,
		m.Name,
		m.Expiry,
		m.Enabled,
		m.IsWechat,
		m.QRCodeData,
		oldPath,
	).Scan(&m.CreatedAt)

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrMappingNotFound
		case isUniqueViolation(err):
			return ErrPathExists
		case isCheckViolation(err):
			return ErrMissingQRCode
		}
		return fmt.Errorf("failed to update mapping: %w", err)
	}

	return nil
}

// Delete удаляет строку; отсутствие строки ошибкой не считается
func (r *mappingRepository) Delete(ctx context.Context, path string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM mappings WHERE path = $1`, path); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

func (r *mappingRepository) GetActiveTarget(ctx context.Context, path string, now time.Time) (*models.ActiveTarget, error) {
	query := `
		SELECT target, expiry
		FROM mappings
		WHERE path = $1 AND enabled AND (expiry IS NULL OR expiry > $2)
	`

	target := &models.ActiveTarget{}
	err := r.db.Pool.QueryRow(ctx, query, path, now).Scan(&target.Target, &target.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get active target: %w", err)
	}

	return target, nil
}

// List возвращает страницу и общее число строк одним запросом: счётчик всегда
// даёт ровно одну строку, а LATERAL-подзапрос с окном страницы присоединяется к ней,
// так что total известен даже для пустой страницы
func (r *mappingRepository) List(ctx context.Context, offset, limit int, excluded []string) ([]models.Mapping, int64, error) {
	query := `
		SELECT c.total, m.path, m.target, m.name, m.expiry, m.enabled, m.is_wechat, m.qr_code_data, m.created_at
		FROM (
			SELECT COUNT(*) AS total FROM mappings WHERE path <> ALL($1::text[])
		) c
		LEFT JOIN LATERAL (
			SELECT ` + mappingColumns + `
			FROM mappings
			WHERE path <> ALL($1::text[])
			ORDER BY created_at DESC, path
			LIMIT $2 OFFSET $3
		) m ON TRUE
		ORDER BY m.created_at DESC, m.path
	`

	if excluded == nil {
		excluded = []string{}
	}

	rows, err := r.db.Pool.Query(ctx, query, excluded, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var (
		total    int64
		mappings = make([]models.Mapping, 0, limit)
	)
	for rows.Next() {
		var (
			path, target      *string
			enabled, isWechat *bool
			createdAt         *time.Time
			m                 models.Mapping
		)
		if err := rows.Scan(&total, &path, &target, &m.Name, &m.Expiry, &enabled, &isWechat, &m.QRCodeData, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan mapping: %w", err)
		}
		// Пустая страница: LEFT JOIN дал строку только со счётчиком
		if path == nil {
			continue
		}
		m.Path = *path
		m.Target = *target
		m.Enabled = *enabled
		m.IsWechat = *isWechat
		m.CreatedAt = *createdAt
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating mappings: %w", err)
	}

	return mappings, total, nil
}

func (r *mappingRepository) ListExpiring(ctx context.Context, horizon time.Time) ([]models.Mapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM mappings
		WHERE expiry IS NOT NULL AND expiry <= $1 AND enabled
		ORDER BY expiry ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiring mappings: %w", err)
	}

	return mappings, nil
}

func (r *mappingRepository) ListExpiredPaths(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT path
		FROM mappings
		WHERE expiry IS NOT NULL AND expiry < $1
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired paths: %w", err)
	}

	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect expired paths: %w", err)
	}

	return paths, nil
}

func (r *mappingRepository) DeleteByPaths(ctx context.Context, paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	result, err := r.db.Pool.Exec(ctx, `DELETE FROM mappings WHERE path = ANY($1::text[])`, paths)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mappings: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanMapping(row pgx.Row) (*models.Mapping, error) {
	m := &models.Mapping{}
	err := row.Scan(
		&m.Path,
		&m.Target,
		&m.Name,
		&m.Expiry,
		&m.Enabled,
		&m.IsWechat,
		&m.QRCodeData,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
