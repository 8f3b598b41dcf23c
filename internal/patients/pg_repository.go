package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository is the pgx-backed Repository implementation.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

func (r *PgRepository) GetByPhone(ctx context.Context, phone string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, phone, COALESCE(name, ''), is_blocked, COALESCE(block_reason, ''), created_at
		FROM clients WHERE phone = $1
	`, phone)

	var c Client
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.IsBlocked, &c.BlockReason, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: get client: %w", err)
	}
	return &c, nil
}

func (r *PgRepository) Create(ctx context.Context, phone, name string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clients (phone, name)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, phone, COALESCE(name, ''), is_blocked, COALESCE(block_reason, ''), created_at
	`, phone, name)

	var c Client
	if err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.IsBlocked, &c.BlockReason, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("patients: create client: %w", err)
	}
	return &c, nil
}

func (r *PgRepository) UpdateName(ctx context.Context, phone, name string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE clients SET name = $2 WHERE phone = $1`, phone, name)
	if err != nil {
		return fmt.Errorf("patients: update name: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) IsAdmin(ctx context.Context, phone string) (bool, error) {
	var exists int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM admin_users WHERE phone = $1 AND is_active = TRUE
	`, phone).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("patients: check admin: %w", err)
	}
	return true, nil
}

func (r *PgRepository) AdminPhones(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT phone FROM admin_users WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("patients: list admins: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("patients: scan admin: %w", err)
		}
		phones = append(phones, p)
	}
	return phones, rows.Err()
}

func (r *PgRepository) Block(ctx context.Context, phone, reason string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE clients SET is_blocked = TRUE, block_reason = NULLIF($2, '')
		WHERE phone = $1
	`, phone, reason)
	if err != nil {
		return fmt.Errorf("patients: block client: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) Unblock(ctx context.Context, phone string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE clients SET is_blocked = FALSE, block_reason = NULL
		WHERE phone = $1
	`, phone)
	if err != nil {
		return fmt.Errorf("patients: unblock client: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) IsBlocked(ctx context.Context, phone string) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `SELECT is_blocked FROM clients WHERE phone = $1`, phone).Scan(&blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("patients: check blocked: %w", err)
	}
	return blocked, nil
}

func (r *PgRepository) TelegramChatID(ctx context.Context, phone string) (int64, error) {
	var chatID int64
	err := r.pool.QueryRow(ctx, `SELECT chat_id FROM telegram_users WHERE phone = $1`, phone).Scan(&chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("patients: telegram chat id: %w", err)
	}
	return chatID, nil
}

func (r *PgRepository) PhoneByChatID(ctx context.Context, chatID int64) (string, error) {
	var phone string
	err := r.pool.QueryRow(ctx, `SELECT phone FROM telegram_users WHERE chat_id = $1`, chatID).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("patients: phone by chat id: %w", err)
	}
	return phone, nil
}

func (r *PgRepository) LinkTelegram(ctx context.Context, chatID int64, phone, username string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO telegram_users (chat_id, phone, username)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (chat_id) DO UPDATE SET phone = EXCLUDED.phone, username = EXCLUDED.username
	`, chatID, phone, username)
	if err != nil {
		return fmt.Errorf("patients: link telegram: %w", err)
	}
	return nil
}
