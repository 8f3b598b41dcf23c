package patients

import (
	"context"
	"errors"
)

// ErrNotFound indicates the phone number has no client row.
var ErrNotFound = errors.New("patients: client not found")

// Repository is the persistence surface for clients, admin roles, blocking,
// and the telegram identity mapping.
type Repository interface {
	GetByPhone(ctx context.Context, phone string) (*Client, error)
	Create(ctx context.Context, phone, name string) (*Client, error)
	UpdateName(ctx context.Context, phone, name string) error

	IsAdmin(ctx context.Context, phone string) (bool, error)
	AdminPhones(ctx context.Context) ([]string, error)

	Block(ctx context.Context, phone, reason string) error
	Unblock(ctx context.Context, phone string) error
	IsBlocked(ctx context.Context, phone string) (bool, error)

	TelegramChatID(ctx context.Context, phone string) (int64, error)
	PhoneByChatID(ctx context.Context, chatID int64) (string, error)
	LinkTelegram(ctx context.Context, chatID int64, phone, username string) error
}
