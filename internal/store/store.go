package store

import (
	"context"
	"errors"

	"github.com/seantiz/courier/internal/model"
)

// ErrInvalidTransition is returned when a transfer status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransferStats holds aggregate transfer statistics.
type TransferStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	TotalBytes    int64          `json:"total_bytes"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the transfer journal.
type Store interface {
	CreateTransfer(ctx context.Context, tr *model.TransferRecord) error
	GetTransfer(ctx context.Context, id string) (*model.TransferRecord, error)
	ListTransfers(ctx context.Context, limit, offset int) ([]*model.TransferRecord, int, error)
	UpdateTransferStatus(ctx context.Context, id, status string) error
	MarkTransferDone(ctx context.Context, id, status, errMsg string, bytes int64, durationMS int) error
	GetTransferStats(ctx context.Context) (*TransferStats, error)
	Close() error
}
