package store

import (
	"context"

	"edupanel/internal/models"
)

// RecordStore abstracts record storage backends.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *models.Record, uniqueKey string) error
	GetRecord(ctx context.Context, resource, id string) (*models.Record, error)
	ListRecords(ctx context.Context, resource string, filter ListFilter) ([]models.Record, error)
	CountRecords(ctx context.Context, resource string, filter ListFilter) (int, error)
	UpdateRecord(ctx context.Context, rec *models.Record, uniqueKey string, expectedVersion int) error
	DeleteRecord(ctx context.Context, resource, id string, expectedVersion int) error
	ScanRecords(ctx context.Context, fn func(models.Record) error) error
	Ping(ctx context.Context) error
}

var _ RecordStore = (*Store)(nil)
