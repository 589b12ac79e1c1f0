package repository

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork runs a function against job and entry repositories bound to one
// transaction. The orchestrator's initiate is the only multi-record write in
// the system and must commit the job and all its entries together or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(jobs BatchJobRepository, entries QueueEntryRepository) error) error
}

type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Do(ctx context.Context, fn func(jobs BatchJobRepository, entries QueueEntryRepository) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormBatchJobRepo(tx), NewGormQueueEntryRepo(tx))
	})
}
