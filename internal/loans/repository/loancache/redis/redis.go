package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	"github.com/SangusIT/loanshare/internal/loans/repository/loanrepo"
	"github.com/SangusIT/loanshare/internal/pkg/config"
	"github.com/SangusIT/loanshare/internal/pkg/redistools"
	"github.com/redis/go-redis/v9"
)

// LoanCache keeps loans and their computed amortization schedules.
// Both keys expire together, a schedule is never newer than its loan.
type LoanCache struct {
	rdb     *redis.Client
	expTime time.Duration
}

func New(ctx context.Context, cfg config.RedisCache) (LoanCache, error) {
	rdb, err := redistools.Connect(ctx, cfg)
	if err != nil {
		return LoanCache{}, fmt.Errorf("connect error: %w", err)
	}

	return LoanCache{
		rdb:     rdb,
		expTime: cfg.ExpTime,
	}, nil
}

func loanKey(loanID int64) string {
	return "loan:" + strconv.FormatInt(loanID, 10)
}

func scheduleKey(loanID int64) string {
	return "schedule:" + strconv.FormatInt(loanID, 10)
}

func (lc LoanCache) SetLoan(ctx context.Context, loan models.Loan) error {
	loanJSON, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err = lc.rdb.Set(ctx, loanKey(loan.ID), loanJSON, lc.expTime).Result(); err != nil {
		return fmt.Errorf("set error: %w", err)
	}

	return nil
}

func (lc LoanCache) GetLoan(ctx context.Context, loanID int64) (models.Loan, error) {
	loanJSON, err := lc.rdb.Get(ctx, loanKey(loanID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Loan{}, loanrepo.ErrNotFound
	} else if err != nil {
		return models.Loan{}, fmt.Errorf("get error: %w", err)
	}

	var loan models.Loan

	if err := json.Unmarshal([]byte(loanJSON), &loan); err != nil {
		return models.Loan{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return loan, nil
}

func (lc LoanCache) SetSchedule(ctx context.Context, loanID int64, schedule []models.ScheduleEntry) error {
	scheduleJSON, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err = lc.rdb.Set(ctx, scheduleKey(loanID), scheduleJSON, lc.expTime).Result(); err != nil {
		return fmt.Errorf("set error: %w", err)
	}

	return nil
}

func (lc LoanCache) GetSchedule(ctx context.Context, loanID int64) ([]models.ScheduleEntry, error) {
	scheduleJSON, err := lc.rdb.Get(ctx, scheduleKey(loanID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, loanrepo.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get error: %w", err)
	}

	var schedule []models.ScheduleEntry

	if err := json.Unmarshal([]byte(scheduleJSON), &schedule); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	return schedule, nil
}

// DeleteLoan drops both the loan and its schedule. Called on update and
// delete so stale terms never feed a schedule read.
func (lc LoanCache) DeleteLoan(ctx context.Context, loanID int64) error {
	deleted, err := lc.rdb.Del(ctx, loanKey(loanID), scheduleKey(loanID)).Result()
	if err != nil {
		return fmt.Errorf("del error: %w", err)
	}

	if deleted == 0 {
		return loanrepo.ErrNotFound
	}

	return nil
}
