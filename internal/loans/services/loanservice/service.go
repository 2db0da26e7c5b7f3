package loanservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	repo "github.com/SangusIT/loanshare/internal/loans/repository/loanrepo"
	"github.com/SangusIT/loanshare/pkg/logger"
)

var (
	ErrNotFound    = errors.New("loan not found")
	ErrForbidden   = errors.New("loan not accessible to user")
	ErrInvalidLoan = errors.New("invalid loan")
	ErrBadMonth    = errors.New("month outside loan term")
)

type LoanService struct {
	loanRepo  Repository
	loanCache Cache
	users     UserDirectory
	lg        logger.Logger
}

type Repository interface {
	CreateLoan(context.Context, models.Loan) (int64, error)
	GetLoan(context.Context, int64) (models.Loan, error)
	ListLoans(context.Context, repo.ListLoansRequest) ([]models.Loan, error)
	UpdateLoan(context.Context, models.Loan) error
	DeleteLoan(context.Context, int64) error
	ShareLoan(ctx context.Context, loanID, userID int64) error
	AccessType(ctx context.Context, loanID, userID int64) (string, error)
	Shutdown(context.Context) error
}

type Cache interface {
	GetLoan(context.Context, int64) (models.Loan, error)
	SetLoan(context.Context, models.Loan) error
	GetSchedule(context.Context, int64) ([]models.ScheduleEntry, error)
	SetSchedule(context.Context, int64, []models.ScheduleEntry) error
	DeleteLoan(context.Context, int64) error
}

// UserDirectory is the slice of the user store sharing needs: resolving
// a grantee's username to an ID.
type UserDirectory interface {
	GetUser(context.Context, string) (models.User, error)
}

func New(loanRepo Repository, loanCache Cache, users UserDirectory, lg logger.Logger) *LoanService {
	return &LoanService{
		loanRepo:  loanRepo,
		loanCache: loanCache,
		users:     users,
		lg:        lg,
	}
}

func (ls *LoanService) CreateLoan(ctx context.Context, loan models.Loan) (int64, error) {
	switch {
	case loan.Amount <= 0:
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidLoan)
	case loan.AnnualInterestRate < 0:
		return 0, fmt.Errorf("%w: interest rate must not be negative", ErrInvalidLoan)
	case loan.TermMonths <= 0:
		return 0, fmt.Errorf("%w: term must be positive", ErrInvalidLoan)
	}

	loan.CreatedAt = time.Now()
	loan.UpdatedAt = time.Now()

	id, err := ls.loanRepo.CreateLoan(ctx, loan)
	if err != nil {
		return 0, fmt.Errorf("create loan error: %w", err)
	}

	loan.ID = id

	if err := ls.loanCache.SetLoan(ctx, loan); err != nil {
		ls.lg.Errorf("set loan cache error: %s", err.Error())
	}

	return id, nil
}

func (ls *LoanService) GetLoan(ctx context.Context, req GetLoanRequest) (models.Loan, error) {
	if _, err := ls.access(ctx, req.LoanID, req.UserID, req.IsAdmin); err != nil {
		return models.Loan{}, err
	}

	if !req.UseLastRevision {
		loan, err := ls.loanCache.GetLoan(ctx, req.LoanID)
		if err == nil {
			ls.lg.Info("cache hit")

			return loan, nil
		}

		ls.lg.Info("cache missed")
	}

	loan, err := ls.loanRepo.GetLoan(ctx, req.LoanID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return models.Loan{}, ErrNotFound
		}

		return models.Loan{}, fmt.Errorf("get loan error: %w", err)
	}

	if err := ls.loanCache.SetLoan(ctx, loan); err != nil {
		ls.lg.Errorf("set loan cache error: %s", err.Error())
	}

	return loan, nil
}

func (ls *LoanService) ListLoans(ctx context.Context, req ListLoansRequest) ([]models.Loan, error) {
	repoReq := repo.ListLoansRequest{
		UserID: req.UserID,
		All:    req.IsAdmin,
		Offset: req.Offset,
		Limit:  req.Limit,
	}

	loans, err := ls.loanRepo.ListLoans(ctx, repoReq)
	if err != nil {
		return nil, fmt.Errorf("list loans error: %w", err)
	}

	return loans, nil
}

func (ls *LoanService) UpdateLoan(ctx context.Context, req UpdateLoanRequest) error {
	userType, err := ls.access(ctx, req.Loan.ID, req.UserID, req.IsAdmin)
	if err != nil {
		return err
	}

	if userType != models.UserTypeCreator {
		return ErrForbidden
	}

	switch {
	case req.Loan.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidLoan)
	case req.Loan.AnnualInterestRate < 0:
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidLoan)
	case req.Loan.TermMonths <= 0:
		return fmt.Errorf("%w: term must be positive", ErrInvalidLoan)
	}

	req.Loan.UpdatedAt = time.Now()

	if err := ls.loanRepo.UpdateLoan(ctx, req.Loan); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("update loan error: %w", err)
	}

	// stale terms would poison schedule reads
	if err := ls.loanCache.DeleteLoan(ctx, req.Loan.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		ls.lg.Errorf("delete loan cache error: %s", err.Error())
	}

	return nil
}

func (ls *LoanService) DeleteLoan(ctx context.Context, req DeleteLoanRequest) error {
	userType, err := ls.access(ctx, req.LoanID, req.UserID, req.IsAdmin)
	if err != nil {
		return err
	}

	if userType != models.UserTypeCreator {
		return ErrForbidden
	}

	if err := ls.loanCache.DeleteLoan(ctx, req.LoanID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		ls.lg.Errorf("delete loan cache error: %s", err.Error())
	}

	if err := ls.loanRepo.DeleteLoan(ctx, req.LoanID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("delete loan error: %w", err)
	}

	return nil
}

// ShareLoan grants req.Username visibility of the loan. Anyone the loan
// is visible to may pass it on, matching how grants chain.
func (ls *LoanService) ShareLoan(ctx context.Context, req ShareLoanRequest) error {
	if _, err := ls.access(ctx, req.LoanID, req.UserID, req.IsAdmin); err != nil {
		return err
	}

	grantee, err := ls.users.GetUser(ctx, req.Username)
	if err != nil {
		return fmt.Errorf("get grantee error: %w", err)
	}

	if err := ls.loanRepo.ShareLoan(ctx, req.LoanID, grantee.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("share loan error: %w", err)
	}

	return nil
}

func (ls *LoanService) Schedule(ctx context.Context, req GetLoanRequest) ([]models.ScheduleEntry, error) {
	if _, err := ls.access(ctx, req.LoanID, req.UserID, req.IsAdmin); err != nil {
		return nil, err
	}

	if !req.UseLastRevision {
		schedule, err := ls.loanCache.GetSchedule(ctx, req.LoanID)
		if err == nil {
			ls.lg.Info("cache hit")

			return schedule, nil
		}

		ls.lg.Info("cache missed")
	}

	loan, err := ls.loanRepo.GetLoan(ctx, req.LoanID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get loan error: %w", err)
	}

	schedule := BuildSchedule(loan)

	if err := ls.loanCache.SetSchedule(ctx, req.LoanID, schedule); err != nil {
		ls.lg.Errorf("set schedule cache error: %s", err.Error())
	}

	return schedule, nil
}

func (ls *LoanService) Summary(ctx context.Context, req SummaryRequest) (models.LoanSummary, error) {
	if _, err := ls.access(ctx, req.LoanID, req.UserID, req.IsAdmin); err != nil {
		return models.LoanSummary{}, err
	}

	loan, err := ls.loanRepo.GetLoan(ctx, req.LoanID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return models.LoanSummary{}, ErrNotFound
		}

		return models.LoanSummary{}, fmt.Errorf("get loan error: %w", err)
	}

	if req.Month < 0 || req.Month > loan.TermMonths {
		return models.LoanSummary{}, ErrBadMonth
	}

	schedule, err := ls.loanCache.GetSchedule(ctx, req.LoanID)
	if err != nil {
		schedule = BuildSchedule(loan)

		if err := ls.loanCache.SetSchedule(ctx, req.LoanID, schedule); err != nil {
			ls.lg.Errorf("set schedule cache error: %s", err.Error())
		}
	}

	return SummaryAt(loan, schedule, req.Month), nil
}

// access resolves userID's relation to the loan, distinguishing a loan
// that does not exist from one the user simply cannot see. Admins act
// as creators everywhere.
func (ls *LoanService) access(ctx context.Context, loanID, userID int64, isAdmin bool) (string, error) {
	if isAdmin {
		return models.UserTypeCreator, nil
	}

	userType, err := ls.loanRepo.AccessType(ctx, loanID, userID)
	if err == nil {
		return userType, nil
	}

	if !errors.Is(err, repo.ErrNoAccess) {
		return "", fmt.Errorf("access type error: %w", err)
	}

	if _, err := ls.loanRepo.GetLoan(ctx, loanID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("get loan error: %w", err)
	}

	return "", ErrForbidden
}

func (ls *LoanService) BackgroundRefresh(ctx context.Context, ttl time.Duration) {
	t := time.NewTicker(ttl)

	if err := ls.refresh(ctx); err != nil {
		ls.lg.Errorf("refresh error: %s", err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := ls.refresh(ctx); err != nil {
				ls.lg.Errorf("refresh error: %s", err.Error())
			}
		}
	}
}

func (ls *LoanService) Shutdown(ctx context.Context) error {
	if err := ls.loanRepo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown loan repo error: %w", err)
	}

	return nil
}

func (ls *LoanService) refresh(ctx context.Context) error {
	errCh := make(chan error)
	go func() {
		defer close(errCh)

		loans, err := ls.loanRepo.ListLoans(ctx, repo.ListLoansRequest{All: true}) //nolint:exhaustruct
		if err != nil {
			errCh <- fmt.Errorf("list loans error: %w", err)

			return
		}

		for _, l := range loans {
			if err := ls.loanCache.SetLoan(ctx, l); err != nil {
				errCh <- fmt.Errorf("set loan cache error: %w", err)

				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled error: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return err
		}

		return nil
	}
}
