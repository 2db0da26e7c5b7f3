package loanservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	"github.com/SangusIT/loanshare/internal/loans/repository/loanrepo"
	"github.com/SangusIT/loanshare/internal/loans/repository/userrepo"
	"github.com/SangusIT/loanshare/internal/loans/services/loanservice"
	"github.com/stretchr/testify/require"
)

type accessKey struct {
	loanID int64
	userID int64
}

type fakeLoanRepo struct {
	loans    map[int64]models.Loan
	access   map[accessKey]string
	nextID   int64
	getCalls int
}

func newFakeLoanRepo() *fakeLoanRepo {
	return &fakeLoanRepo{
		loans:  make(map[int64]models.Loan),
		access: make(map[accessKey]string),
		nextID: 1,
	}
}

func (fr *fakeLoanRepo) CreateLoan(_ context.Context, loan models.Loan) (int64, error) {
	id := fr.nextID
	fr.nextID++
	loan.ID = id
	fr.loans[id] = loan
	fr.access[accessKey{id, loan.CreatedBy}] = models.UserTypeCreator

	return id, nil
}

func (fr *fakeLoanRepo) GetLoan(_ context.Context, loanID int64) (models.Loan, error) {
	fr.getCalls++

	loan, ok := fr.loans[loanID]
	if !ok {
		return models.Loan{}, loanrepo.ErrNotFound
	}

	return loan, nil
}

func (fr *fakeLoanRepo) ListLoans(_ context.Context, req loanrepo.ListLoansRequest) ([]models.Loan, error) {
	loans := make([]models.Loan, 0, len(fr.loans))

	for id, l := range fr.loans {
		if req.All {
			loans = append(loans, l)

			continue
		}

		if _, ok := fr.access[accessKey{id, req.UserID}]; ok {
			loans = append(loans, l)
		}
	}

	return loans, nil
}

func (fr *fakeLoanRepo) UpdateLoan(_ context.Context, loan models.Loan) error {
	if _, ok := fr.loans[loan.ID]; !ok {
		return loanrepo.ErrNotFound
	}

	fr.loans[loan.ID] = loan

	return nil
}

func (fr *fakeLoanRepo) DeleteLoan(_ context.Context, loanID int64) error {
	if _, ok := fr.loans[loanID]; !ok {
		return loanrepo.ErrNotFound
	}

	delete(fr.loans, loanID)

	return nil
}

func (fr *fakeLoanRepo) ShareLoan(_ context.Context, loanID, userID int64) error {
	if _, ok := fr.loans[loanID]; !ok {
		return loanrepo.ErrNotFound
	}

	key := accessKey{loanID, userID}
	if _, ok := fr.access[key]; ok {
		return loanrepo.ErrAlreadyShared
	}

	fr.access[key] = models.UserTypeShared

	return nil
}

func (fr *fakeLoanRepo) AccessType(_ context.Context, loanID, userID int64) (string, error) {
	userType, ok := fr.access[accessKey{loanID, userID}]
	if !ok {
		return "", loanrepo.ErrNoAccess
	}

	return userType, nil
}

func (fr *fakeLoanRepo) Shutdown(context.Context) error { return nil }

type fakeCache struct {
	loans     map[int64]models.Loan
	schedules map[int64][]models.ScheduleEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		loans:     make(map[int64]models.Loan),
		schedules: make(map[int64][]models.ScheduleEntry),
	}
}

func (fc *fakeCache) GetLoan(_ context.Context, loanID int64) (models.Loan, error) {
	loan, ok := fc.loans[loanID]
	if !ok {
		return models.Loan{}, loanrepo.ErrNotFound
	}

	return loan, nil
}

func (fc *fakeCache) SetLoan(_ context.Context, loan models.Loan) error {
	fc.loans[loan.ID] = loan

	return nil
}

func (fc *fakeCache) GetSchedule(_ context.Context, loanID int64) ([]models.ScheduleEntry, error) {
	schedule, ok := fc.schedules[loanID]
	if !ok {
		return nil, loanrepo.ErrNotFound
	}

	return schedule, nil
}

func (fc *fakeCache) SetSchedule(_ context.Context, loanID int64, schedule []models.ScheduleEntry) error {
	fc.schedules[loanID] = schedule

	return nil
}

func (fc *fakeCache) DeleteLoan(_ context.Context, loanID int64) error {
	delete(fc.loans, loanID)
	delete(fc.schedules, loanID)

	return nil
}

type fakeUsers map[string]models.User

func (fu fakeUsers) GetUser(_ context.Context, username string) (models.User, error) {
	u, ok := fu[username]
	if !ok {
		return models.User{}, userrepo.ErrNotFound
	}

	return u, nil
}

type nopLogger struct{}

func (nopLogger) Info(...interface{})           {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Error(...interface{})          {}
func (nopLogger) Errorf(string, ...interface{}) {}

func newService() (*loanservice.LoanService, *fakeLoanRepo, *fakeCache, fakeUsers) {
	repo := newFakeLoanRepo()
	cache := newFakeCache()
	users := fakeUsers{
		"alice": {ID: 1, Username: "alice", Role: models.RoleUser},  //nolint:exhaustruct
		"bob":   {ID: 2, Username: "bob", Role: models.RoleUser},    //nolint:exhaustruct
		"carol": {ID: 3, Username: "carol", Role: models.RoleUser},  //nolint:exhaustruct
		"root":  {ID: 42, Username: "root", Role: models.RoleAdmin}, //nolint:exhaustruct
	}

	return loanservice.New(repo, cache, users, nopLogger{}), repo, cache, users
}

func newLoan() models.Loan {
	return models.Loan{ //nolint:exhaustruct
		Amount:             1000,
		AnnualInterestRate: 0.03,
		TermMonths:         24,
		CreatedBy:          1,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestCreateLoanValidation(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	loan := newLoan()
	loan.Amount = 0
	_, err := svc.CreateLoan(ctx, loan)
	require.ErrorIs(t, err, loanservice.ErrInvalidLoan)

	loan = newLoan()
	loan.AnnualInterestRate = -0.01
	_, err = svc.CreateLoan(ctx, loan)
	require.ErrorIs(t, err, loanservice.ErrInvalidLoan)

	loan = newLoan()
	loan.TermMonths = 0
	_, err = svc.CreateLoan(ctx, loan)
	require.ErrorIs(t, err, loanservice.ErrInvalidLoan)

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
}

func TestLoanVisibility(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	// creator sees the loan
	loan, err := svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 1}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Equal(t, int64(1), loan.CreatedBy)

	// a stranger does not
	_, err = svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 2}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrForbidden)

	// an admin always does
	_, err = svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 42, IsAdmin: true}) //nolint:exhaustruct
	require.NoError(t, err)

	// a missing loan is not found, not forbidden
	_, err = svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: 99, UserID: 1}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrNotFound)
}

func TestShareLoan(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	// creator shares with bob
	err = svc.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id, UserID: 1, Username: "bob"}) //nolint:exhaustruct
	require.NoError(t, err)

	_, err = svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 2}) //nolint:exhaustruct
	require.NoError(t, err)

	// bob may pass the grant on
	err = svc.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id, UserID: 2, Username: "carol"}) //nolint:exhaustruct
	require.NoError(t, err)

	_, err = svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 3}) //nolint:exhaustruct
	require.NoError(t, err)

	// carol cannot be granted twice
	err = svc.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id, UserID: 1, Username: "carol"}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanrepo.ErrAlreadyShared)

	// strangers cannot share what they cannot see
	svc2, _, _, _ := newService()
	id2, err := svc2.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	err = svc2.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id2, UserID: 2, Username: "carol"}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrForbidden)

	// unknown grantee
	err = svc.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id, UserID: 1, Username: "nobody"}) //nolint:exhaustruct
	require.ErrorIs(t, err, userrepo.ErrNotFound)
}

func TestUpdateLoanOwnership(t *testing.T) {
	svc, _, cache, _ := newService()
	ctx := context.Background()

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	err = svc.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id, UserID: 1, Username: "bob"}) //nolint:exhaustruct
	require.NoError(t, err)

	// warm the schedule cache
	_, err = svc.Schedule(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 2}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Contains(t, cache.schedules, id)

	updated := newLoan()
	updated.ID = id
	updated.Amount = 2000

	// a grantee may look but not touch
	err = svc.UpdateLoan(ctx, loanservice.UpdateLoanRequest{Loan: updated, UserID: 2}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrForbidden)

	err = svc.UpdateLoan(ctx, loanservice.UpdateLoanRequest{Loan: updated, UserID: 1}) //nolint:exhaustruct
	require.NoError(t, err)

	// the stale schedule must be gone
	require.NotContains(t, cache.schedules, id)

	loan, err := svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 1, UseLastRevision: true}) //nolint:exhaustruct
	require.NoError(t, err)
	require.InDelta(t, 2000, loan.Amount, 0.001)
}

func TestDeleteLoanOwnership(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	err = svc.ShareLoan(ctx, loanservice.ShareLoanRequest{LoanID: id, UserID: 1, Username: "bob"}) //nolint:exhaustruct
	require.NoError(t, err)

	err = svc.DeleteLoan(ctx, loanservice.DeleteLoanRequest{LoanID: id, UserID: 2}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrForbidden)

	err = svc.DeleteLoan(ctx, loanservice.DeleteLoanRequest{LoanID: id, UserID: 1}) //nolint:exhaustruct
	require.NoError(t, err)

	_, err = svc.GetLoan(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 1, UseLastRevision: true}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrNotFound)
}

func TestScheduleCached(t *testing.T) {
	svc, repo, _, _ := newService()
	ctx := context.Background()

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	first, err := svc.Schedule(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 1}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Len(t, first, 24)

	calls := repo.getCalls

	second, err := svc.Schedule(ctx, loanservice.GetLoanRequest{LoanID: id, UserID: 1}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, calls, repo.getCalls)
}

func TestSummaryMonthBounds(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	id, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	_, err = svc.Summary(ctx, loanservice.SummaryRequest{LoanID: id, UserID: 1, Month: -1}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrBadMonth)

	_, err = svc.Summary(ctx, loanservice.SummaryRequest{LoanID: id, UserID: 1, Month: 25}) //nolint:exhaustruct
	require.ErrorIs(t, err, loanservice.ErrBadMonth)

	s, err := svc.Summary(ctx, loanservice.SummaryRequest{LoanID: id, UserID: 1, Month: 12}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Equal(t, 12, s.Month)
	require.Less(t, s.PrincipalBalance, 1000.0)
}

func TestListLoans(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	_, err := svc.CreateLoan(ctx, newLoan())
	require.NoError(t, err)

	other := newLoan()
	other.CreatedBy = 2
	_, err = svc.CreateLoan(ctx, other)
	require.NoError(t, err)

	mine, err := svc.ListLoans(ctx, loanservice.ListLoansRequest{UserID: 1}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Len(t, mine, 1)

	all, err := svc.ListLoans(ctx, loanservice.ListLoansRequest{UserID: 42, IsAdmin: true}) //nolint:exhaustruct
	require.NoError(t, err)
	require.Len(t, all, 2)
}
