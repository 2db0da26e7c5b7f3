package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/SangusIT/loanshare/internal/loans/domain/models"
	repo "github.com/SangusIT/loanshare/internal/loans/repository/loanrepo"
	"github.com/SangusIT/loanshare/internal/pkg/config"
	"github.com/SangusIT/loanshare/internal/pkg/pgtools"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // driver for migrations
)

type LoansPostgresRepo struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, cfg config.PostgresDB) (LoansPostgresRepo, error) {
	db, err := pgtools.Connect(ctx, pgtools.ConnString(cfg))
	if err != nil {
		return LoansPostgresRepo{}, fmt.Errorf("connect to db error: %w", err)
	}

	if err := pgtools.ApplyMigration(cfg); err != nil {
		return LoansPostgresRepo{}, fmt.Errorf("apply migration error: %w", err)
	}

	return LoansPostgresRepo{
		db: db,
	}, nil
}

// CreateLoan writes the loan and its creator link row in one transaction,
// so a loan can never exist without an owner.
func (lr LoansPostgresRepo) CreateLoan(ctx context.Context, //nolint:nonamedreturns
	loan models.Loan,
) (id int64, err error) {
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "create loan")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Insert("loans").
		Columns("amount", "annual_interest_rate", "term_months", "created_at", "updated_at").
		Values(loan.Amount, loan.AnnualInterestRate, loan.TermMonths, loan.CreatedAt, loan.UpdatedAt).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, fmt.Errorf("to sql error: %w", err)
	}

	if err = tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("scan error: %w", err)
	}

	query, args, err = psql.Insert("user_loans").
		Columns("user_id", "loan_id", "user_type").
		Values(loan.CreatedBy, id, models.UserTypeCreator).ToSql()
	if err != nil {
		return 0, fmt.Errorf("to sql error: %w", err)
	}

	if _, err = tx.Exec(ctx, query, args...); err != nil {
		target := new(pgconn.PgError)
		if errors.As(err, &target) && target.Code == "23503" {
			return 0, repo.ErrNotFound
		}

		return 0, fmt.Errorf("exec error: %w", err)
	}

	return id, nil
}

func (lr LoansPostgresRepo) GetLoan(ctx context.Context, loanID int64) (models.Loan, error) {
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return models.Loan{}, fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "get loan")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Select("l.id", "l.amount", "l.annual_interest_rate",
		"l.term_months", "ul.user_id", "l.created_at", "l.updated_at").
		From("loans l").
		Join("user_loans ul ON ul.loan_id = l.id AND ul.user_type = ?", models.UserTypeCreator).
		Where(squirrel.Eq{"l.id": loanID}).ToSql()
	if err != nil {
		return models.Loan{}, fmt.Errorf("to sql error: %w", err)
	}

	var l models.Loan

	if err := tx.QueryRow(ctx, query, args...).Scan(
		&l.ID, &l.Amount, &l.AnnualInterestRate, &l.TermMonths,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return l, repo.ErrNotFound
		}

		return l, fmt.Errorf("scan error: %w", err)
	}

	return l, nil
}

func (lr LoansPostgresRepo) ListLoans(ctx context.Context, //nolint:nonamedreturns
	req repo.ListLoansRequest,
) (loans []models.Loan, err error) {
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "list loans")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	sb := psql.Select("l.id", "l.amount", "l.annual_interest_rate",
		"l.term_months", "ul.user_id", "l.created_at", "l.updated_at").
		From("loans l").
		Join("user_loans ul ON ul.loan_id = l.id AND ul.user_type = ?", models.UserTypeCreator)

	if !req.All {
		sb = sb.Join("user_loans v ON v.loan_id = l.id").
			Where(squirrel.Eq{"v.user_id": req.UserID})
	}

	sb = sb.OrderBy("l.id ASC")

	if req.Offset != 0 {
		sb = sb.Offset(uint64(req.Offset))
	}

	if req.Limit != 0 {
		sb = sb.Limit(uint64(req.Limit))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("to sql error: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	loans = make([]models.Loan, 0, 10) //nolint:gomnd

	for rows.Next() {
		var l models.Loan

		err = rows.Scan(&l.ID, &l.Amount, &l.AnnualInterestRate, &l.TermMonths,
			&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan error %w", err)
		}

		loans = append(loans, l)
	}

	return loans, nil
}

func (lr LoansPostgresRepo) UpdateLoan(ctx context.Context, loan models.Loan) (err error) { //nolint:nonamedreturns
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "update loan")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Update("loans").
		Set("amount", loan.Amount).
		Set("annual_interest_rate", loan.AnnualInterestRate).
		Set("term_months", loan.TermMonths).
		Set("updated_at", loan.UpdatedAt).
		Where(squirrel.Eq{"id": loan.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("to sql error: %w", err)
	}

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec error: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	return nil
}

func (lr LoansPostgresRepo) DeleteLoan(ctx context.Context, loanID int64) (err error) { //nolint:nonamedreturns
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "delete loan")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Delete("loans").
		Where(squirrel.Eq{"id": loanID}).ToSql()
	if err != nil {
		return fmt.Errorf("to sql error: %w", err)
	}

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec error: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	return nil
}

func (lr LoansPostgresRepo) ShareLoan(ctx context.Context, loanID, userID int64) (err error) { //nolint:nonamedreturns
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "share loan")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Insert("user_loans").
		Columns("user_id", "loan_id", "user_type").
		Values(userID, loanID, models.UserTypeShared).ToSql()
	if err != nil {
		return fmt.Errorf("to sql error: %w", err)
	}

	if _, err = tx.Exec(ctx, query, args...); err != nil {
		target := new(pgconn.PgError)
		if errors.As(err, &target) {
			switch target.Code {
			case "23505": // duplicate link, including sharing with the creator
				return repo.ErrAlreadyShared
			case "23503":
				return repo.ErrNotFound
			}
		}

		return fmt.Errorf("exec error: %w", err)
	}

	return nil
}

// AccessType reports how userID relates to the loan: creator, shared,
// or ErrNoAccess when no link row exists.
func (lr LoansPostgresRepo) AccessType(ctx context.Context, loanID, userID int64) (string, error) {
	tx, err := lr.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot begin transaction error: %w", err)
	}

	defer func() {
		err = pgtools.CommitOrRollback(ctx, tx, err, "access type")
	}()

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Select("user_type").
		From("user_loans").
		Where(squirrel.Eq{"loan_id": loanID, "user_id": userID}).ToSql()
	if err != nil {
		return "", fmt.Errorf("to sql error: %w", err)
	}

	var userType string

	if err := tx.QueryRow(ctx, query, args...).Scan(&userType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repo.ErrNoAccess
		}

		return "", fmt.Errorf("scan error: %w", err)
	}

	return userType, nil
}

func (lr LoansPostgresRepo) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		lr.db.Close()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("context error: %w", ctx.Err())
	case <-done:
		return nil
	}
}
