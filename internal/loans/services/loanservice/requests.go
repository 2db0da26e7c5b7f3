package loanservice

import "github.com/SangusIT/loanshare/internal/loans/domain/models"

type GetLoanRequest struct {
	LoanID          int64
	UserID          int64
	IsAdmin         bool
	UseLastRevision bool
}

type ListLoansRequest struct {
	UserID  int64
	IsAdmin bool
	Offset  int
	Limit   int
}

type ShareLoanRequest struct {
	LoanID   int64
	UserID   int64
	IsAdmin  bool
	Username string // grantee
}

type UpdateLoanRequest struct {
	Loan    models.Loan
	UserID  int64
	IsAdmin bool
}

type SummaryRequest struct {
	LoanID  int64
	UserID  int64
	IsAdmin bool
	Month   int
}

type DeleteLoanRequest struct {
	LoanID  int64
	UserID  int64
	IsAdmin bool
}
