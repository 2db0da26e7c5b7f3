package models

import (
	"time"
)

// Share kinds recorded in the user_loans link table. The creator gets a
// UserTypeCreator row when the loan is written, everyone else UserTypeShared.
const (
	UserTypeCreator = "creator"
	UserTypeShared  = "shared"
)

type Loan struct {
	ID                 int64     `json:"loan_id"`              //nolint:tagliatelle
	Amount             float64   `json:"amount"`
	AnnualInterestRate float64   `json:"annual_interest_rate"` //nolint:tagliatelle
	TermMonths         int       `json:"loan_term_in_months"`  //nolint:tagliatelle
	CreatedBy          int64     `json:"created_by"`           //nolint:tagliatelle
	CreatedAt          time.Time `json:"created_at"`           //nolint:tagliatelle
	UpdatedAt          time.Time `json:"updated_at"`           //nolint:tagliatelle
}

// ScheduleEntry is one row of a loan's amortization schedule.
type ScheduleEntry struct {
	Month            int     `json:"month"`
	MonthlyPayment   float64 `json:"monthly_payment"`   //nolint:tagliatelle
	PrincipalPaid    float64 `json:"principal_paid"`    //nolint:tagliatelle
	InterestPaid     float64 `json:"interest_paid"`     //nolint:tagliatelle
	RemainingBalance float64 `json:"remaining_balance"` //nolint:tagliatelle
}

// LoanSummary describes the state of a loan after a given number of
// payments. Month 0 is the loan as created.
type LoanSummary struct {
	Month                  int     `json:"month"`
	PrincipalBalance       float64 `json:"principal_balance"`        //nolint:tagliatelle
	AggregatePrincipalPaid float64 `json:"aggregate_principal_paid"` //nolint:tagliatelle
	AggregateInterestPaid  float64 `json:"aggregate_interest_paid"`  //nolint:tagliatelle
}
