package loanservice

import (
	"math"

	"github.com/SangusIT/loanshare/internal/loans/domain/models"
)

const monthsPerYear = 12

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100 //nolint:gomnd
}

// MonthlyPayment is the fixed payment that amortizes principal over
// termMonths at the given annual rate. A zero rate degenerates to
// straight division.
func MonthlyPayment(principal, annualRate float64, termMonths int) float64 {
	if termMonths <= 0 {
		return 0
	}

	r := annualRate / monthsPerYear
	if r == 0 {
		return roundCents(principal / float64(termMonths))
	}

	growth := math.Pow(1+r, float64(termMonths))

	return roundCents(principal * r * growth / (growth - 1))
}

// BuildSchedule produces the month-by-month amortization of a loan.
// Every figure is rounded to cents as it is computed; the final month
// clears whatever balance the rounding left so it always ends at zero.
func BuildSchedule(loan models.Loan) []models.ScheduleEntry {
	payment := MonthlyPayment(loan.Amount, loan.AnnualInterestRate, loan.TermMonths)
	monthlyRate := loan.AnnualInterestRate / monthsPerYear
	balance := loan.Amount

	schedule := make([]models.ScheduleEntry, 0, loan.TermMonths)

	for month := 1; month <= loan.TermMonths; month++ {
		interest := roundCents(balance * monthlyRate)
		principal := roundCents(payment - interest)

		if month == loan.TermMonths || principal > balance {
			principal = roundCents(balance)
		}

		balance = roundCents(balance - principal)

		schedule = append(schedule, models.ScheduleEntry{
			Month:            month,
			MonthlyPayment:   roundCents(principal + interest),
			PrincipalPaid:    principal,
			InterestPaid:     interest,
			RemainingBalance: balance,
		})
	}

	return schedule
}

// SummaryAt reduces a schedule to the loan's state after month payments.
// Month 0 is the untouched loan.
func SummaryAt(loan models.Loan, schedule []models.ScheduleEntry, month int) models.LoanSummary {
	s := models.LoanSummary{ //nolint:exhaustruct
		Month:            month,
		PrincipalBalance: loan.Amount,
	}

	for _, e := range schedule {
		if e.Month > month {
			break
		}

		s.AggregatePrincipalPaid = roundCents(s.AggregatePrincipalPaid + e.PrincipalPaid)
		s.AggregateInterestPaid = roundCents(s.AggregateInterestPaid + e.InterestPaid)
		s.PrincipalBalance = e.RemainingBalance
	}

	return s
}
