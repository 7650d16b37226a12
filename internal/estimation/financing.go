package estimation

import (
	"errors"
	"math"
)

// MaxDebtRatio is the HCSF cap on monthly debt over income.
const MaxDebtRatio = 0.35

var ErrInvalidFinancing = errors.New("price, rate and duration must be positive")

// FinancingInput is sent by the financing simulator form.
type FinancingInput struct {
	Price         float64 `json:"price"`
	Contribution  float64 `json:"contribution"`
	AnnualRate    float64 `json:"annual_rate"` // percent, e.g. 3.6
	Years         int     `json:"years"`
	MonthlyIncome float64 `json:"monthly_income"`
	MonthlyDebts  float64 `json:"monthly_debts"`
	NewBuild      bool    `json:"new_build"`
}

// FinancingResult summarises a loan simulation.
type FinancingResult struct {
	NotaryFees        float64 `json:"notary_fees"`
	LoanAmount        float64 `json:"loan_amount"`
	MonthlyPayment    float64 `json:"monthly_payment"`
	TotalInterest     float64 `json:"total_interest"`
	TotalCost         float64 `json:"total_cost"`
	DebtRatio         float64 `json:"debt_ratio"`
	MaxMonthlyPayment float64 `json:"max_monthly_payment"`
	BorrowingCapacity float64 `json:"borrowing_capacity"`
	Eligible          bool    `json:"eligible"`
}

// Simulate computes the monthly payment of an amortising loan and the
// borrower's capacity at the 35% debt ratio.
func Simulate(in FinancingInput) (*FinancingResult, error) {
	if in.Price <= 0 || in.AnnualRate <= 0 || in.Years <= 0 {
		return nil, ErrInvalidFinancing
	}

	feeRate := 0.075
	if in.NewBuild {
		feeRate = 0.025
	}
	res := &FinancingResult{NotaryFees: round2(in.Price * feeRate)}

	loan := in.Price + res.NotaryFees - in.Contribution
	if loan < 0 {
		loan = 0
	}
	res.LoanAmount = round2(loan)

	months := in.Years * 12
	monthlyRate := in.AnnualRate / 100 / 12
	res.MonthlyPayment = round2(MonthlyPayment(loan, monthlyRate, months))
	res.TotalCost = round2(res.MonthlyPayment * float64(months))
	res.TotalInterest = round2(res.TotalCost - loan)

	if in.MonthlyIncome > 0 {
		res.DebtRatio = round4((res.MonthlyPayment + in.MonthlyDebts) / in.MonthlyIncome)
		res.MaxMonthlyPayment = round2(math.Max(0, in.MonthlyIncome*MaxDebtRatio-in.MonthlyDebts))
		res.BorrowingCapacity = round2(Principal(res.MaxMonthlyPayment, monthlyRate, months))
		res.Eligible = res.DebtRatio <= MaxDebtRatio
	}
	return res, nil
}

// MonthlyPayment returns the annuity for principal at a monthly rate.
func MonthlyPayment(principal, monthlyRate float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	if monthlyRate == 0 {
		return principal / float64(months)
	}
	return principal * monthlyRate / (1 - math.Pow(1+monthlyRate, -float64(months)))
}

// Principal is the inverse of MonthlyPayment.
func Principal(payment, monthlyRate float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	if monthlyRate == 0 {
		return payment * float64(months)
	}
	return payment * (1 - math.Pow(1+monthlyRate, -float64(months))) / monthlyRate
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
