package plan

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/student-plans/internal/models"
)

// Field keys of plan-level errors
const (
	FieldName              = "name"
	FieldTotalAmount       = "totalAmount"
	FieldPaymentType       = "paymentType"
	FieldCustomPaymentType = "customPaymentType"
	FieldInstallments      = "installments"
)

// InstallmentAmountKey is the error key of the amount of installment idx
func InstallmentAmountKey(idx int) string {
	return fmt.Sprintf("installment-%d-amount", idx)
}

// InstallmentDateKey is the error key of the due date of installment idx
func InstallmentDateKey(idx int) string {
	return fmt.Sprintf("installment-%d-date", idx)
}

// ValidationErrors maps a field key to a human readable message.
// An empty map means the plan is valid.
type ValidationErrors map[string]string

func (ve ValidationErrors) Error() string {
	keys := make([]string, 0, len(ve))
	for k := range ve {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+ve[k])
	}
	return strings.Join(parts, "; ")
}

// Validate checks a draft plan before submission. All applicable errors are
// collected; today decides which due dates are in the past.
func Validate(p models.Plan, today time.Time) ValidationErrors {
	errs := ValidationErrors{}

	if strings.TrimSpace(p.Name) == "" {
		errs[FieldName] = "Plan name is required"
	}
	if !isPositive(p.TotalAmount) {
		errs[FieldTotalAmount] = "Valid total amount is required"
	}
	if p.PaymentType == "" {
		errs[FieldPaymentType] = "Payment type is required"
	}
	if p.PaymentType == models.PaymentTypeOther && strings.TrimSpace(p.CustomPaymentType) == "" {
		errs[FieldCustomPaymentType] = "Please specify the payment type"
	}

	if p.PaymentMode == models.PaymentModeOneTime {
		return errs
	}
	if len(p.Installments) < MinInstallments {
		errs[FieldInstallments] = "At least 2 installments are required"
		return errs
	}

	todayStr := today.UTC().Format(models.DateLayout)
	seen := make(map[string]struct{}, len(p.Installments))
	for idx, inst := range p.Installments {
		if !isPositive(inst.Amount) {
			errs[InstallmentAmountKey(idx)] = "Amount must be greater than 0"
		}

		date := inst.DueDate
		if date == "" {
			errs[InstallmentDateKey(idx)] = "Due date is required"
			continue
		}
		if _, dup := seen[date]; dup {
			errs[InstallmentDateKey(idx)] = "Duplicate due date"
		}
		seen[date] = struct{}{}
		// ISO dates compare lexicographically
		if date < todayStr {
			errs[InstallmentDateKey(idx)] = "Due date cannot be in the past"
		}
	}

	if sum, mismatch := Mismatch(p); mismatch {
		errs[FieldInstallments] = fmt.Sprintf("Installments total (%s) doesn't match plan total", FormatAmount(sum))
	}
	return errs
}

// Mismatch returns the two-decimal sum of the installments and whether it is
// further than Tolerance from the plan total. A NaN amount never reports a mismatch;
// the amount itself is flagged by Validate.
func Mismatch(p models.Plan) (float64, bool) {
	var sum float64
	for _, inst := range p.Installments {
		sum = Round2(sum + Round2(inst.Amount))
	}
	return sum, math.Abs(Round2(sum-p.TotalAmount)) > Tolerance
}

// FormatAmount renders v with two decimals; non-finite values fall back to fmt
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%.2f", v)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
