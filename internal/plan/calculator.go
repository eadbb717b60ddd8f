package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/student-plans/internal/models"
)

const (
	// MinInstallments is the smallest schedule an installment plan may carry
	MinInstallments = 2
	// MaxInstallments is the largest schedule offered when picking a count
	MaxInstallments = 12
)

var (
	ErrInvalidTotal        = errors.New("valid total amount is required")
	ErrInvalidCount        = fmt.Errorf("installment count must be between %d and %d", MinInstallments, MaxInstallments)
	ErrTooFewInstallments  = errors.New("at least 2 installments required")
	ErrTooManyInstallments = fmt.Errorf("at most %d installments allowed", MaxInstallments)
	ErrIndexOutOfRange     = errors.New("installment index out of range")
)

// Generate builds an equal split of totalAmount over count monthly installments.
//
// The first installment is due on startDate and every following one a calendar month
// later. Month overflow rolls over (Jan 31 + 1 month = Mar 3, Mar 2 in leap years),
// as time.AddDate does. The last installment absorbs the rounding remainder so the
// amounts, added in order, sum to exactly totalAmount.
func Generate(totalAmount float64, startDate time.Time, count int) ([]models.Installment, error) {
	if !isPositive(totalAmount) {
		return nil, ErrInvalidTotal
	}
	if count < MinInstallments || count > MaxInstallments {
		return nil, ErrInvalidCount
	}

	installments := make([]models.Installment, count)
	for i := range installments {
		installments[i].DueDate = startDate.AddDate(0, i, 0).Format(models.DateLayout)
	}
	splitEqually(installments, totalAmount)
	return installments, nil
}

// RebalanceAfterEdit sets the amount of the installment at editedIndex and, unless it
// is the last one, recomputes the last installment as totalAmount minus all the others.
// Editing the last installment adjusts nothing else; validation reports any mismatch.
func RebalanceAfterEdit(installments []models.Installment, editedIndex int, newAmount, totalAmount float64) ([]models.Installment, error) {
	if editedIndex < 0 || editedIndex >= len(installments) {
		return nil, ErrIndexOutOfRange
	}

	out := append([]models.Installment(nil), installments...)
	out[editedIndex].Amount = newAmount

	last := len(out) - 1
	if editedIndex == last {
		return out, nil
	}

	var others float64
	for _, inst := range out[:last] {
		others += inst.Amount
	}
	out[last].Amount = totalAmount - others
	return out, nil
}

// RebalanceAfterRemoval drops the installment at removedIndex and splits totalAmount
// equally over the remaining ones. Remaining due dates are kept as they were.
func RebalanceAfterRemoval(installments []models.Installment, removedIndex int, totalAmount float64) ([]models.Installment, error) {
	if removedIndex < 0 || removedIndex >= len(installments) {
		return nil, ErrIndexOutOfRange
	}
	if len(installments)-1 < MinInstallments {
		return nil, ErrTooFewInstallments
	}

	out := make([]models.Installment, 0, len(installments)-1)
	out = append(out, installments[:removedIndex]...)
	out = append(out, installments[removedIndex+1:]...)
	splitEqually(out, totalAmount)
	return out, nil
}

// RebalanceAfterInsertion appends an installment due one calendar month after the
// current last one and splits totalAmount equally over the new schedule.
func RebalanceAfterInsertion(installments []models.Installment, totalAmount float64) ([]models.Installment, error) {
	if len(installments) >= MaxInstallments {
		return nil, ErrTooManyInstallments
	}

	next := models.Installment{}
	if n := len(installments); n > 0 {
		if last, err := time.Parse(models.DateLayout, installments[n-1].DueDate); err == nil {
			next.DueDate = last.AddDate(0, 1, 0).Format(models.DateLayout)
		}
	}

	out := make([]models.Installment, 0, len(installments)+1)
	out = append(out, installments...)
	out = append(out, next)
	splitEqually(out, totalAmount)
	return out, nil
}

// splitEqually gives every installment totalAmount/n and lets the last one take
// whatever the others leave. Subtracting the running sum instead of share*(n-1)
// keeps the in-order sum equal to totalAmount bit for bit.
func splitEqually(installments []models.Installment, totalAmount float64) {
	n := len(installments)
	if n == 0 {
		return
	}
	share := totalAmount / float64(n)

	var assigned float64
	for i := 0; i < n-1; i++ {
		installments[i].Amount = share
		assigned += share
	}
	installments[n-1].Amount = totalAmount - assigned
}
