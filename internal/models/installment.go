package models

// DateLayout is the ISO calendar date format used for due dates
const DateLayout = "2006-01-02"

// Installment is one scheduled partial payment of a plan
type Installment struct {
	Amount  float64 `json:"amount"`
	DueDate string  `json:"dueDate"` // Format: YYYY-MM-DD
}
