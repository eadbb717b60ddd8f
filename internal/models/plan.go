package models

// PaymentType is the fee category a plan is offered for
type PaymentType string

const (
	PaymentTypeTuition PaymentType = "tuition"
	PaymentTypeHostel  PaymentType = "hostel"
	PaymentTypeExam    PaymentType = "exam"
	PaymentTypeOther   PaymentType = "other"
)

// PaymentMode says how a plan may be paid
type PaymentMode string

const (
	PaymentModeOneTime      PaymentMode = "one_time"
	PaymentModeInstallments PaymentMode = "installments"
	PaymentModeBoth         PaymentMode = "both"
)

// HasInstallments reports whether the mode carries an installment schedule
func (m PaymentMode) HasInstallments() bool {
	return m == PaymentModeInstallments || m == PaymentModeBoth
}

// PlanStatus is the publication state of a plan
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusInactive PlanStatus = "inactive"
)

// Plan represents a student payment plan as exchanged with the admin backend
type Plan struct {
	ID                string        `json:"_id,omitempty"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	PaymentType       PaymentType   `json:"paymentType"`
	CustomPaymentType string        `json:"customPaymentType,omitempty"`
	TotalAmount       float64       `json:"totalAmount"`
	PaymentMode       PaymentMode   `json:"paymentMode"`
	Status            PlanStatus    `json:"status"`
	Installments      []Installment `json:"installments"`
	CreatedAt         string        `json:"createdAt,omitempty"`
	UpdatedAt         string        `json:"updatedAt,omitempty"`
}

// Clone returns a copy of the plan that shares no installment storage
func (p Plan) Clone() Plan {
	if p.Installments != nil {
		p.Installments = append([]Installment(nil), p.Installments...)
	}
	return p
}
