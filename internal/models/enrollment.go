package models

// EnrollmentStatus is the state of a student's enrollment in a plan
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentRejected  EnrollmentStatus = "rejected"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment links a student to a plan
type Enrollment struct {
	ID         string           `json:"_id"`
	PlanID     string           `json:"plan,omitempty"`
	Student    StudentRef       `json:"student"`
	Status     EnrollmentStatus `json:"status"`
	IsPaid     bool             `json:"isPaid"`
	PaidAt     string           `json:"paidAt,omitempty"`
	AssignedAt string           `json:"assignedAt,omitempty"`
	EnrolledAt string           `json:"enrolledAt,omitempty"`
}

// StudentRef is the student summary embedded in enrollments and requests
type StudentRef struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RequestStatus is the review state of a student's plan request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// PlanRequest is a student's request to be put on a plan
type PlanRequest struct {
	ID        string        `json:"_id"`
	Student   StudentRef    `json:"student"`
	Plan      *Plan         `json:"plan,omitempty"`
	Message   string        `json:"message,omitempty"`
	Status    RequestStatus `json:"status"`
	CreatedAt string        `json:"createdAt,omitempty"`
}
