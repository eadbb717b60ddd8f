package form

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/student-plans/internal/integrations/backend"
	"github.com/Dan9191/student-plans/internal/models"
	"github.com/Dan9191/student-plans/internal/plan"
)

// Mode is the editing session kind chosen by the caller
type Mode string

const (
	ModeCreate Mode = "Create"
	ModeEdit   Mode = "Edit"
	ModeView   Mode = "View"
)

// GenericFailure is shown when the backend gives no message of its own
const GenericFailure = "Something went wrong"

var (
	ErrReadOnly         = errors.New("plan is read-only")
	ErrSubmitInProgress = errors.New("plan submission already in progress")
	ErrClosed           = errors.New("plan form is closed")
	ErrUnknownField     = errors.New("unknown plan field")
	ErrPlanIDRequired   = errors.New("plan id is required")
	ErrUnknownMode      = errors.New("unknown form mode")

	NowFunc = time.Now // mockable
)

// Fields written by SetField
const (
	FieldName              = plan.FieldName
	FieldDescription       = "description"
	FieldPaymentType       = plan.FieldPaymentType
	FieldCustomPaymentType = plan.FieldCustomPaymentType
	FieldTotalAmount       = plan.FieldTotalAmount
	FieldPaymentMode       = "paymentMode"
	FieldStatus            = "status"
)

// coreFields are marked touched on submit; their errors show only once touched
var coreFields = []string{FieldName, FieldTotalAmount, FieldPaymentType, FieldPaymentMode}

// PlanClient is the backend the form loads from and submits to
type PlanClient interface {
	GetPlan(ctx context.Context, id string) (models.Plan, error)
	CreatePlan(ctx context.Context, p models.Plan) (backend.Result, error)
	UpdatePlan(ctx context.Context, id string, p models.Plan) (backend.Result, error)
}

// SubmitError carries the message shown to the user when the backend rejects a submit
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string { return e.Message }
func (e *SubmitError) Unwrap() error { return e.Err }

// Outcome is the result of a successful Submit
type Outcome struct {
	Closed  bool   `json:"closed"`
	Message string `json:"message,omitempty"`
}

// Snapshot is the serializable state of a form handed to the view layer
type Snapshot struct {
	Mode       Mode                  `json:"mode"`
	PlanID     string                `json:"planId,omitempty"`
	Draft      models.Plan           `json:"draft"`
	Errors     plan.ValidationErrors `json:"errors"`
	Touched    map[string]bool       `json:"touched"`
	Warning    string                `json:"warning,omitempty"`
	Submitting bool                  `json:"submitting"`
	Closed     bool                  `json:"closed"`
	Message    string                `json:"message,omitempty"`
	MinDate    string                `json:"minDate"`
}

// Controller owns the draft of one plan editing session
type Controller struct {
	mu      sync.Mutex
	mode    Mode
	planID  string
	client  PlanClient
	refresh *RefreshSignal
	now     func() time.Time

	draft      models.Plan
	touched    map[string]bool
	errs       plan.ValidationErrors
	submitting bool
	closed     bool
	message    string
}

// NewController opens a form session. Edit and View need a plan id and a Load call.
func NewController(mode Mode, planID string, client PlanClient, refresh *RefreshSignal) (*Controller, error) {
	switch mode {
	case ModeCreate:
	case ModeEdit, ModeView:
		if strings.TrimSpace(planID) == "" {
			return nil, ErrPlanIDRequired
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	return &Controller{
		mode:    mode,
		planID:  planID,
		client:  client,
		refresh: refresh,
		now:     NowFunc,
		draft:   emptyDraft(),
		touched: map[string]bool{},
		errs:    plan.ValidationErrors{},
	}, nil
}

func emptyDraft() models.Plan {
	return models.Plan{
		PaymentType:  models.PaymentTypeTuition,
		PaymentMode:  models.PaymentModeOneTime,
		Status:       models.PlanStatusActive,
		Installments: []models.Installment{},
	}
}

// Mode returns the session kind
func (c *Controller) Mode() Mode { return c.mode }

// Load pre-populates the draft from the backend in Edit and View mode.
// Loading is not an edit: the fetched schedule is kept as is.
func (c *Controller) Load(ctx context.Context) error {
	if c.mode == ModeCreate {
		return nil
	}

	p, err := c.client.GetPlan(ctx, c.planID)
	if err != nil {
		return fmt.Errorf("failed to fetch plan: %w", err)
	}

	draft := emptyDraft()
	draft.Name = p.Name
	draft.Description = p.Description
	draft.TotalAmount = p.TotalAmount
	if p.PaymentType != "" {
		draft.PaymentType = p.PaymentType
	}
	if p.PaymentType == models.PaymentTypeOther {
		draft.CustomPaymentType = p.CustomPaymentType
	}
	if p.PaymentMode != "" {
		draft.PaymentMode = p.PaymentMode
	}
	if p.Status != "" {
		draft.Status = p.Status
	}
	if p.Installments != nil {
		draft.Installments = append([]models.Installment(nil), p.Installments...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = draft
	return nil
}

// SetField applies a user edit to a plan-level field. A change of the total amount or
// of the payment mode regenerates the installment schedule, discarding manual edits.
func (c *Controller) SetField(field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	switch field {
	case FieldName:
		c.draft.Name = value
	case FieldDescription:
		c.draft.Description = value
	case FieldPaymentType:
		c.draft.PaymentType = models.PaymentType(value)
	case FieldCustomPaymentType:
		c.draft.CustomPaymentType = value
	case FieldStatus:
		c.draft.Status = models.PlanStatus(value)
	case FieldTotalAmount:
		total := parseAmount(value)
		if total == c.draft.TotalAmount {
			return nil
		}
		c.draft.TotalAmount = total
		c.regenerate()
	case FieldPaymentMode:
		mode := models.PaymentMode(value)
		if mode == c.draft.PaymentMode {
			return nil
		}
		c.draft.PaymentMode = mode
		c.regenerate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// SetInstallmentCount replaces the schedule with an equal split over count installments
func (c *Controller) SetInstallmentCount(count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	schedule, err := plan.Generate(c.draft.TotalAmount, c.today(), count)
	if err != nil {
		return err
	}
	c.draft.Installments = schedule
	return nil
}

// SetInstallmentAmount overrides one installment amount; the last installment absorbs
// the difference unless it is the one being edited. Unparseable input counts as 0.
func (c *Controller) SetInstallmentAmount(idx int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	schedule, err := plan.RebalanceAfterEdit(c.draft.Installments, idx, parseAmount(value), c.draft.TotalAmount)
	if err != nil {
		return err
	}
	c.draft.Installments = schedule
	return nil
}

// SetInstallmentDate changes the due date of one installment
func (c *Controller) SetInstallmentDate(idx int, dueDate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	if idx < 0 || idx >= len(c.draft.Installments) {
		return plan.ErrIndexOutOfRange
	}

	schedule := append([]models.Installment(nil), c.draft.Installments...)
	schedule[idx].DueDate = dueDate
	c.draft.Installments = schedule
	return nil
}

// RemoveInstallment drops one installment and re-splits the total equally
func (c *Controller) RemoveInstallment(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	schedule, err := plan.RebalanceAfterRemoval(c.draft.Installments, idx, c.draft.TotalAmount)
	if err != nil {
		return err
	}
	c.draft.Installments = schedule
	return nil
}

// AddInstallment appends an installment a month after the last and re-splits the total equally
func (c *Controller) AddInstallment() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	schedule, err := plan.RebalanceAfterInsertion(c.draft.Installments, c.draft.TotalAmount)
	if err != nil {
		return err
	}
	c.draft.Installments = schedule
	return nil
}

// Touch marks a field as interacted with, enabling display of its error
func (c *Controller) Touch(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched[field] = true
}

// Submit validates the draft and sends it to the backend.
//
// In View mode it only closes the form. Validation failures return
// plan.ValidationErrors without calling the backend. Backend failures return a
// *SubmitError and leave the form open for a retry. A second Submit while one is in
// flight returns ErrSubmitInProgress.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	if c.mode == ModeView {
		c.closed = true
		c.mu.Unlock()
		return Outcome{Closed: true}, nil
	}
	if c.submitting {
		c.mu.Unlock()
		return Outcome{}, ErrSubmitInProgress
	}

	for _, f := range coreFields {
		c.touched[f] = true
	}
	c.errs = plan.Validate(c.draft, c.now())
	if len(c.errs) > 0 {
		errs := c.errs
		c.mu.Unlock()
		return Outcome{}, errs
	}

	payload := normalize(c.draft)
	mode, id := c.mode, c.planID
	c.submitting = true
	c.message = ""
	c.mu.Unlock()

	var err error
	if mode == ModeEdit {
		_, err = c.client.UpdatePlan(ctx, id, payload)
	} else {
		_, err = c.client.CreatePlan(ctx, payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	action := "create"
	if mode == ModeEdit {
		action = "update"
	}
	if err != nil {
		msg := failureMessage(err)
		c.message = fmt.Sprintf("Failed to %s plan: %s", action, msg)
		return Outcome{}, &SubmitError{Message: msg, Err: err}
	}

	if c.refresh != nil {
		c.refresh.Request()
	}
	c.closed = true
	c.message = fmt.Sprintf("Plan %sd successfully!", action)
	return Outcome{Closed: true, Message: c.message}, nil
}

// Cancel closes the form and discards the draft
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.draft = emptyDraft()
}

// Closed reports whether the form has been submitted, cancelled or dismissed
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Snapshot returns a copy of the form state with errors gated by touched fields
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make(map[string]bool, len(c.touched))
	for k, v := range c.touched {
		touched[k] = v
	}

	return Snapshot{
		Mode:       c.mode,
		PlanID:     c.planID,
		Draft:      c.draft.Clone(),
		Errors:     c.visibleErrors(),
		Touched:    touched,
		Warning:    c.warning(),
		Submitting: c.submitting,
		Closed:     c.closed,
		Message:    c.message,
		MinDate:    c.today().Format(models.DateLayout),
	}
}

func (c *Controller) editable() error {
	if c.closed {
		return ErrClosed
	}
	if c.mode == ModeView {
		return ErrReadOnly
	}
	return nil
}

func (c *Controller) today() time.Time {
	return c.now().UTC()
}

// regenerate refreshes the schedule after a total or mode change
func (c *Controller) regenerate() {
	switch {
	case c.draft.PaymentMode == models.PaymentModeOneTime:
		c.draft.Installments = []models.Installment{}
	case c.draft.PaymentMode.HasInstallments() && c.draft.TotalAmount > 0:
		count := len(c.draft.Installments)
		if count == 0 {
			count = plan.MinInstallments
		}
		if schedule, err := plan.Generate(c.draft.TotalAmount, c.today(), count); err == nil {
			c.draft.Installments = schedule
		}
	}
}

func (c *Controller) visibleErrors() plan.ValidationErrors {
	visible := plan.ValidationErrors{}
	for key, msg := range c.errs {
		if isCoreField(key) && !c.touched[key] {
			continue
		}
		visible[key] = msg
	}
	return visible
}

// warning is the non-blocking notice shown while installments do not add up
func (c *Controller) warning() string {
	if !c.draft.PaymentMode.HasInstallments() || len(c.draft.Installments) < plan.MinInstallments {
		return ""
	}
	sum, mismatch := plan.Mismatch(c.draft)
	if !mismatch {
		return ""
	}
	return fmt.Sprintf("Installments total (%s) doesn't match plan total (%s)",
		plan.FormatAmount(sum), plan.FormatAmount(c.draft.TotalAmount))
}

func isCoreField(key string) bool {
	for _, f := range coreFields {
		if f == key {
			return true
		}
	}
	return false
}

// normalize turns the draft into the payload the backend expects
func normalize(draft models.Plan) models.Plan {
	payload := draft.Clone()
	if payload.PaymentType == models.PaymentTypeOther {
		payload.PaymentType = models.PaymentType(payload.CustomPaymentType)
	}
	if payload.Installments == nil {
		payload.Installments = []models.Installment{}
	}
	return payload
}

// parseAmount coerces user input to a number; anything unparseable or out of float64 range is 0
func parseAmount(value string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func failureMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericFailure
}
