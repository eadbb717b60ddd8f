package form

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/student-plans/internal/integrations/backend"
	"github.com/Dan9191/student-plans/internal/models"
	"github.com/Dan9191/student-plans/internal/plan"
)

var fixedNow = time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)

type fakeClient struct {
	mu        sync.Mutex
	plan      models.Plan
	getErr    error
	submitErr error
	created   []models.Plan
	updated   map[string]models.Plan
	block     chan struct{}
}

func (f *fakeClient) GetPlan(_ context.Context, id string) (models.Plan, error) {
	if f.getErr != nil {
		return models.Plan{}, f.getErr
	}
	p := f.plan
	p.ID = id
	return p, nil
}

func (f *fakeClient) CreatePlan(_ context.Context, p models.Plan) (backend.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return backend.Result{}, f.submitErr
	}
	f.created = append(f.created, p)
	return backend.Result{Success: true}, nil
}

func (f *fakeClient) UpdatePlan(_ context.Context, id string, p models.Plan) (backend.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return backend.Result{}, f.submitErr
	}
	if f.updated == nil {
		f.updated = map[string]models.Plan{}
	}
	f.updated[id] = p
	return backend.Result{Success: true}, nil
}

func newController(t *testing.T, mode Mode, planID string, client *fakeClient) (*Controller, *RefreshSignal) {
	t.Helper()
	refresh := &RefreshSignal{}
	c, err := NewController(mode, planID, client, refresh)
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c, refresh
}

func fillValidInstallmentPlan(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.SetField(FieldName, "Semester 1 tuition"))
	require.NoError(t, c.SetField(FieldPaymentMode, string(models.PaymentModeInstallments)))
	require.NoError(t, c.SetField(FieldTotalAmount, "1200"))
}

func TestNewController_Modes(t *testing.T) {
	_, err := NewController(ModeEdit, "", &fakeClient{}, nil)
	assert.ErrorIs(t, err, ErrPlanIDRequired)

	_, err = NewController("Delete", "x", &fakeClient{}, nil)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestController_RegeneratesOnTotalAndMode(t *testing.T) {
	c, _ := newController(t, ModeCreate, "", &fakeClient{})
	fillValidInstallmentPlan(t, c)

	draft := c.Snapshot().Draft
	require.Len(t, draft.Installments, 2)
	assert.Equal(t, 600.0, draft.Installments[0].Amount)
	assert.Equal(t, "2025-05-10", draft.Installments[0].DueDate)
	assert.Equal(t, "2025-06-10", draft.Installments[1].DueDate)

	require.NoError(t, c.SetInstallmentCount(4))
	require.NoError(t, c.SetInstallmentAmount(0, "500"))
	assert.Equal(t, 500.0, c.Snapshot().Draft.Installments[0].Amount)

	// changing the total keeps the count but discards the manual amount
	require.NoError(t, c.SetField(FieldTotalAmount, "2000"))
	draft = c.Snapshot().Draft
	require.Len(t, draft.Installments, 4)
	for _, inst := range draft.Installments {
		assert.Equal(t, 500.0, inst.Amount)
	}

	require.NoError(t, c.SetField(FieldPaymentMode, string(models.PaymentModeOneTime)))
	assert.Empty(t, c.Snapshot().Draft.Installments)
}

func TestController_SameValueDoesNotRegenerate(t *testing.T) {
	c, _ := newController(t, ModeCreate, "", &fakeClient{})
	fillValidInstallmentPlan(t, c)
	require.NoError(t, c.SetInstallmentAmount(0, "700"))

	require.NoError(t, c.SetField(FieldTotalAmount, "1200.00"))
	assert.Equal(t, 700.0, c.Snapshot().Draft.Installments[0].Amount)
}

func TestController_InstallmentEdits(t *testing.T) {
	c, _ := newController(t, ModeCreate, "", &fakeClient{})
	fillValidInstallmentPlan(t, c)
	require.NoError(t, c.SetInstallmentCount(3))

	require.NoError(t, c.SetInstallmentAmount(0, "300"))
	draft := c.Snapshot().Draft
	assert.Equal(t, 300.0, draft.Installments[0].Amount)
	assert.Equal(t, 400.0, draft.Installments[1].Amount)
	assert.Equal(t, 500.0, draft.Installments[2].Amount)

	// the last one is left alone; the warning shows until fixed
	require.NoError(t, c.SetInstallmentAmount(2, "100"))
	snap := c.Snapshot()
	assert.Equal(t, "Installments total (800.00) doesn't match plan total (1200.00)", snap.Warning)

	require.NoError(t, c.RemoveInstallment(2))
	snap = c.Snapshot()
	require.Len(t, snap.Draft.Installments, 2)
	assert.Equal(t, 600.0, snap.Draft.Installments[0].Amount)
	assert.Empty(t, snap.Warning)

	assert.ErrorIs(t, c.RemoveInstallment(0), plan.ErrTooFewInstallments)

	require.NoError(t, c.AddInstallment())
	assert.Len(t, c.Snapshot().Draft.Installments, 3)

	require.NoError(t, c.SetInstallmentDate(1, "2026-01-01"))
	assert.Equal(t, "2026-01-01", c.Snapshot().Draft.Installments[1].DueDate)
	assert.ErrorIs(t, c.SetInstallmentDate(7, "2026-01-01"), plan.ErrIndexOutOfRange)

	assert.ErrorIs(t, c.SetInstallmentCount(1), plan.ErrInvalidCount)
	assert.ErrorIs(t, c.SetField("color", "red"), ErrUnknownField)
}

func TestController_SubmitValidationBlocksNetwork(t *testing.T) {
	client := &fakeClient{}
	c, refresh := newController(t, ModeCreate, "", client)
	require.NoError(t, c.SetField(FieldPaymentMode, string(models.PaymentModeInstallments)))

	before := c.Snapshot()
	assert.Empty(t, before.Errors)

	_, err := c.Submit(context.Background())
	var verrs plan.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, plan.FieldName)
	assert.Contains(t, verrs, plan.FieldTotalAmount)
	assert.Contains(t, verrs, plan.FieldInstallments)

	snap := c.Snapshot()
	assert.True(t, snap.Touched[FieldName])
	assert.True(t, snap.Touched[FieldPaymentMode])
	assert.Equal(t, "Plan name is required", snap.Errors[plan.FieldName])
	assert.False(t, snap.Closed)
	assert.Empty(t, client.created)
	assert.False(t, refresh.Consume())
}

func TestController_SubmitCreate(t *testing.T) {
	client := &fakeClient{}
	c, refresh := newController(t, ModeCreate, "", client)
	fillValidInstallmentPlan(t, c)
	require.NoError(t, c.SetField(FieldPaymentType, string(models.PaymentTypeOther)))
	require.NoError(t, c.SetField(FieldCustomPaymentType, "library"))

	out, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Closed)
	assert.Equal(t, "Plan created successfully!", out.Message)

	require.Len(t, client.created, 1)
	sent := client.created[0]
	assert.Equal(t, models.PaymentType("library"), sent.PaymentType)
	assert.Equal(t, 1200.0, sent.TotalAmount)
	assert.Len(t, sent.Installments, 2)

	assert.True(t, refresh.Consume())
	assert.False(t, refresh.Consume())

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SetField(FieldName, "again"), ErrClosed)
}

func TestController_SubmitFailureKeepsFormOpen(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "server message", err: &backend.APIError{Status: 409, Message: "Plan already exists"}, wantMsg: "Plan already exists"},
		{name: "unauthorized", err: &backend.APIError{Status: 401}, wantMsg: GenericFailure},
		{name: "transport", err: errors.New("dial tcp: connection refused"), wantMsg: GenericFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{submitErr: tt.err}
			c, refresh := newController(t, ModeCreate, "", client)
			fillValidInstallmentPlan(t, c)

			_, err := c.Submit(context.Background())
			var serr *SubmitError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.wantMsg, serr.Message)

			snap := c.Snapshot()
			assert.False(t, snap.Closed)
			assert.False(t, snap.Submitting)
			assert.Equal(t, "Failed to create plan: "+tt.wantMsg, snap.Message)
			assert.False(t, refresh.Consume())

			// retry once the backend recovers
			client.submitErr = nil
			out, err := c.Submit(context.Background())
			require.NoError(t, err)
			assert.True(t, out.Closed)
		})
	}
}

func TestController_SubmitInFlightGuard(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	c, _ := newController(t, ModeCreate, "", client)
	fillValidInstallmentPlan(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Snapshot().Submitting }, time.Second, 5*time.Millisecond)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(client.block)
	require.NoError(t, <-done)
	assert.Len(t, client.created, 1)
}

func TestController_EditLoadsAndUpdates(t *testing.T) {
	client := &fakeClient{plan: models.Plan{
		Name:        "Hostel",
		PaymentType: models.PaymentTypeHostel,
		TotalAmount: 900,
		PaymentMode: models.PaymentModeBoth,
		Installments: []models.Installment{
			{Amount: 400, DueDate: "2025-06-01"},
			{Amount: 500, DueDate: "2025-07-01"},
		},
	}}
	c, refresh := newController(t, ModeEdit, "p1", client)
	require.NoError(t, c.Load(context.Background()))

	draft := c.Snapshot().Draft
	assert.Equal(t, "Hostel", draft.Name)
	assert.Equal(t, models.PlanStatusActive, draft.Status)
	assert.Equal(t, 400.0, draft.Installments[0].Amount, "loading keeps the stored schedule")

	require.NoError(t, c.SetField(FieldDescription, "Block B"))
	out, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Plan updated successfully!", out.Message)
	assert.Equal(t, "Block B", client.updated["p1"].Description)
	assert.True(t, refresh.Consume())
}

func TestController_LoadFailure(t *testing.T) {
	c, _ := newController(t, ModeView, "p1", &fakeClient{getErr: errors.New("boom")})
	assert.EqualError(t, c.Load(context.Background()), "failed to fetch plan: boom")
}

func TestController_ViewIsReadOnly(t *testing.T) {
	client := &fakeClient{plan: models.Plan{Name: "Exam fee", PaymentType: models.PaymentTypeExam, TotalAmount: 50}}
	c, refresh := newController(t, ModeView, "p2", client)
	require.NoError(t, c.Load(context.Background()))

	assert.ErrorIs(t, c.SetField(FieldName, "x"), ErrReadOnly)
	assert.ErrorIs(t, c.SetInstallmentCount(3), ErrReadOnly)
	assert.ErrorIs(t, c.RemoveInstallment(0), ErrReadOnly)

	out, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Closed)
	assert.Empty(t, client.created)
	assert.Empty(t, client.updated)
	assert.False(t, refresh.Consume())
}

func TestController_Cancel(t *testing.T) {
	c, _ := newController(t, ModeCreate, "", &fakeClient{})
	fillValidInstallmentPlan(t, c)
	c.Cancel()

	assert.True(t, c.Closed())
	assert.Empty(t, c.Snapshot().Draft.Name)
	assert.ErrorIs(t, c.AddInstallment(), ErrClosed)
}

func TestController_OverflowingInputCountsAsZero(t *testing.T) {
	c, _ := newController(t, ModeCreate, "", &fakeClient{})
	fillValidInstallmentPlan(t, c)

	require.NoError(t, c.SetInstallmentAmount(0, "1e400"))
	snap := c.Snapshot()
	assert.Equal(t, 0.0, snap.Draft.Installments[0].Amount)
	assert.Equal(t, 1200.0, snap.Draft.Installments[1].Amount)
	_, err := json.Marshal(snap)
	assert.NoError(t, err)

	require.NoError(t, c.SetField(FieldTotalAmount, "1e400"))
	require.NotPanics(t, func() { snap = c.Snapshot() })
	assert.Equal(t, 0.0, snap.Draft.TotalAmount)
	_, err = json.Marshal(snap)
	assert.NoError(t, err)
}
