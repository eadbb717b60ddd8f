package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/student-plans/internal/form"
	"github.com/Dan9191/student-plans/internal/integrations/backend"
	"github.com/Dan9191/student-plans/internal/models"
	"github.com/Dan9191/student-plans/internal/plan"
	"github.com/Dan9191/student-plans/internal/service"
	"github.com/Dan9191/student-plans/internal/utils"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers the admin API on r. The caller decides which middleware guards it.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/sessions", h.OpenSession).Methods("POST")
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}", h.CloseSession).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/fields", h.SetField).Methods("PATCH")
	r.HandleFunc("/sessions/{id}/touch", h.Touch).Methods("POST")
	r.HandleFunc("/sessions/{id}/installments/count", h.SetInstallmentCount).Methods("PUT")
	r.HandleFunc("/sessions/{id}/installments", h.AddInstallment).Methods("POST")
	r.HandleFunc("/sessions/{id}/installments/{index:[0-9]+}", h.UpdateInstallment).Methods("PATCH")
	r.HandleFunc("/sessions/{id}/installments/{index:[0-9]+}", h.RemoveInstallment).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/submit", h.Submit).Methods("POST")
	r.HandleFunc("/refresh", h.Refresh).Methods("GET")

	r.HandleFunc("/plans", h.ListPlans).Methods("GET")
	r.HandleFunc("/plans/{id}", h.DeletePlan).Methods("DELETE")
	r.HandleFunc("/plans/{id}/enrollments", h.ListEnrollments).Methods("GET")
	r.HandleFunc("/enrollments/{id}/status", h.UpdateEnrollmentStatus).Methods("PATCH")
	r.HandleFunc("/requests", h.ListRequests).Methods("GET")
	r.HandleFunc("/requests/{id}", h.UpdateRequestStatus).Methods("PUT")
}

type openSessionRequest struct {
	Mode   string `json:"mode" validate:"required,oneof=Create Edit View"`
	PlanID string `json:"planId"`
}

type fieldRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

type touchRequest struct {
	Field string `json:"field" validate:"required"`
}

type countRequest struct {
	Count int `json:"count" validate:"min=2,max=12"`
}

type installmentRequest struct {
	Amount  *string `json:"amount"`
	DueDate *string `json:"dueDate"`
}

type enrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending enrolled rejected cancelled"`
}

type requestStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

type sessionResponse struct {
	ID string `json:"id"`
	form.Snapshot
}

// OpenSession starts a Create, Edit or View form
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, snap, err := h.svc.OpenSession(r.Context(), form.Mode(req.Mode), req.PlanID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Snapshot: snap})
}

// GetSession returns the current form state
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(*form.Controller) error { return nil })
}

// CloseSession cancels a form and discards its draft
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CloseSession(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetField applies a plan-level field edit
func (h *Handler) SetField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(c *form.Controller) error {
		return c.SetField(req.Field, req.Value)
	})
}

// Touch marks a field as visited
func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	var req touchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(c *form.Controller) error {
		c.Touch(req.Field)
		return nil
	})
}

// SetInstallmentCount regenerates the schedule for a new count
func (h *Handler) SetInstallmentCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(c *form.Controller) error {
		return c.SetInstallmentCount(req.Count)
	})
}

// AddInstallment appends one installment
func (h *Handler) AddInstallment(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(c *form.Controller) error {
		return c.AddInstallment()
	})
}

// UpdateInstallment edits the amount and/or due date of one installment
func (h *Handler) UpdateInstallment(w http.ResponseWriter, r *http.Request) {
	idx, _ := strconv.Atoi(mux.Vars(r)["index"])
	var req installmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount == nil && req.DueDate == nil {
		utils.WriteError(w, http.StatusBadRequest, "amount or dueDate is required")
		return
	}

	h.withSession(w, r, func(c *form.Controller) error {
		if req.Amount != nil {
			if err := c.SetInstallmentAmount(idx, *req.Amount); err != nil {
				return err
			}
		}
		if req.DueDate != nil {
			return c.SetInstallmentDate(idx, *req.DueDate)
		}
		return nil
	})
}

// RemoveInstallment deletes one installment
func (h *Handler) RemoveInstallment(w http.ResponseWriter, r *http.Request) {
	idx, _ := strconv.Atoi(mux.Vars(r)["index"])
	h.withSession(w, r, func(c *form.Controller) error {
		return c.RemoveInstallment(idx)
	})
}

// Submit validates the form and sends it to the backend
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Submit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Refresh tells the plans list whether it must re-fetch
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"refresh": h.svc.ConsumeRefresh()})
}

// ListPlans returns one page of the plans table
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	q, ok := h.planQuery(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListPlans(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// DeletePlan removes a plan
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePlan(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEnrollments returns the enrollments of a plan
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := models.EnrollmentQuery{
		Status: params.Get("status"),
		Search: params.Get("search"),
		Page:   atoiDefault(params.Get("page"), 1),
		Limit:  atoiDefault(params.Get("limit"), 10),
	}
	if fields, err := utils.ValidateStruct(q); err != nil || fields != nil {
		h.writeInvalid(w, fields, err)
		return
	}

	list, err := h.svc.ListEnrollments(r.Context(), mux.Vars(r)["id"], q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []models.Enrollment{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": list})
}

// UpdateEnrollmentStatus moves an enrollment to a new status
func (h *Handler) UpdateEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	var req enrollmentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateEnrollmentStatus(r.Context(), mux.Vars(r)["id"], models.EnrollmentStatus(req.Status)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, backend.Result{Success: true})
}

// ListRequests returns plan requests, pending ones by default
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(models.RequestPending)
	}
	if fields, err := utils.ValidateStruct(struct {
		Status string `json:"status" validate:"oneof=pending approved rejected"`
	}{status}); err != nil || fields != nil {
		h.writeInvalid(w, fields, err)
		return
	}

	reqs, err := h.svc.ListRequests(r.Context(), models.RequestStatus(status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if reqs == nil {
		reqs = []models.PlanRequest{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": reqs})
}

// UpdateRequestStatus approves or rejects a plan request
func (h *Handler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	var req requestStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateRequestStatus(r.Context(), mux.Vars(r)["id"], models.RequestStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": updated})
}

// Health reports liveness and the number of open form sessions
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "sessions": h.svc.SessionCount()})
}

func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, op func(*form.Controller) error) {
	id := mux.Vars(r)["id"]
	ctrl, err := h.svc.Session(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := op(ctrl); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: ctrl.Snapshot()})
}

func (h *Handler) planQuery(w http.ResponseWriter, r *http.Request) (models.PlanQuery, bool) {
	params := r.URL.Query()
	q := models.DefaultPlanQuery()
	q.Page = atoiDefault(params.Get("page"), q.Page)
	q.Limit = atoiDefault(params.Get("limit"), q.Limit)
	if v := params.Get("sortBy"); v != "" {
		q.SortBy = v
	}
	if v := params.Get("sortOrder"); v != "" {
		q.SortOrder = v
	}
	q.Search = params.Get("search")
	q.PaymentType = params.Get("paymentType")
	q.PaymentMode = params.Get("paymentMode")
	q.Status = params.Get("status")
	q.MinAmount = params.Get("minAmount")
	q.MaxAmount = params.Get("maxAmount")
	q.HasInstallments = params.Get("hasInstallments")

	if fields, err := utils.ValidateStruct(q); err != nil || fields != nil {
		h.writeInvalid(w, fields, err)
		return models.PlanQuery{}, false
	}
	return q, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	if err := utils.WriteJSON(w, status, v); err != nil {
		h.log.Errorf("Failed to write response: %v", err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := utils.DecodeJSON(r, v); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if fields, err := utils.ValidateStruct(v); err != nil || fields != nil {
		h.writeInvalid(w, fields, err)
		return false
	}
	return true
}

func (h *Handler) writeInvalid(w http.ResponseWriter, fields map[string]string, err error) {
	if err != nil {
		h.log.Errorf("Request validation failed: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.WriteFieldErrors(w, http.StatusBadRequest, "Invalid request", fields)
}

// writeError maps domain errors to HTTP answers
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		verrs     plan.ValidationErrors
		submitErr *form.SubmitError
		apiErr    *backend.APIError
	)

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, form.ErrReadOnly):
		utils.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, form.ErrClosed), errors.Is(err, form.ErrSubmitInProgress):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, form.ErrUnknownField), errors.Is(err, form.ErrUnknownMode),
		errors.Is(err, form.ErrPlanIDRequired), errors.Is(err, plan.ErrIndexOutOfRange):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, plan.ErrInvalidTotal), errors.Is(err, plan.ErrInvalidCount),
		errors.Is(err, plan.ErrTooFewInstallments), errors.Is(err, plan.ErrTooManyInstallments):
		utils.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &verrs):
		utils.WriteFieldErrors(w, http.StatusUnprocessableEntity, "Please fix the highlighted fields", verrs)
	case errors.As(err, &submitErr):
		utils.WriteError(w, http.StatusBadGateway, submitErr.Message)
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		if apiErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		msg := apiErr.Message
		if msg == "" {
			msg = form.GenericFailure
		}
		utils.WriteError(w, status, msg)
	default:
		h.log.Errorf("Request failed: %v", err)
		utils.WriteError(w, http.StatusBadGateway, form.GenericFailure)
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
