package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/student-plans/internal/config"
	"github.com/Dan9191/student-plans/internal/form"
	"github.com/Dan9191/student-plans/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// Backend is the part of the admin backend the service depends on
type Backend interface {
	form.PlanClient
	DeletePlan(ctx context.Context, id string) error
	ListPlans(ctx context.Context, q models.PlanQuery) (models.PlanPage, error)
	ListEnrollments(ctx context.Context, planID string, q models.EnrollmentQuery) ([]models.Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ListRequests(ctx context.Context, status models.RequestStatus) ([]models.PlanRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) (models.PlanRequest, error)
}

type session struct {
	ctrl     *form.Controller
	lastSeen time.Time
}

// Service hosts plan form sessions and forwards list operations to the backend
type Service struct {
	backend Backend
	log     *logrus.Logger
	config  *config.Config
	refresh *form.RefreshSignal
	cron    *cron.Cron
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewService initializes a new service
func NewService(backend Backend, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		backend:  backend,
		log:      log,
		config:   cfg,
		refresh:  &form.RefreshSignal{},
		cron:     cron.New(),
		now:      time.Now,
		sessions: map[string]*session{},
	}
}

// Start schedules the idle session janitor
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.config.SessionSweepSpec, func() { s.SweepIdle() }); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	s.cron.Start()
	s.log.Infof("Session janitor started (%s, ttl %s)", s.config.SessionSweepSpec, s.config.SessionTTL)
	return nil
}

// Stop halts the janitor; the returned context is done once a running sweep finishes
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

// OpenSession creates a form session. Edit and View sessions are preloaded from the backend.
func (s *Service) OpenSession(ctx context.Context, mode form.Mode, planID string) (string, form.Snapshot, error) {
	ctrl, err := form.NewController(mode, planID, s.backend, s.refresh)
	if err != nil {
		return "", form.Snapshot{}, err
	}
	if err := ctrl.Load(ctx); err != nil {
		return "", form.Snapshot{}, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{ctrl: ctrl, lastSeen: s.now()}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"session": id, "mode": mode, "plan": planID}).Info("Plan form opened")
	return id, ctrl.Snapshot(), nil
}

// Session returns the controller of an open session and refreshes its idle timer
func (s *Service) Session(id string) (*form.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess.ctrl, nil
}

// CloseSession cancels the form and forgets the session
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.ctrl.Cancel()
	s.log.WithField("session", id).Info("Plan form closed")
	return nil
}

// Submit submits the session's form
func (s *Service) Submit(ctx context.Context, id string) (form.Outcome, error) {
	ctrl, err := s.Session(id)
	if err != nil {
		return form.Outcome{}, err
	}

	out, err := ctrl.Submit(ctx)
	entry := s.log.WithFields(logrus.Fields{"session": id, "mode": ctrl.Mode()})
	var submitErr *form.SubmitError
	switch {
	case errors.As(err, &submitErr):
		entry.Errorf("Plan submit failed: %v", submitErr.Err)
	case err == nil && out.Message != "":
		entry.Info(out.Message)
	}
	return out, err
}

// SessionCount returns the number of open sessions
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepIdle drops sessions that are closed or idle for longer than the configured TTL
func (s *Service) SweepIdle() int {
	cutoff := s.now().Add(-s.config.SessionTTL)

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.ctrl.Closed() || sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.ctrl.Cancel()
	}
	if len(expired) > 0 {
		s.log.Infof("Swept %d plan form sessions", len(expired))
	}
	return len(expired)
}

// ConsumeRefresh reports whether the plans list must be re-fetched and clears the signal
func (s *Service) ConsumeRefresh() bool {
	return s.refresh.Consume()
}

// ListPlans returns one page of the plans table
func (s *Service) ListPlans(ctx context.Context, q models.PlanQuery) (models.PlanPage, error) {
	page, err := s.backend.ListPlans(ctx, q)
	if err != nil {
		return models.PlanPage{}, fmt.Errorf("failed to list plans: %w", err)
	}
	return page, nil
}

// DeletePlan removes a plan and asks the list to refresh
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	if err := s.backend.DeletePlan(ctx, id); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	s.refresh.Request()
	s.log.Infof("Plan deleted: %s", id)
	return nil
}

// ListEnrollments returns the enrollments of a plan
func (s *Service) ListEnrollments(ctx context.Context, planID string, q models.EnrollmentQuery) ([]models.Enrollment, error) {
	return s.backend.ListEnrollments(ctx, planID, q)
}

// UpdateEnrollmentStatus changes the status of an enrollment
func (s *Service) UpdateEnrollmentStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if err := s.backend.UpdateEnrollmentStatus(ctx, id, status); err != nil {
		return err
	}
	s.log.Infof("Enrollment %s set to %s", id, status)
	return nil
}

// ListRequests returns the plan requests in a review status
func (s *Service) ListRequests(ctx context.Context, status models.RequestStatus) ([]models.PlanRequest, error) {
	reqs, err := s.backend.ListRequests(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan requests: %w", err)
	}
	return reqs, nil
}

// UpdateRequestStatus approves or rejects a plan request
func (s *Service) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) (models.PlanRequest, error) {
	req, err := s.backend.UpdateRequestStatus(ctx, id, status)
	if err != nil {
		return models.PlanRequest{}, fmt.Errorf("failed to update plan request: %w", err)
	}
	s.log.Infof("Plan request %s set to %s", id, status)
	return req, nil
}
