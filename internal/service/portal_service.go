package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

// ErrSessionBusy is returned when a different candidate tries to use the
// portal while an exam is in progress.
var ErrSessionBusy = errors.New("another candidate's exam is in progress")

const shutdownPoll = 100 * time.Millisecond

// Authenticator is the login surface of the quiz backend.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, sess *auth.Session) error
}

// ControllerFactory builds the exam controller of one authenticated candidate.
type ControllerFactory func(sess *auth.Session, reportSlot string) *session.Controller

// PortalService binds browser bearer tokens to exam controllers. The portal
// drives one capture device, so it holds one candidate at a time.
type PortalService struct {
	authn         Authenticator
	newController ControllerFactory
	baseSlot      string
	log           zerolog.Logger

	mu      sync.Mutex
	current *candidateSession
}

type candidateSession struct {
	token   string
	subject string
	auth    *auth.Session
	ctrl    *session.Controller
}

// NewPortalService creates a new PortalService.
func NewPortalService(authn Authenticator, factory ControllerFactory, baseSlot string, log zerolog.Logger) *PortalService {
	return &PortalService{
		authn:         authn,
		newController: factory,
		baseSlot:      baseSlot,
		log:           log.With().Str("component", "portal_service").Logger(),
	}
}

// Login exchanges candidate credentials for backend tokens.
func (s *PortalService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	sess, err := s.authn.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	access, err := sess.Token()
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("candidate", sess.Subject()).Msg("candidate logged in")
	return &model.LoginResponse{
		Message: "Login successful.",
		Access:  access,
		Refresh: sess.RefreshToken(),
	}, nil
}

// Resolve returns the controller bound to token, creating one for a new
// login. A token for another candidate is refused while an exam runs.
func (s *PortalService) Resolve(token, refresh string) (*session.Controller, error) {
	sess := auth.NewSession(token, refresh)
	if _, err := sess.Token(); err != nil {
		return nil, err
	}
	subject := sess.Subject()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current; cur != nil && !cur.auth.Expired() {
		if cur.token == token {
			return cur.ctrl, nil
		}
		if busy(cur.ctrl) {
			if subject != "" && subject == cur.subject {
				return cur.ctrl, nil
			}
			return nil, ErrSessionBusy
		}
		s.retireLocked()
	}

	s.current = &candidateSession{
		token:   token,
		subject: subject,
		auth:    sess,
		ctrl:    s.newController(sess, config.CacheKey.CandidateReportSlot(s.baseSlot, subject)),
	}
	s.log.Debug().Str("candidate", subject).Msg("exam controller created")
	return s.current.ctrl, nil
}

// StartExam starts the attempt. The start outlives the HTTP request so a
// dropped connection does not leave the device half-acquired.
func (s *PortalService) StartExam(ctx context.Context, ctrl *session.Controller, candidateDetails string) error {
	return ctrl.StartExam(context.WithoutCancel(ctx), candidateDetails)
}

// Submit submits the attempt, detached from the request's cancellation.
func (s *PortalService) Submit(ctx context.Context, ctrl *session.Controller) (*model.ExamReport, error) {
	return ctrl.Submit(context.WithoutCancel(ctx))
}

// Logout ends the candidate's portal session and revokes the refresh token.
// It is refused while a submission is in flight.
func (s *PortalService) Logout(ctx context.Context, token, refresh string) error {
	s.mu.Lock()
	cur := s.current
	if cur != nil && cur.token == token {
		if err := cur.ctrl.Close(); err != nil {
			s.mu.Unlock()
			return err
		}
		s.current = nil
	} else {
		cur = nil
	}
	s.mu.Unlock()

	if cur != nil {
		if refresh == "" {
			refresh = cur.auth.RefreshToken()
		}
		cur.auth.Expire()
	}
	if err := s.authn.Logout(ctx, auth.NewSession(token, refresh)); err != nil {
		s.log.Warn().Err(err).Msg("backend logout failed")
		return err
	}
	return nil
}

// Shutdown closes the current controller, waiting for an in-flight
// submission to finish or ctx to end.
func (s *PortalService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	if cur == nil {
		return nil
	}

	for {
		err := cur.ctrl.Close()
		if !errors.Is(err, session.ErrInvalidState) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(shutdownPoll):
		}
	}
}

func (s *PortalService) retireLocked() {
	if err := s.current.ctrl.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing previous exam controller")
	}
	s.current = nil
}

func busy(ctrl *session.Controller) bool {
	switch ctrl.Snapshot().State {
	case model.SessionStatePermission, model.SessionStateActive, model.SessionStateSubmitting:
		return true
	}
	return false
}
