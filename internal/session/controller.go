// Package session drives one candidate's exam attempt: media permission,
// question navigation, the answer ledger, the countdown and the final
// submission with proctoring analysis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/backend"
	"github.com/stemsi/exstem-portal/internal/capture"
	"github.com/stemsi/exstem-portal/internal/messaging"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/monitoring"
	"github.com/stemsi/exstem-portal/internal/proctor"
	"github.com/stemsi/exstem-portal/internal/report"
	"github.com/stemsi/exstem-portal/internal/repository"
)

const (
	triggerManual  = "manual"
	triggerTimeout = "timeout"
)

// Backend is the part of the quiz backend the controller needs.
type Backend interface {
	Questions(ctx context.Context, sess *auth.Session) ([]model.Question, error)
	Submit(ctx context.Context, sess *auth.Session, req model.SubmitAnswersRequest) (json.RawMessage, error)
}

// Config holds the controller's tunables.
type Config struct {
	Duration    time.Duration
	ExamDetails string
	ReportSlot  string
	// NewTicker defaults to NewRealTicker.
	NewTicker func(time.Duration) Ticker
	// Now defaults to time.Now.
	Now func() time.Time
}

// Deps are the controller's collaborators.
type Deps struct {
	Auth     *auth.Session
	Device   capture.Device
	Backend  Backend
	Analyzer proctor.Analyzer
	Reports  repository.ReportRepository
	Notifier messaging.Notifier
	Log      zerolog.Logger
}

// pendingSubmission keeps what capture and analysis produced so a retry
// after a backend failure only repeats the POST.
type pendingSubmission struct {
	payloadBytes int
	proctoring   model.ProctoringResult
}

// Controller is the exam session state machine. All state is guarded by mu;
// device, network and analysis calls run with mu released while the state
// tag blocks conflicting transitions.
type Controller struct {
	cfg       Config
	auth      *auth.Session
	device    capture.Device
	backend   Backend
	analyzer  proctor.Analyzer
	reports   repository.ReportRepository
	notifier  messaging.Notifier
	rec       *capture.Recorder
	log       zerolog.Logger
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	sf        singleflight.Group

	mu               sync.Mutex
	state            model.SessionState
	questions        []model.Question
	ledger           model.Ledger
	index            int
	remaining        int
	stream           capture.Stream
	granted          bool
	alreadyAttempted bool
	timeExpired      bool
	answersLocked    bool
	lastErr          error
	candidate        string
	pending          *pendingSubmission
	report           *model.ExamReport
	timerGen         uint64
	stopTimer        func()

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates an idle controller.
func New(cfg Config, deps Deps) *Controller {
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewRealTicker
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = messaging.NopNotifier{}
	}
	log := deps.Log.With().Str("component", "session").Logger()

	c := &Controller{
		cfg:       cfg,
		auth:      deps.Auth,
		device:    deps.Device,
		backend:   deps.Backend,
		analyzer:  deps.Analyzer,
		reports:   deps.Reports,
		notifier:  deps.Notifier,
		rec:       capture.NewRecorder(deps.Log),
		log:       log,
		newTicker: cfg.NewTicker,
		now:       cfg.Now,
		state:     model.SessionStateIdle,
		subs:      make(map[int]chan Event),
	}

	c.rec.OnStatus(func(s capture.Status) {
		if s == capture.StatusError {
			// The recorder calls back from its own goroutine.
			go c.handleRecorderFailure()
		}
	})
	if c.auth != nil {
		c.auth.OnExpire(func() {
			c.teardown(model.SessionStateIdle, auth.ErrAuthRequired)
		})
	}
	return c
}

// StartExam acquires the camera, fetches the questions and starts recording
// and the countdown. It is allowed from idle and, as a retry, from error.
func (c *Controller) StartExam(ctx context.Context, candidateDetails string) error {
	_, err, _ := c.sf.Do("start", func() (any, error) {
		return nil, c.start(ctx, candidateDetails)
	})
	return err
}

func (c *Controller) start(ctx context.Context, candidateDetails string) error {
	c.mu.Lock()
	if c.alreadyAttempted {
		c.mu.Unlock()
		return backend.ErrAlreadyAttempted
	}
	if c.state != model.SessionStateIdle && c.state != model.SessionStateError {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = model.SessionStatePermission
	c.lastErr = nil
	c.timeExpired = false
	c.answersLocked = false
	c.pending = nil
	c.candidate = candidateDetails
	if c.candidate == "" {
		c.candidate = c.auth.Subject()
	}
	c.mu.Unlock()
	c.emit(EventState)

	stream, err := c.device.Open(ctx)
	if err != nil {
		if !errors.Is(err, capture.ErrPermissionDenied) {
			err = fmt.Errorf("%w: %w", ErrDeviceFailure, err)
		}
		c.log.Warn().Err(err).Msg("media access failed")
		monitoring.ExamStarts.WithLabelValues("permission_denied").Inc()
		c.teardown(model.SessionStateError, err)
		return err
	}

	c.mu.Lock()
	if c.state != model.SessionStatePermission {
		c.mu.Unlock()
		_ = stream.Stop()
		return ErrSessionClosed
	}
	c.stream = stream
	c.granted = true
	c.mu.Unlock()

	questions, err := c.backend.Questions(ctx, c.auth)
	if err == nil && len(questions) == 0 {
		err = ErrNoQuestions
	}
	if err != nil {
		c.failBackend(err, "start")
		return err
	}

	if err := c.rec.Start(stream); err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceFailure, err)
		monitoring.ExamStarts.WithLabelValues("device_error").Inc()
		c.teardown(model.SessionStateError, err)
		return err
	}

	c.mu.Lock()
	if c.state != model.SessionStatePermission {
		c.mu.Unlock()
		c.rec.Discard()
		_ = stream.Stop()
		return ErrSessionClosed
	}
	c.questions = questions
	c.ledger = model.NewLedger(len(questions))
	c.index = 0
	c.remaining = int(c.cfg.Duration / time.Second)
	c.state = model.SessionStateActive
	c.startCountdownLocked()
	c.mu.Unlock()

	c.log.Info().Int("questions", len(questions)).Int("seconds", int(c.cfg.Duration/time.Second)).Msg("exam started")
	monitoring.ExamStarts.WithLabelValues("started").Inc()
	c.emit(EventState)
	return nil
}

// failBackend applies the backend error taxonomy to a failed start.
func (c *Controller) failBackend(err error, phase string) {
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		c.log.Warn().Err(err).Str("phase", phase).Msg("authentication expired, logging out")
		monitoring.ExamStarts.WithLabelValues("auth_required").Inc()
		c.forceLogout(err)
	case errors.Is(err, backend.ErrAlreadyAttempted):
		c.log.Info().Str("phase", phase).Msg("exam already attempted")
		monitoring.ExamStarts.WithLabelValues("already_attempted").Inc()
		c.mu.Lock()
		c.alreadyAttempted = true
		c.mu.Unlock()
		c.teardown(model.SessionStateError, err)
	default:
		c.log.Error().Err(err).Str("phase", phase).Msg("failed to load questions")
		monitoring.ExamStarts.WithLabelValues("backend_error").Inc()
		c.teardown(model.SessionStateError, err)
	}
}

// SelectAnswer records option for the current question. It never moves the
// pointer; selecting the same option twice is a no-op.
func (c *Controller) SelectAnswer(option int) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	q := c.questions[c.index]
	if option < 0 || option >= len(q.Options) || option >= model.MaxOptions {
		c.mu.Unlock()
		return ErrOptionOutOfRange
	}
	changed := c.ledger[c.index] != option
	c.ledger[c.index] = option
	c.mu.Unlock()

	if changed {
		c.emit(EventState)
	}
	return nil
}

func (c *Controller) editableLocked() error {
	if c.state != model.SessionStateActive {
		return ErrInvalidState
	}
	if c.timeExpired {
		return ErrTimeExpired
	}
	if c.answersLocked {
		return ErrAnswersLocked
	}
	return nil
}

// Next moves to the following question, staying on the last one.
func (c *Controller) Next() error {
	return c.move(func(i, n int) int { return min(i+1, n-1) })
}

// Prev moves to the preceding question, staying on the first one.
func (c *Controller) Prev() error {
	return c.move(func(i, n int) int { return max(i-1, 0) })
}

// GoTo jumps to question index.
func (c *Controller) GoTo(index int) error {
	c.mu.Lock()
	if c.state != model.SessionStateActive {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if index < 0 || index >= len(c.questions) {
		c.mu.Unlock()
		return ErrIndexOutOfRange
	}
	moved := c.index != index
	c.index = index
	c.mu.Unlock()

	if moved {
		c.emit(EventState)
	}
	return nil
}

func (c *Controller) move(next func(i, n int) int) error {
	c.mu.Lock()
	if c.state != model.SessionStateActive {
		c.mu.Unlock()
		return ErrInvalidState
	}
	prev := c.index
	c.index = next(c.index, len(c.questions))
	moved := c.index != prev
	c.mu.Unlock()

	if moved {
		c.emit(EventState)
	}
	return nil
}

// Submit ends the attempt. Concurrent calls, including the automatic
// submission at time-out, share one in-flight submission. Submitting a
// finished session returns its report.
func (c *Controller) Submit(ctx context.Context) (*model.ExamReport, error) {
	return c.submit(ctx, triggerManual)
}

func (c *Controller) submit(ctx context.Context, trigger string) (*model.ExamReport, error) {
	v, err, _ := c.sf.Do("submit", func() (any, error) {
		return c.doSubmit(ctx, trigger)
	})
	rep, _ := v.(*model.ExamReport)
	return rep, err
}

func (c *Controller) doSubmit(ctx context.Context, trigger string) (*model.ExamReport, error) {
	started := c.now()

	c.mu.Lock()
	switch c.state {
	case model.SessionStateDone:
		rep := c.report
		c.mu.Unlock()
		return rep, nil
	case model.SessionStateActive:
	default:
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	c.state = model.SessionStateSubmitting
	c.cancelCountdownLocked()
	questions := c.questions
	ledger := c.ledger.Clone()
	granted := c.granted
	pending := c.pending
	candidate := c.candidate
	c.mu.Unlock()
	c.emit(EventState)

	c.log.Info().
		Str("trigger", trigger).
		Int("answered", ledger.AnsweredCount()).
		Int("questions", len(questions)).
		Msg("submitting exam")

	if pending == nil {
		p, err := c.captureAndAnalyze(ctx, granted, candidate)
		if err != nil {
			monitoring.Submissions.WithLabelValues(trigger, "capture_error").Inc()
			return nil, err
		}
		pending = p
	}

	raw, err := c.backend.Submit(ctx, c.auth, model.BuildSubmission(questions, ledger))
	if err != nil {
		c.failSubmission(err, trigger)
		return nil, err
	}

	rep, err := report.Normalize(raw, questions, ledger, pending.proctoring, c.now())
	if err != nil {
		// The backend accepted the answers; grade locally rather than resubmit.
		c.log.Warn().Err(err).Msg("unreadable submission response, grading locally")
		rep, _ = report.Normalize(nil, questions, ledger, pending.proctoring, c.now())
	}

	if c.reports != nil {
		if err := c.reports.Save(ctx, c.cfg.ReportSlot, &rep); err != nil {
			c.log.Error().Err(err).Msg("failed to persist exam report")
		}
	}

	evt := messaging.ExamSubmittedEvent{
		Type:           messaging.EventExamSubmitted,
		EventID:        uuid.NewString(),
		Candidate:      c.auth.Subject(),
		Score:          rep.Score,
		TotalQuestions: rep.TotalQuestions,
		Answered:       ledger.AnsweredCount(),
		SuspicionLevel: rep.ProctoringResult.OverallSuspicionLevel,
		Flags:          rep.ProctoringResult.Flags,
		RecordingRef:   rep.ProctoringResult.RecordingRef,
		SubmittedAt:    rep.SubmittedAt,
	}
	if err := c.notifier.NotifySubmitted(ctx, evt); err != nil {
		c.log.Error().Err(err).Msg("failed to publish exam.submitted")
	}

	c.mu.Lock()
	if c.state == model.SessionStateSubmitting {
		c.state = model.SessionStateDone
		c.alreadyAttempted = true
		c.questions = nil
		c.ledger = nil
		c.index = 0
		c.pending = nil
		c.lastErr = nil
	}
	c.report = &rep
	c.mu.Unlock()

	monitoring.Submissions.WithLabelValues(trigger, "ok").Inc()
	monitoring.SubmissionDuration.Observe(c.now().Sub(started).Seconds())
	c.log.Info().
		Int("score", rep.Score).
		Int("total", rep.TotalQuestions).
		Str("suspicion", string(rep.ProctoringResult.OverallSuspicionLevel)).
		Msg("exam submitted")
	c.emit(EventState)
	return &rep, nil
}

// captureAndAnalyze runs the ordered capture steps of a submission: stop the
// recorder and wait for the payload, release the device, then analyze.
func (c *Controller) captureAndAnalyze(ctx context.Context, granted bool, candidate string) (*pendingSubmission, error) {
	payload, err := c.rec.Stop(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("finalizing recording failed")
	}
	if granted && payload == "" {
		return nil, c.recoverMissingRecording()
	}

	c.releaseStream()

	monitoring.RecordingBytes.Observe(float64(len(payload)))
	proctoring, err := c.analyzer.Analyze(ctx, proctor.Input{
		VideoDataURI:     payload,
		ExamDetails:      c.cfg.ExamDetails,
		CandidateDetails: candidate,
	})
	if err != nil {
		// Analyzers are wrapped in proctor.Safe; this guards direct wiring.
		c.log.Error().Err(err).Msg("proctoring analysis failed")
		proctoring = proctor.FailedResult()
	}
	monitoring.ProctoringVerdicts.WithLabelValues(string(proctoring.OverallSuspicionLevel)).Inc()

	p := &pendingSubmission{payloadBytes: len(payload), proctoring: proctoring}
	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()
	return p, nil
}

// recoverMissingRecording restarts recording on the still-held device after
// the payload came back empty. If that fails the attempt is over.
func (c *Controller) recoverMissingRecording() error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	c.log.Error().Msg("recording payload missing, restarting recorder")
	if stream != nil && stream.Active() {
		if err := c.rec.Start(stream); err == nil {
			c.returnToActive(ErrMissingRecording)
			return ErrMissingRecording
		}
	}

	err := fmt.Errorf("%w: %w", ErrDeviceFailure, ErrMissingRecording)
	c.teardown(model.SessionStateError, err)
	return err
}

func (c *Controller) failSubmission(err error, trigger string) {
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		c.log.Warn().Err(err).Msg("authentication expired during submission, logging out")
		monitoring.Submissions.WithLabelValues(trigger, "auth_required").Inc()
		c.forceLogout(err)
	case errors.Is(err, backend.ErrAlreadyAttempted):
		c.log.Warn().Err(err).Msg("backend reports the exam as already submitted")
		monitoring.Submissions.WithLabelValues(trigger, "already_attempted").Inc()
		c.mu.Lock()
		c.alreadyAttempted = true
		c.mu.Unlock()
		c.teardown(model.SessionStateError, err)
	default:
		c.log.Error().Err(err).Msg("submission failed, answers kept")
		monitoring.Submissions.WithLabelValues(trigger, "backend_error").Inc()
		c.returnToActive(err)
	}
}

// returnToActive reopens the session after a failed submission with the
// ledger untouched. Once the recording has been finalized the answers are
// locked and only submit retries are accepted. While recording still runs
// the countdown resumes from the remaining time.
func (c *Controller) returnToActive(err error) {
	c.mu.Lock()
	if c.state == model.SessionStateSubmitting {
		c.state = model.SessionStateActive
		c.lastErr = err
		switch {
		case c.pending != nil:
			c.answersLocked = true
		case !c.timeExpired && c.remaining > 0:
			c.startCountdownLocked()
		}
	}
	c.mu.Unlock()
	c.emit(EventState)
}

func (c *Controller) handleRecorderFailure() {
	err := fmt.Errorf("%w: %w", ErrDeviceFailure, c.rec.Err())
	if c.teardownIf(model.SessionStateActive, model.SessionStateError, err) {
		c.log.Error().Err(err).Msg("recording failed mid-exam")
	}
}

func (c *Controller) forceLogout(err error) {
	c.teardown(model.SessionStateIdle, err)
	c.auth.Expire()
}

// Close tears the session down when the candidate navigates away. It is a
// no-op on an idle session and is refused while a submission is in flight.
func (c *Controller) Close() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case model.SessionStateSubmitting:
		return ErrInvalidState
	case model.SessionStateIdle:
		return nil
	}
	c.teardown(model.SessionStateIdle, nil)
	return nil
}

// teardown cancels the countdown, discards any recording and releases the
// device, leaving the controller in state.
func (c *Controller) teardown(state model.SessionState, err error) {
	c.mu.Lock()
	c.resetLocked(state, err)
	c.mu.Unlock()
	c.release()
}

// teardownIf tears down only when the session is still in from, checked and
// switched under one lock. It reports whether it did.
func (c *Controller) teardownIf(from, to model.SessionState, err error) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.resetLocked(to, err)
	c.mu.Unlock()
	c.release()
	return true
}

func (c *Controller) resetLocked(state model.SessionState, err error) {
	c.cancelCountdownLocked()
	c.state = state
	c.lastErr = err
	c.questions = nil
	c.ledger = nil
	c.index = 0
	c.remaining = 0
	c.pending = nil
	c.timeExpired = false
	c.answersLocked = false
}

func (c *Controller) release() {
	c.rec.Discard()
	c.releaseStream()
	c.emit(EventState)
}

func (c *Controller) releaseStream() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.granted = false
	c.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("releasing capture device")
		}
	}
}

// Snapshot returns the current session view. The current question is
// exposed without its correct answer.
func (c *Controller) Snapshot() model.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := model.SessionSnapshot{
		State:            c.state,
		CurrentIndex:     c.index,
		RemainingSeconds: c.remaining,
		QuestionCount:    len(c.questions),
		Answers:          c.ledger.Clone(),
		CameraGranted:    c.granted,
		RecorderStatus:   string(c.rec.Status()),
		AlreadyAttempted: c.alreadyAttempted,
		TimeExpired:      c.timeExpired,
		AnswersLocked:    c.answersLocked,
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	if c.index < len(c.questions) {
		q := c.questions[c.index]
		q.Options = append([]string(nil), q.Options...)
		q.CorrectAnswer = model.NoCorrectAnswer
		snap.Current = &q
	}
	return snap
}

// Err returns the error that caused the last failed transition.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Report returns the last report, falling back to the persisted one.
func (c *Controller) Report(ctx context.Context) (*model.ExamReport, error) {
	c.mu.Lock()
	rep := c.report
	c.mu.Unlock()
	if rep != nil {
		return rep, nil
	}
	if c.reports == nil {
		return nil, repository.ErrReportNotFound
	}
	return c.reports.Load(ctx, c.cfg.ReportSlot)
}

// ClearReport removes the report from memory and storage.
func (c *Controller) ClearReport(ctx context.Context) error {
	c.mu.Lock()
	c.report = nil
	c.mu.Unlock()
	if c.reports == nil {
		return nil
	}
	return c.reports.Clear(ctx, c.cfg.ReportSlot)
}
