package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/backend"
	"github.com/stemsi/exstem-portal/internal/capture"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/monitoring"
	"github.com/stemsi/exstem-portal/internal/proctor"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/validator"
	ws "github.com/stemsi/exstem-portal/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	monitoring.Init()
}

// quizBackend imitates the quiz backend's REST surface.
type quizBackend struct {
	mu        sync.Mutex
	attempted bool
	submits   int
}

func (b *quizBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quiz/questions/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		attempted := b.attempted
		b.mu.Unlock()
		if attempted {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"You already attempted the exam."}`))
			return
		}
		_, _ = w.Write([]byte(`{"questions":[
			{"id":11,"text":"2+2?","option_a":"3","option_b":"4","option_c":"5","option_d":"6"},
			{"id":12,"text":"Capital of France?","option_a":"Paris","option_b":"Rome","option_c":"Oslo","option_d":"Bern"},
			{"id":13,"text":"Largest planet?","option_a":"Mars","option_b":"Venus","option_c":"Jupiter","option_d":"Earth"}
		]}`))
	})
	mux.HandleFunc("/api/quiz/submit/", func(w http.ResponseWriter, r *http.Request) {
		var req model.SubmitAnswersRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.submits++
		b.attempted = true
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":                   "Submission recorded.",
			"marks":                     1,
			"total_questions_submitted": len(req.Answers),
		})
	})
	mux.HandleFunc("/api/users/login/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid credentials."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "Login successful.",
			"access":  testToken(req.Email),
			"refresh": "refresh-" + req.Email,
		})
	})
	mux.HandleFunc("/api/users/logout/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Logged out."}`))
	})
	return mux
}

func testToken(subject string) string {
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).SignedString([]byte("test-key"))
	return tok
}

type testPortal struct {
	router  *gin.Engine
	quiz    *quizBackend
	reports repository.ReportRepository
	portal  *service.PortalService
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zerolog.Nop()

	quiz := &quizBackend{}
	upstream := httptest.NewServer(quiz.handler())
	t.Cleanup(upstream.Close)

	client := backend.NewClient(upstream.URL, backend.Paths{
		Questions: "/api/quiz/questions/",
		Submit:    "/api/quiz/submit/",
		Login:     "/api/users/login/",
		Logout:    "/api/users/logout/",
	}, 5*time.Second, log)

	recording := filepath.Join(t.TempDir(), "candidate.webm")
	if err := os.WriteFile(recording, []byte("webm-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	device := &capture.FileDevice{Path: recording}

	db, err := database.NewSQLite(ctx, "file::memory:", log)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	reports := repository.NewSQLiteReportRepository(db)

	analyzer := proctor.NewSafe(proctor.MockAnalyzer{}, log)
	factory := func(sess *auth.Session, slot string) *session.Controller {
		return session.New(session.Config{
			Duration:    10 * time.Minute,
			ExamDetails: "router test",
			ReportSlot:  slot,
		}, session.Deps{
			Auth:     sess,
			Device:   device,
			Backend:  client,
			Analyzer: analyzer,
			Reports:  reports,
			Log:      log,
		})
	}
	portal := service.NewPortalService(client, factory, config.CacheKey.ReportSlot(), log)
	t.Cleanup(func() { _ = portal.Shutdown(context.Background()) })

	cfg := &config.Config{GinMode: gin.TestMode}
	handlers := &Handlers{
		Auth:   handler.NewAuthHandler(portal),
		Exam:   handler.NewExamHandler(portal),
		Report: handler.NewReportHandler(),
		WS:     handler.NewWSHandler(portal, log, nil),
		System: handler.NewSystemHandler("test"),
	}
	limiter := middleware.NewRateLimiter(ctx, 1000, time.Minute)

	return &testPortal{
		router:  SetupRouter(portal, handlers, limiter, cfg, log),
		quiz:    quiz,
		reports: reports,
		portal:  portal,
	}
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

func (p *testPortal) call(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: invalid envelope %q", method, path, w.Body.String())
	}
	return w.Code, resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, resp.Data)
	}
	return v
}

func TestHealthAndMetadata(t *testing.T) {
	p := newTestPortal(t)

	code, resp := p.call(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || resp.Metadata.RequestID == "" {
		t.Fatalf("health = %d %+v", code, resp)
	}
}

func TestExamRoutesRequireToken(t *testing.T) {
	p := newTestPortal(t)

	code, resp := p.call(t, http.MethodGet, "/api/v1/exam/state", "", nil)
	if code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != "TOKEN_REQUIRED" {
		t.Fatalf("state without token = %d %+v", code, resp.Error)
	}
}

func TestExamFlow(t *testing.T) {
	p := newTestPortal(t)
	token := testToken("candidate-1")

	code, resp := p.call(t, http.MethodPost, "/api/v1/exam/start", token, model.StartExamRequest{CandidateDetails: "Candidate One"})
	if code != http.StatusOK {
		t.Fatalf("start = %d %+v", code, resp.Error)
	}
	snap := decodeData[model.SessionSnapshot](t, resp)
	if snap.State != model.SessionStateActive || snap.QuestionCount != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Select by letter, then by index after moving.
	code, resp = p.call(t, http.MethodPut, "/api/v1/exam/answer", token, map[string]string{"ans": "b"})
	if code != http.StatusOK {
		t.Fatalf("answer = %d %+v", code, resp.Error)
	}
	if got := decodeData[model.SessionSnapshot](t, resp).Answers[0]; got != 1 {
		t.Fatalf("ledger[0] = %d, want 1", got)
	}

	if code, _ = p.call(t, http.MethodPost, "/api/v1/exam/next", token, nil); code != http.StatusOK {
		t.Fatalf("next = %d", code)
	}
	two := 2
	if code, _ = p.call(t, http.MethodPut, "/api/v1/exam/answer", token, model.SelectAnswerRequest{OptionIndex: &two}); code != http.StatusOK {
		t.Fatalf("answer by index = %d", code)
	}

	code, resp = p.call(t, http.MethodPut, "/api/v1/exam/answer", token, map[string]any{})
	if code != http.StatusBadRequest || resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("empty answer = %d %+v", code, resp.Error)
	}
	code, resp = p.call(t, http.MethodPut, "/api/v1/exam/answer", token, map[string]string{"ans": "E"})
	if code != http.StatusBadRequest || resp.Error.Fields["ans"] == "" {
		t.Fatalf("bad letter = %d %+v", code, resp.Error)
	}

	code, resp = p.call(t, http.MethodPost, "/api/v1/exam/goto", token, map[string]int{"index": 7})
	if code != http.StatusUnprocessableEntity || resp.Error.Code != "OUT_OF_RANGE" {
		t.Fatalf("goto out of range = %d %+v", code, resp.Error)
	}

	code, resp = p.call(t, http.MethodPost, "/api/v1/exam/submit", token, nil)
	if code != http.StatusOK {
		t.Fatalf("submit = %d %+v", code, resp.Error)
	}
	rep := decodeData[model.ExamReport](t, resp)
	if rep.Score != 1 || rep.TotalQuestions != 3 || rep.ProctoringResult.OverallSuspicionLevel != model.SuspicionLow {
		t.Fatalf("report = %+v", rep)
	}
	if rep.AnsweredQuestions[2].SelectedAnswer != nil {
		t.Fatalf("q3 selection = %v, want null", *rep.AnsweredQuestions[2].SelectedAnswer)
	}

	code, resp = p.call(t, http.MethodGet, "/api/v1/report", token, nil)
	if code != http.StatusOK || decodeData[model.ExamReport](t, resp).Score != 1 {
		t.Fatalf("report = %d %+v", code, resp.Error)
	}
	if _, err := p.reports.Load(context.Background(), "examReport:candidate-1"); err != nil {
		t.Fatalf("persisted report: %v", err)
	}

	if code, _ = p.call(t, http.MethodDelete, "/api/v1/report", token, nil); code != http.StatusOK {
		t.Fatalf("clear report = %d", code)
	}
	code, resp = p.call(t, http.MethodGet, "/api/v1/report", token, nil)
	if code != http.StatusNotFound || resp.Error.Code != "NOT_FOUND" {
		t.Fatalf("report after clear = %d %+v", code, resp.Error)
	}

	code, resp = p.call(t, http.MethodPost, "/api/v1/exam/start", token, nil)
	if code != http.StatusForbidden || resp.Error.Code != "ALREADY_ATTEMPTED" {
		t.Fatalf("second start = %d %+v", code, resp.Error)
	}
}

func TestOtherCandidateRefusedWhileActive(t *testing.T) {
	p := newTestPortal(t)
	first, second := testToken("candidate-1"), testToken("candidate-2")

	if code, resp := p.call(t, http.MethodPost, "/api/v1/exam/start", first, nil); code != http.StatusOK {
		t.Fatalf("start = %d %+v", code, resp.Error)
	}

	code, resp := p.call(t, http.MethodGet, "/api/v1/exam/state", second, nil)
	if code != http.StatusConflict || resp.Error.Code != "SESSION_BUSY" {
		t.Fatalf("second candidate = %d %+v", code, resp.Error)
	}

	if code, _ = p.call(t, http.MethodDelete, "/api/v1/exam", first, nil); code != http.StatusOK {
		t.Fatalf("close = %d", code)
	}
	code, resp = p.call(t, http.MethodGet, "/api/v1/exam/state", second, nil)
	if code != http.StatusOK || decodeData[model.SessionSnapshot](t, resp).State != model.SessionStateIdle {
		t.Fatalf("second candidate after close = %d %+v", code, resp.Error)
	}
}

func TestLoginAndLogout(t *testing.T) {
	p := newTestPortal(t)

	code, resp := p.call(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: "c@example.com", Password: "wrong"})
	if code != http.StatusUnauthorized || resp.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("bad login = %d %+v", code, resp.Error)
	}

	code, resp = p.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "c@example.com"})
	if code != http.StatusBadRequest || resp.Error.Fields["password"] == "" {
		t.Fatalf("missing password = %d %+v", code, resp.Error)
	}

	code, resp = p.call(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: "c@example.com", Password: "secret"})
	if code != http.StatusOK {
		t.Fatalf("login = %d %+v", code, resp.Error)
	}
	tokens := decodeData[model.LoginResponse](t, resp)
	if tokens.Access == "" || tokens.Refresh != "refresh-c@example.com" {
		t.Fatalf("tokens = %+v", tokens)
	}

	if code, _ = p.call(t, http.MethodGet, "/api/v1/exam/state", tokens.Access, nil); code != http.StatusOK {
		t.Fatalf("state = %d", code)
	}
	code, resp = p.call(t, http.MethodPost, "/api/v1/auth/logout", tokens.Access, model.LogoutRequest{RefreshToken: tokens.Refresh})
	if code != http.StatusOK {
		t.Fatalf("logout = %d %+v", code, resp.Error)
	}
}

func TestExamStream(t *testing.T) {
	p := newTestPortal(t)
	token := testToken("candidate-ws")

	srv := httptest.NewServer(p.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exam/stream?token=" + token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial ws.SnapshotResponse
	if err := conn.ReadJSON(&initial); err != nil || initial.Event != ws.EventState {
		t.Fatalf("initial event = %+v, %v", initial, err)
	}

	if err := conn.WriteJSON(ws.RequestPayload{Action: ws.ActionPing}); err != nil {
		t.Fatal(err)
	}
	var pong ws.PongResponse
	if err := conn.ReadJSON(&pong); err != nil || pong.Event != ws.EventPong {
		t.Fatalf("pong = %+v, %v", pong, err)
	}

	// Navigation before start is refused with a typed error.
	if err := conn.WriteJSON(ws.RequestPayload{Action: ws.ActionNext}); err != nil {
		t.Fatal(err)
	}
	var errEvt ws.ErrorResponse
	if err := conn.ReadJSON(&errEvt); err != nil || errEvt.Event != ws.EventError || errEvt.Code != "INVALID_STATE" {
		t.Fatalf("error event = %+v, %v", errEvt, err)
	}
}
