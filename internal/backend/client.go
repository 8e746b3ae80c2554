// Package backend is the REST client of the remote quiz backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/model"
)

const maxBodyBytes = 8 << 20

// Paths are the backend endpoints, relative to the base URL.
type Paths struct {
	Questions string
	Submit    string
	Login     string
	Logout    string
}

// Client talks to the quiz backend. Authenticated calls take the bearer token
// from the auth.Session passed in.
type Client struct {
	baseURL string
	paths   Paths
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, paths Paths, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		paths:   paths,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend").Logger(),
	}
}

type questionsResponse struct {
	Questions []model.Question `json:"questions"`
}

// Questions fetches the exam's question set.
func (c *Client) Questions(ctx context.Context, sess *auth.Session) ([]model.Question, error) {
	body, err := c.do(ctx, sess, http.MethodGet, c.paths.Questions, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	var resp questionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// Some deployments return the bare array.
		var list []model.Question
		if err2 := json.Unmarshal(body, &list); err2 != nil {
			return nil, fmt.Errorf("fetch questions: %w: %v", ErrInvalidResponse, err)
		}
		resp.Questions = list
	}
	return resp.Questions, nil
}

// Submit posts the candidate's answers and returns the raw scoring response
// for report.Normalize.
func (c *Client) Submit(ctx context.Context, sess *auth.Session, req model.SubmitAnswersRequest) (json.RawMessage, error) {
	body, err := c.do(ctx, sess, http.MethodPost, c.paths.Submit, req)
	if err != nil {
		return nil, fmt.Errorf("submit answers: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("submit answers: %w", ErrInvalidResponse)
	}
	return body, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges credentials for a new auth session.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	body, err := c.send(ctx, "", http.MethodPost, c.paths.Login, loginRequest{Email: email, Password: password})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("login: %w: %w", ErrInvalidCredentials, apiErr)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Access == "" {
		return nil, fmt.Errorf("login: %w", ErrInvalidResponse)
	}
	return auth.NewSession(resp.Access, resp.Refresh), nil
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout blacklists the refresh token and expires sess locally regardless of
// the backend's answer.
func (c *Client) Logout(ctx context.Context, sess *auth.Session) error {
	defer sess.Expire()

	refresh := sess.RefreshToken()
	if refresh == "" {
		return nil
	}
	if _, err := c.do(ctx, sess, http.MethodPost, c.paths.Logout, logoutRequest{RefreshToken: refresh}); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// do runs an authenticated request.
func (c *Client) do(ctx context.Context, sess *auth.Session, method, path string, payload any) ([]byte, error) {
	token, err := sess.Token()
	if err != nil {
		return nil, err
	}
	body, err := c.send(ctx, token, method, path, payload)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return nil, classify(apiErr)
	}
	return body, err
}

func (c *Client) send(ctx context.Context, token, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}
