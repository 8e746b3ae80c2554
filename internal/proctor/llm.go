package proctor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

var ErrEmptyCompletion = errors.New("AI API returned no choices")

const systemPrompt = `You are an AI proctoring assistant tasked with analyzing exam recordings for suspicious behavior. Review the provided video recording, exam details, and candidate information to detect any potential instances of cheating.

Identify any suspicious actions such as:
- Frequent looking away from the screen
- Presence of other individuals in the recording
- Usage of unauthorized materials (e.g., notes, phones)
- Suspicious sounds or voices
- Long period of inactivity

Ensure your analysis is objective and based on the evidence in the recording.

Output in JSON format:
{"summary": "summary of any suspicious behavior detected", "flags": ["list", "of", "specific", "flags"], "overallSuspicionLevel": "LOW, MEDIUM, or HIGH"}`

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LLMAnalyzer sends the recording to a multimodal model as a video_url part.
type LLMAnalyzer struct {
	cfg    LLMConfig
	client *http.Client
}

func NewLLMAnalyzer(cfg LLMConfig) *LLMAnalyzer {
	return &LLMAnalyzer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	VideoURL *mediaURL `json:"video_url,omitempty"`
}

type mediaURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, in Input) (model.ProctoringResult, error) {
	if in.VideoDataURI == "" {
		return model.ProctoringResult{
			Summary:               "No recording was available for analysis.",
			Flags:                 []string{"No recording"},
			OverallSuspicionLevel: model.SuspicionMedium,
		}, nil
	}

	parts := []contentPart{
		{Type: "text", Text: fmt.Sprintf("Exam Details: %s\nCandidate Details: %s", in.ExamDetails, in.CandidateDetails)},
		{Type: "video_url", VideoURL: &mediaURL{URL: in.VideoDataURI}},
	}
	reqBody := chatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return model.ProctoringResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return model.ProctoringResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return model.ProctoringResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.ProctoringResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return model.ProctoringResult{}, fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return model.ProctoringResult{}, fmt.Errorf("decode completion: %w", err)
	}
	if completion.Error != nil {
		return model.ProctoringResult{}, fmt.Errorf("AI API error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return model.ProctoringResult{}, ErrEmptyCompletion
	}

	return parseVerdict(completion.Choices[0].Message.Content)
}

// parseVerdict reads the model's JSON answer, tolerating a fenced code block.
func parseVerdict(content string) (model.ProctoringResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var res model.ProctoringResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &res); err != nil {
		return model.ProctoringResult{}, fmt.Errorf("decode verdict: %w", err)
	}
	res.OverallSuspicionLevel = model.SuspicionLevel(strings.ToUpper(string(res.OverallSuspicionLevel)))
	res.RecordingRef = ""
	return res, nil
}
