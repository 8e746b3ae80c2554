package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MinOptions is the smallest number of options a question may carry.
	MinOptions = 2
	// MaxOptions is the largest number of options a question may carry (A-D).
	MaxOptions = 4
)

// NoCorrectAnswer marks a question graded by the backend only.
const NoCorrectAnswer = -1

var optionLetters = [MaxOptions]string{"A", "B", "C", "D"}

// OptionLetter maps an option index to the letter the backend expects.
func OptionLetter(index int) (string, bool) {
	if index < 0 || index >= MaxOptions {
		return "", false
	}
	return optionLetters[index], true
}

// OptionIndex maps a backend letter (case-insensitive) back to an option index.
func OptionIndex(letter string) (int, bool) {
	l := strings.ToUpper(strings.TrimSpace(letter))
	for i, v := range optionLetters {
		if v == l {
			return i, true
		}
	}
	return 0, false
}

// Question is a single multiple-choice exam question.
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// HasCorrectAnswer reports whether the question can be graded locally.
func (q Question) HasCorrectAnswer() bool {
	return q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options)
}

// rawQuestion accepts both backend shapes: an inline options array or
// lettered option_a..option_d fields.
type rawQuestion struct {
	ID            int64           `json:"id"`
	Text          string          `json:"text"`
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	OptionA       *string         `json:"option_a"`
	OptionB       *string         `json:"option_b"`
	OptionC       *string         `json:"option_c"`
	OptionD       *string         `json:"option_d"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	CorrectCamel  json.RawMessage `json:"correctAnswer"`
	Correct       json.RawMessage `json:"correct"`
}

// UnmarshalJSON normalizes the supported question encodings.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw rawQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	q.ID = raw.ID
	q.Text = raw.Text
	if q.Text == "" {
		q.Text = raw.Question
	}

	if len(raw.Options) > 0 {
		q.Options = raw.Options
	} else {
		q.Options = letteredOptions(raw.OptionA, raw.OptionB, raw.OptionC, raw.OptionD)
	}
	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		return fmt.Errorf("question %d: %d options, want %d to %d", q.ID, len(q.Options), MinOptions, MaxOptions)
	}

	q.CorrectAnswer = NoCorrectAnswer
	for _, candidate := range []json.RawMessage{raw.CorrectAnswer, raw.CorrectCamel, raw.Correct} {
		if idx, ok := parseCorrect(candidate); ok {
			q.CorrectAnswer = idx
			break
		}
	}
	return nil
}

// letteredOptions keeps options up to the last non-empty letter so a question
// with only A and B set yields two options.
func letteredOptions(fields ...*string) []string {
	last := -1
	for i, f := range fields {
		if f != nil && *f != "" {
			last = i
		}
	}
	opts := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		if fields[i] != nil {
			opts = append(opts, *fields[i])
		} else {
			opts = append(opts, "")
		}
	}
	return opts
}

func parseCorrect(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, n >= 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return OptionIndex(s)
	}
	return 0, false
}
