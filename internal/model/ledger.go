package model

import "encoding/json"

// Unanswered marks an empty ledger slot.
const Unanswered = -1

// Ledger maps question position to the selected option index.
type Ledger []int

// NewLedger returns a ledger of n unanswered slots.
func NewLedger(n int) Ledger {
	l := make(Ledger, n)
	for i := range l {
		l[i] = Unanswered
	}
	return l
}

// Selected returns the option chosen for position i, if any.
func (l Ledger) Selected(i int) (int, bool) {
	if i < 0 || i >= len(l) || l[i] == Unanswered {
		return 0, false
	}
	return l[i], true
}

// AnsweredCount returns how many slots hold a selection.
func (l Ledger) AnsweredCount() int {
	n := 0
	for _, v := range l {
		if v != Unanswered {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	copy(out, l)
	return out
}

// MarshalJSON renders unanswered slots as null.
func (l Ledger) MarshalJSON() ([]byte, error) {
	out := make([]*int, len(l))
	for i, v := range l {
		if v != Unanswered {
			v := v
			out[i] = &v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null slots as unanswered.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var in []*int
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(Ledger, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = Unanswered
		} else {
			out[i] = *v
		}
	}
	*l = out
	return nil
}

// AnswerSubmission is one entry of the backend submit payload.
type AnswerSubmission struct {
	QuestionID int64  `json:"q_id"`
	Answer     string `json:"ans"`
}

// SubmitAnswersRequest is the backend submit payload.
type SubmitAnswersRequest struct {
	Answers []AnswerSubmission `json:"answers"`
}

// BuildSubmission translates the ledger into backend entries, omitting
// unanswered questions.
func BuildSubmission(questions []Question, ledger Ledger) SubmitAnswersRequest {
	req := SubmitAnswersRequest{Answers: make([]AnswerSubmission, 0, len(questions))}
	for i, q := range questions {
		idx, ok := ledger.Selected(i)
		if !ok {
			continue
		}
		letter, ok := OptionLetter(idx)
		if !ok {
			continue
		}
		req.Answers = append(req.Answers, AnswerSubmission{QuestionID: q.ID, Answer: letter})
	}
	return req
}
