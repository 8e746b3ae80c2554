package model

import (
	"encoding/json"
	"testing"
)

func TestQuestionUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		options int
		correct int
		wantErr bool
	}{
		{
			name:    "lettered options drop empty trailing letters",
			raw:     `{"id":1,"text":"2+2?","option_a":"3","option_b":"4","option_c":"","option_d":""}`,
			options: 2,
			correct: NoCorrectAnswer,
		},
		{
			name:    "inline options with letter answer",
			raw:     `{"id":2,"question":"Capital?","options":["Paris","Rome","Oslo"],"correct_answer":"A"}`,
			options: 3,
			correct: 0,
		},
		{
			name:    "single option rejected",
			raw:     `{"id":3,"text":"Only one?","option_a":"yes"}`,
			wantErr: true,
		},
		{
			name:    "no options rejected",
			raw:     `{"id":4,"text":"None?","options":[]}`,
			wantErr: true,
		},
		{
			name:    "five options rejected",
			raw:     `{"id":5,"text":"Too many?","options":["a","b","c","d","e"]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Question
			err := json.Unmarshal([]byte(tt.raw), &q)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal() accepted %d options", len(q.Options))
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(q.Options) != tt.options {
				t.Errorf("options = %v, want %d", q.Options, tt.options)
			}
			if q.CorrectAnswer != tt.correct {
				t.Errorf("CorrectAnswer = %d, want %d", q.CorrectAnswer, tt.correct)
			}
		})
	}
}
