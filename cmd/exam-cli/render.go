package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

func printHelp() {
	fmt.Println("Commands: a|b|c|d select, n next, p prev, g <n> go to, s submit, q quit, <enter> redraw")
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func render(snap model.SessionSnapshot) {
	if snap.Current == nil {
		fmt.Printf("[%s]\n", snap.State)
		return
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("Question %d/%d   answered %d   time left %s\n",
		snap.CurrentIndex+1, snap.QuestionCount, snap.Answers.AnsweredCount(), formatClock(snap.RemainingSeconds))
	fmt.Println(snap.Current.Text)

	selected, hasSelection := snap.Answers.Selected(snap.CurrentIndex)
	for i, opt := range snap.Current.Options {
		letter, _ := model.OptionLetter(i)
		mark := " "
		if hasSelection && selected == i {
			mark = "*"
		}
		fmt.Printf(" %s %s) %s\n", mark, letter, opt)
	}
	if snap.LastError != "" {
		fmt.Printf("! %s\n", snap.LastError)
	}
}

// announce prints minute marks and the final countdown, and closes finished
// once the session is done.
func announce(events <-chan session.Event, finished chan<- struct{}) {
	closed := false
	for evt := range events {
		if evt.Snapshot.State == model.SessionStateDone && !closed {
			close(finished)
			closed = true
		}
		if evt.Type != session.EventTick {
			continue
		}
		r := evt.Snapshot.RemainingSeconds
		switch {
		case evt.Snapshot.TimeExpired:
			fmt.Println("\nTime is up. Submitting automatically...")
		case r%60 == 0, r <= 10:
			fmt.Printf("\n[%s left]\n", formatClock(r))
		}
	}
}

func printReport(ctx context.Context, ctrl *session.Controller) {
	rep, err := ctrl.Report(ctx)
	if err != nil {
		fmt.Printf("Report unavailable: %v\n", err)
		return
	}
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("Score: %d/%d (%.0f%%)\n", rep.Score, rep.TotalQuestions, rep.Percentage())
	fmt.Printf("Proctoring: %s\n", rep.ProctoringResult.OverallSuspicionLevel)
	fmt.Println(rep.ProctoringResult.Summary)
	for _, f := range rep.ProctoringResult.Flags {
		fmt.Printf(" - %s\n", f)
	}
	for i, aq := range rep.AnsweredQuestions {
		answer := "-"
		if aq.SelectedAnswer != nil {
			answer, _ = model.OptionLetter(*aq.SelectedAnswer)
		}
		status := "wrong"
		if aq.IsCorrect {
			status = "correct"
		}
		fmt.Printf("%2d. %s  %s\n", i+1, answer, status)
	}
}
