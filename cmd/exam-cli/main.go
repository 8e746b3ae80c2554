package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/stemsi/exstem-portal/internal/app"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

// exam-cli takes the exam from a terminal, using the same controller as the
// HTTP portal.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// Keep the terminal for the exam; logs go to the file when one is set.
	log := logger.Setup("warn", "pretty", cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	a.StartWorkers(ctx)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== ExStem Exam ===")

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	sess, err := a.Backend.Login(ctx, email, string(bytePassword))
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return
	}
	defer func() { _ = a.Backend.Logout(context.Background(), sess) }()

	ctrl := a.NewController(sess, config.CacheKey.CandidateReportSlot(cfg.ReportSlot, sess.Subject()))
	defer ctrl.Close()

	fmt.Println("Requesting camera access and loading questions...")
	if err := ctrl.StartExam(ctx, email); err != nil {
		fmt.Printf("Cannot start the exam: %v\n", err)
		return
	}

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	finished := make(chan struct{})
	go announce(events, finished)

	printHelp()
	render(ctrl.Snapshot())

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted; the attempt was not submitted.")
			return
		case <-finished:
			printReport(ctx, ctrl)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := handle(ctx, ctrl, line); done {
				return
			}
		}
	}
}

// handle applies one command line and reports whether the session ended.
func handle(ctx context.Context, ctrl *session.Controller, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error

	switch strings.ToLower(cmd) {
	case "":
		render(ctrl.Snapshot())
		return false
	case "a", "b", "c", "d":
		idx, _ := model.OptionIndex(cmd)
		err = ctrl.SelectAnswer(idx)
	case "n", "next":
		err = ctrl.Next()
	case "p", "prev":
		err = ctrl.Prev()
	case "g", "goto":
		n, convErr := strconv.Atoi(strings.TrimSpace(arg))
		if convErr != nil {
			fmt.Println("usage: g <question number>")
			return false
		}
		err = ctrl.GoTo(n - 1)
	case "s", "submit":
		fmt.Println("Submitting and analyzing the recording...")
		if _, err = ctrl.Submit(ctx); err == nil {
			printReport(ctx, ctrl)
			return true
		}
	case "q", "quit":
		return true
	case "h", "help":
		printHelp()
		return false
	default:
		fmt.Printf("unknown command %q\n", cmd)
		return false
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		if errors.Is(err, session.ErrDeviceFailure) || ctrl.Snapshot().State == model.SessionStateIdle {
			return true
		}
		return false
	}
	render(ctrl.Snapshot())
	return false
}
