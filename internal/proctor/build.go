package proctor

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Options selects the analyzer chain.
type Options struct {
	Mode     string // mock | llm
	LLM      LLMConfig
	Archive  Archive // nil disables retention
	MinLevel model.SuspicionLevel
}

// Build returns the analyzer used by the session controller. The result is
// always wrapped in Safe.
func Build(opts Options, log zerolog.Logger) (Analyzer, error) {
	var inner Analyzer
	switch opts.Mode {
	case "mock", "":
		inner = MockAnalyzer{}
	case "llm":
		if opts.LLM.APIKey == "" {
			return nil, fmt.Errorf("proctor mode llm requires an API key")
		}
		inner = NewLLMAnalyzer(opts.LLM)
	default:
		return nil, fmt.Errorf("unknown proctor mode %q", opts.Mode)
	}

	if opts.Archive != nil {
		inner = NewArchivingAnalyzer(inner, opts.Archive, opts.MinLevel, log)
	}
	return NewSafe(inner, log), nil
}
