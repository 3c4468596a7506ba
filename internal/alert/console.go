package alert

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/baton-ci/baton/pkg/types"
)

// ConsoleSink writes notices to the terminal with color.
type ConsoleSink struct{}

// NewConsoleSink creates a new console notice sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes a notice to the terminal with color-coded severity.
func (s *ConsoleSink) Send(_ context.Context, n types.Notice) error {
	var prefix string
	switch n.Level {
	case types.NoticeCritical:
		prefix = color.RedString("[CRIT]")
	case types.NoticeWarning:
		prefix = color.YellowString("[WARN]")
	default:
		prefix = color.CyanString("[INFO]")
	}

	if n.Workflow != "" {
		fmt.Printf("%s [%s] %s\n", prefix, n.Workflow, n.Message)
	} else {
		fmt.Printf("%s %s\n", prefix, n.Message)
	}
	if n.ReferenceURL != "" {
		fmt.Printf("       %s\n", n.ReferenceURL)
	}
	return nil
}
