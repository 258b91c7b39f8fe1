// File: cmd/inspect.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
	"github.com/xkilldash9x/codebuddy-cli/internal/observability"
	"github.com/xkilldash9x/codebuddy-cli/internal/observer"
	"github.com/xkilldash9x/codebuddy-cli/internal/page"
	"github.com/xkilldash9x/codebuddy-cli/internal/store"
)

// inspectReport is what the observer made of a saved page.
type inspectReport struct {
	Location string             `json:"location"`
	Kind     string             `json:"kind"`
	Stored   map[string]string  `json:"stored"`
	Messages []publishedMessage `json:"messages"`
}

type publishedMessage struct {
	Type    messages.MessageType `json:"type"`
	Payload interface{}          `json:"payload"`
}

// recorder collects what the observer publishes.
type recorder struct {
	published []publishedMessage
}

func (r *recorder) Post(_ context.Context, msgType messages.MessageType, payload interface{}) error {
	r.published = append(r.published, publishedMessage{Type: msgType, Payload: payload})
	return nil
}

// immediateScheduler runs delayed work at once; a saved page has settled.
type immediateScheduler struct {
	ctx context.Context
}

func (s immediateScheduler) After(_ time.Duration, fn func(context.Context)) { fn(s.ctx) }

func newInspectCmd() *cobra.Command {
	var (
		location string
		asJSON   bool
	)

	inspectCmd := &cobra.Command{
		Use:   "inspect <file.html>",
		Short: "Run the page observer once against a saved page",
		Long: `Loads a saved HTML page as if it were open at --url and reports the problem,
submission result and code the observer would pick up. Useful when the site's
markup changes and the selectors need updating.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			markup, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			report, err := inspectPage(ctx, location, string(markup), cfg.Store.Origin, cfg.Observer)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			writeText(cmd.OutOrStdout(), report)
			return nil
		},
	}

	inspectCmd.Flags().StringVar(&location, "url", "", "location the page was saved from")
	inspectCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = inspectCmd.MarkFlagRequired("url")
	return inspectCmd
}

func inspectPage(ctx context.Context, location, markup, origin string, cfg config.ObserverConfig) (*inspectReport, error) {
	doc, err := page.NewDocument(location, markup)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	s := store.NewMemory(origin)
	rec := &recorder{}
	obs := observer.New(doc, s, rec, immediateScheduler{ctx: ctx}, cfg, observability.GetLogger())

	obs.Initialize(ctx)
	obs.HandleMutations(ctx)

	report := &inspectReport{
		Location: location,
		Kind:     obs.Kind().String(),
		Stored:   make(map[string]string),
		Messages: rec.published,
	}
	for _, key := range []string{store.KeyProblemDescription, store.KeyUserCode, store.KeySubmissionError} {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Stored[key] = value
		}
	}
	return report, nil
}

func writeJSON(w io.Writer, report *inspectReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeText(w io.Writer, report *inspectReport) {
	fmt.Fprintf(w, "Location: %s\n", report.Location)
	fmt.Fprintf(w, "Page:     %s\n", report.Kind)
	for _, key := range []string{store.KeyProblemDescription, store.KeySubmissionError, store.KeyUserCode} {
		if value, ok := report.Stored[key]; ok {
			fmt.Fprintf(w, "%s: %q\n", key, value)
		}
	}
	if len(report.Messages) == 0 {
		fmt.Fprintln(w, "No messages would be published.")
		return
	}
	for _, m := range report.Messages {
		fmt.Fprintf(w, "-> %s %+v\n", m.Type, m.Payload)
	}
}
