package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/orderdesk/internal/app"
	"github.com/ashureev/orderdesk/internal/config"
	"github.com/ashureev/orderdesk/internal/domain"
	"github.com/ashureev/orderdesk/internal/support"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		category    string
		noDelay     bool
		transcripts bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive support conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && verbose {
				fmt.Fprintln(cmd.ErrOrStderr(), "No .env file found, using environment variables")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Transcript.Enabled = transcripts
			if noDelay {
				cfg.DeferredDelayScale = 0
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			deps, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close() }()

			c := &chat{
				svc:   deps.Service,
				cfg:   cfg,
				in:    bufio.NewScanner(cmd.InOrStdin()),
				out:   cmd.OutOrStdout(),
				sleep: time.Sleep,
			}
			return c.run(cmd.Context(), category)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Category number (see 'categories') or label")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "Deliver follow-up messages without pausing")
	cmd.Flags().BoolVar(&transcripts, "transcripts", false, "Write the transcript log configured by TRANSCRIPT_LOG_PATH")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log generation failures to stderr")

	return cmd
}

// chat drives one conversation between the terminal and the service.
type chat struct {
	svc   *support.Service
	cfg   *config.Config
	in    *bufio.Scanner
	out   io.Writer
	sleep func(time.Duration)
}

func (c *chat) run(ctx context.Context, category string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if category == "" {
		c.printCategories()
		line, ok := c.prompt()
		if !ok {
			return nil
		}
		category = line
	}
	cat, err := parseCategory(category)
	if err != nil {
		return err
	}

	res, err := c.svc.Start(ctx, cat)
	if err != nil {
		return err
	}
	sessionID := res.SessionID
	if err := c.render(ctx, sessionID, res); err != nil {
		return err
	}

	for !res.Resolved && !res.Escalated && awaitsInput(res) {
		line, ok := c.prompt()
		if !ok {
			return nil
		}
		if line == "" {
			continue
		}
		if label, picked := pickButton(res.Buttons, line); picked {
			line = label
		}

		if res.ShowPaymentButtons {
			res, err = c.svc.SelectPayment(ctx, sessionID, line)
		} else {
			res, err = c.svc.Process(ctx, sessionID, line)
		}
		if err != nil {
			return err
		}
		if err := c.render(ctx, sessionID, res); err != nil {
			return err
		}
	}

	if res.NeedsEscalation || res.Escalated {
		fmt.Fprintln(c.out, "[Connecting you to a support agent]")
	}
	return nil
}

func (c *chat) render(ctx context.Context, sessionID string, res support.Result) error {
	fmt.Fprintf(c.out, "Agent: %s\n", res.Message)
	for _, d := range res.Deferred {
		c.sleep(c.cfg.ScaleDelay(d.Delay))
		text, err := c.svc.Followup(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Agent: %s\n", text)
	}
	if res.NeedsPhoto {
		fmt.Fprintln(c.out, "(Type the name of the photo you are uploading.)")
	}
	for i, b := range res.Buttons {
		fmt.Fprintf(c.out, "  [%d] %s\n", i+1, b)
	}
	return nil
}

func (c *chat) printCategories() {
	fmt.Fprintln(c.out, "What is the issue with your order?")
	for i, cat := range domain.Categories() {
		fmt.Fprintf(c.out, "  [%d] %s\n", i+1, cat)
	}
}

func (c *chat) prompt() (string, bool) {
	fmt.Fprint(c.out, "You: ")
	if !c.in.Scan() {
		fmt.Fprintln(c.out)
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func awaitsInput(res support.Result) bool {
	return res.ShowInput || res.ShowChat || res.ShowButtons || res.ShowPaymentButtons
}

// parseCategory accepts a 1-based index or a label, ignoring case.
func parseCategory(s string) (domain.Category, error) {
	cats := domain.Categories()
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(cats) {
			return "", fmt.Errorf("%w: no category number %d", domain.ErrUnknownCategory, n)
		}
		return cats[n-1], nil
	}
	for _, c := range cats {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownCategory, s)
}

// pickButton maps a typed button number to its label.
func pickButton(buttons []string, line string) (string, bool) {
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(buttons) {
		return "", false
	}
	return buttons[n-1], true
}
