package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/goalrunner/internal/orchestrator"
	"github.com/aristath/goalrunner/internal/tui"
)

var useTUI bool

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Plan and execute one objective",
	Long: `Plan and execute one objective. Without an objective argument the
objective is asked for interactively. The session summary is printed as JSON
once every task has finished.`,
	RunE: runGoal,
}

func init() {
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "follow the session in a terminal UI")
}

func runGoal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		if objective, err = tui.AskObjective(); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	go a.shutdown(ctx)

	if !useTUI {
		summary, err := a.orch.ProcessGoal(ctx, objective)
		if werr := writeSummary(cmd.OutOrStdout(), summary); werr != nil {
			log.Printf("WARNING: writing summary: %v", werr)
		}
		return err
	}

	return runWithTUI(ctx, stop, a, objective, cmd.OutOrStdout())
}

// runWithTUI executes the session while the TUI follows it. Quitting the
// TUI cancels the session.
func runWithTUI(ctx context.Context, stop context.CancelFunc, a *app, objective string, out io.Writer) error {
	global, project, err := configPaths()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before the session starts so no event is missed
	sess := a.orch.Store().Create(objective)
	p := tea.NewProgram(tui.New(a.bus, sess, a.cfg, global, project), tea.WithAltScreen())

	type result struct {
		summary *orchestrator.Summary
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		summary, err := a.orch.Run(runCtx, sess)
		resultCh <- result{summary, err}
	}()

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Printf("ERROR: TUI: %v", err)
		}
	case <-ctx.Done():
		// Restore default signal handling so a second Ctrl+C force-exits
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		p.Quit()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		select {
		case err := <-errChan:
			if err != nil {
				log.Printf("ERROR: TUI exit: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	sess.Cancel()
	cancel()
	res := <-resultCh

	if err := writeSummary(out, res.summary); err != nil {
		log.Printf("WARNING: writing summary: %v", err)
	}
	return res.err
}

func writeSummary(w io.Writer, summary *orchestrator.Summary) error {
	if summary == nil {
		return nil
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
