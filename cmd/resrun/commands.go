package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/resrun/internal/backend"
	"github.com/kalambet/resrun/internal/config"
	"github.com/kalambet/resrun/internal/export"
	"github.com/kalambet/resrun/internal/mcpserver"
	"github.com/kalambet/resrun/internal/report"
	"github.com/kalambet/resrun/internal/runstore"
	"github.com/kalambet/resrun/internal/session"
	"github.com/kalambet/resrun/internal/stub"
)

// --- research ---

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Submit a research query and follow it to completion",
	Long: `Submit a research query and follow its event stream to completion.

Examples:
  resrun research "why is the sky blue"
  resrun research --report "history of the transistor"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		showReport, _ := cmd.Flags().GetBool("report")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		sess := session.New(app.client, app.runs)
		sess.OnEvent(func(ev session.Event) {
			printStep("%s", ev.Kind)
		})

		printStep("Submitting query...")
		if err := sess.Start(cmd.Context(), query); err != nil {
			return err
		}
		printStatus("Run", "%s", sess.RunID())

		waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := sess.Wait(waitCtx); err != nil {
			sess.Stop()
			return fmt.Errorf("run %s did not finish: %w", sess.RunID(), err)
		}

		status, log := sess.Snapshot()
		for _, st := range session.StageProgress(log, status) {
			printStatus(st.Label, "%s", st.State)
		}
		if status == session.StatusError {
			return fmt.Errorf("run %s ended in error after %d events", sess.RunID(), len(log))
		}
		printSuccess("Run %s finished with %d events", sess.RunID(), len(log))

		if showReport {
			doc := report.Build(query, log)
			fmt.Print(doc.Markdown())
		} else {
			printStatus("Report", "resrun report show %s", sess.RunID())
		}
		return nil
	},
}

func init() {
	researchCmd.Flags().Duration("timeout", 10*time.Minute, "maximum time to wait for the run to finish")
	researchCmd.Flags().Bool("report", false, "print the report when the run finishes")
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded research runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs from the local registry, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		showRemote, _ := cmd.Flags().GetBool("remote")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		var local []runstore.RunRecord
		var remote []backend.RemoteRun

		g, gctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			local = app.runs.List()
			return nil
		})
		if showRemote {
			g.Go(func() error {
				var err error
				remote, err = app.client.ListRuns(gctx)
				if err != nil {
					return fmt.Errorf("fetching remote runs: %w", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(local) == 0 {
			fmt.Println("No local runs recorded.")
		}
		if limit > 0 && len(local) > limit {
			local = local[:limit]
		}
		for _, rec := range local {
			fmt.Printf("%s  %-7s  %s  %s\n",
				colorize(ansiCyan, shortID(rec.ID)),
				rec.Status,
				rec.StartedAt.Local().Format("2006-01-02 15:04"),
				truncate(rec.Query, 60),
			)
		}

		if showRemote {
			fmt.Printf("\n%s\n", colorize(ansiBold, "Backend runs:"))
			if len(remote) == 0 {
				fmt.Println("No runs on the backend.")
			}
			for _, rn := range remote {
				fmt.Printf("%s  %-7s  %s  %s\n",
					colorize(ansiCyan, shortID(rn.ID)),
					rn.Status,
					rn.CreatedAt.Local().Format("2006-01-02 15:04"),
					truncate(rn.Query, 60),
				)
			}
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		rec, ok := findRun(app.runs, args[0])
		if !ok {
			return fmt.Errorf("run %q not found in the local registry", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of local runs to list")
	runsListCmd.Flags().Bool("remote", false, "also list the backend's runs")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build, export, and inspect run reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Rebuild a run's report and print it as text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		doc, err := buildReport(cmd.Context(), app, args[0])
		if err != nil {
			return err
		}
		if doc.IsEmpty() {
			printWarning("Run produced no report sections")
		}
		fmt.Print(doc.Markdown())
		return nil
	},
}

var reportExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's report as PDF (or portable text with --text)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		asText, _ := cmd.Flags().GetBool("text")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		doc, err := buildReport(cmd.Context(), app, args[0])
		if err != nil {
			return err
		}

		if asText {
			if output == "" {
				return app.gateway.WritePortable(doc, os.Stdout)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			if err := app.gateway.WritePortable(doc, f); err != nil {
				return err
			}
			printSuccess("Report written to %s", output)
			return nil
		}

		printStep("Requesting PDF export...")
		pdf, err := app.gateway.ExportPDF(cmd.Context(), doc)
		if err != nil {
			return err
		}

		if output == "" {
			output = shortID(args[0]) + ".pdf"
		}
		if err := os.WriteFile(output, pdf, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("PDF written to %s (%d bytes)", output, len(pdf))
		return nil
	},
}

var reportTextCmd = &cobra.Command{
	Use:   "text <file.pdf>",
	Short: "Extract the plain text of an exported PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := export.ExtractText(args[0])
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

func init() {
	reportExportCmd.Flags().String("output", "", "output file path (default: <run-id>.pdf, or stdout with --text)")
	reportExportCmd.Flags().Bool("text", false, "write portable text instead of requesting a PDF")
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportExportCmd)
	reportCmd.AddCommand(reportTextCmd)
}

// buildReport fetches a run's stored events and rebuilds its document. The
// topic comes from the local registry when the run is known there.
func buildReport(ctx context.Context, app *app, runID string) (report.Document, error) {
	topic := runID
	if rec, ok := findRun(app.runs, runID); ok {
		runID = rec.ID
		topic = rec.Query
	}

	events, err := app.client.RunEvents(ctx, runID)
	if err != nil {
		return report.Document{}, fmt.Errorf("fetching events for run %s: %w", runID, err)
	}
	return report.Build(topic, events), nil
}

// findRun resolves a full or prefix run identifier against the registry.
func findRun(runs *runstore.Store, id string) (runstore.RunRecord, bool) {
	for _, rec := range runs.List() {
		if rec.ID == id || strings.HasPrefix(rec.ID, id) {
			return rec, true
		}
	}
	return runstore.RunRecord{}, false
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(ansiBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- stub ---

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local stub research backend (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s := stub.New(ctx, nil, 0)
		srv := &http.Server{
			Addr:    addr,
			Handler: s.Handler(),
		}

		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(os.Stderr, "stub backend listening on %s\n", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	stubCmd.Flags().String("addr", "127.0.0.1:8000", "listen address")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP interface on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := mcpserver.NewMCPServer(mcpserver.Deps{
			Backend: app.client,
			Events:  app.client,
			Runs:    app.runs,
		})
		stdioSrv := mcpgo.NewStdioServer(mcpSrv)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
