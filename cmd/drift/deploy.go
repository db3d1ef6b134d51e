package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"drift/cmd/drift/ui"
	"drift/internal/adapter/docker"
	"drift/internal/adapter/sqlite"
	"drift/internal/converge"
	"drift/internal/deploy"
	"drift/internal/signal/ntp"
	"drift/internal/telemetry"
)

func newDeployCmd() *cobra.Command {
	var (
		verifyTimeout time.Duration
		historyPath   string
		checkClock    bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <deployment.yaml> <applications.yaml>",
		Short: "Converge every node onto the declared deployment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			model, err := loadModel(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			cmd.Print(ui.KeyValues("",
				ui.KV("deployment", args[0]),
				ui.KV("applications", args[1]),
				ui.KV("nodes", strconv.Itoa(len(model.Nodes()))),
			))

			if checkClock {
				checker := ntp.NewChecker(converge.RealClock{})
				if status := checker.CheckOnce(); status.Phase != ntp.Healthy {
					fmt.Fprintln(os.Stderr, ui.WarnMsg("local clock check %s (offset %s); cycle timestamps may be skewed",
						status.Phase, status.Offset))
				}
			}

			backend := docker.NewBackend()
			defer func() { _ = backend.Close() }()

			// Live step rendering is interactive chrome; non-interactive
			// runs get the final report table only.
			var output *ui.TelemetryOutput
			if ui.IsInteractive() {
				output = ui.NewTelemetryOutput()
				defer output.Close()
			}
			tracer := output.Tracer("drift")

			plan := telemetry.Plan{}
			for _, node := range model.Nodes() {
				plan.Steps = append(plan.Steps, telemetry.PlannedStep{
					ID:    convergeStep(node),
					Title: fmt.Sprintf("converging %s", node),
				})
			}
			op, err := telemetry.EmitPlan(ctx, tracer, "deploy", plan)
			if err != nil {
				return err
			}

			coordinator := &converge.Coordinator{
				Agent: &converge.Agent{
					Backend: backend,
					Model:   model,
				},
				StepRunner: func(ctx context.Context, node deploy.NodeAddress, fn func(context.Context) error) error {
					return op.RunStep(ctx, convergeStep(node), fn)
				},
			}
			report := coordinator.Deploy(op.Context())

			var deployErr error
			if !report.Converged() {
				deployErr = fmt.Errorf("deployment incomplete on %d of %d nodes",
					countUnconverged(report), len(report.Results))
			}
			op.End(deployErr)

			if err := recordHistory(historyPath, report); err != nil {
				fmt.Fprintln(os.Stderr, ui.WarnMsg("record history: %v", err))
			}

			printReport(cmd, report)
			if deployErr != nil {
				return deployErr
			}

			if verifyTimeout > 0 {
				if err := coordinator.AssertExpectedDeployment(ctx, expectedUnits(model), verifyTimeout); err != nil {
					return err
				}
				cmd.Println(ui.SuccessMsg("deployment verified"))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&verifyTimeout, "verify", 0, "After converging, wait up to this long for the cluster to match the declared state")
	cmd.Flags().StringVar(&historyPath, "history", defaultHistoryPath(), "Cycle history database path")
	cmd.Flags().BoolVar(&checkClock, "check-clock", false, "Warn when the local clock drifts from NTP")
	return cmd
}

// convergeStep is the plan step ID for one node's cycle.
func convergeStep(node deploy.NodeAddress) string {
	return fmt.Sprintf("converge %s", node)
}

func countUnconverged(report converge.Report) int {
	n := 0
	for _, result := range report.Results {
		if !result.Converged() {
			n++
		}
	}
	return n
}

func recordHistory(path string, report converge.Report) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.RecordReport(report)
}

func printReport(cmd *cobra.Command, report converge.Report) {
	rows := make([][]string, 0, len(report.Results))
	for _, result := range report.Results {
		detail := ""
		switch {
		case result.Err != nil:
			detail = result.Err.Error()
		case len(result.Failures) > 0:
			detail = result.Failures[0].Error()
		}
		rows = append(rows, []string{
			string(result.Node),
			ui.Phase(result.Phase.String()),
			fmt.Sprintf("%d/%d", result.ChangesSucceeded, result.ChangesAttempted),
			detail,
		})
	}
	cmd.Println(ui.Table([]string{"NODE", "PHASE", "CHANGES", "DETAIL"}, rows))
}
