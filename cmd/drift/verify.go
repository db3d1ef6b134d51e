package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"drift/cmd/drift/ui"
	"drift/internal/adapter/docker"
	"drift/internal/converge"
)

func newVerifyCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "verify <deployment.yaml> <applications.yaml>",
		Short: "Wait for the cluster to match the declared deployment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			model, err := loadModel(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			backend := docker.NewBackend()
			defer func() { _ = backend.Close() }()

			coordinator := &converge.Coordinator{Agent: &converge.Agent{
				Backend: backend,
				Model:   model,
			}}

			err = coordinator.AssertExpectedDeployment(ctx, expectedUnits(model), timeout)
			if err == nil {
				cmd.Println(ui.SuccessMsg("cluster matches the declared deployment"))
				return nil
			}

			var timeoutErr *converge.TimeoutError
			if errors.As(err, &timeoutErr) {
				rows := make([][]string, 0, len(timeoutErr.Mismatches))
				for _, mismatch := range timeoutErr.Mismatches {
					rows = append(rows, []string{string(mismatch.Node), mismatch.ContainerName, mismatch.Detail})
				}
				cmd.Println(ui.Table([]string{"NODE", "CONTAINER", "MISMATCH"}, rows))
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the cluster to settle")
	return cmd
}
