package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"drift/cmd/drift/ui"
	"drift/internal/adapter/docker"
	"drift/internal/deploy"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <deployment.yaml> <applications.yaml>",
		Short: "Show the changes a deploy would apply, without applying them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			model, err := loadModel(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			backend := docker.NewBackend()
			defer func() { _ = backend.Close() }()

			total := 0
			for _, node := range model.Nodes() {
				observed, err := backend.List(ctx, node)
				if err != nil {
					cmd.Println(ui.ErrorMsg("%s: %v", node, err))
					continue
				}
				changes := deploy.Diff(model.ApplicationsFor(node), observed)
				if len(changes) == 0 {
					cmd.Println(ui.SuccessMsg("%s: converged", node))
					continue
				}
				cmd.Println(ui.InfoMsg("%s: %d changes", ui.Accent(string(node)), len(changes)))
				for _, change := range changes {
					cmd.Println("  " + ui.Muted(change.String()))
				}
				total += len(changes)
			}

			if total == 0 {
				cmd.Println(ui.SuccessMsg("cluster matches the declared deployment"))
			} else {
				cmd.Println(ui.Bold(fmt.Sprintf("%d pending changes; run deploy to apply", total)))
			}
			return nil
		},
	}
	return cmd
}
