package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"drift/internal/deploy"
)

// loadModel reads the deployment and application documents and validates
// them into a convergence model.
func loadModel(ctx context.Context, deploymentPath, applicationsPath string) (*deploy.Model, error) {
	deploymentDoc, err := os.ReadFile(deploymentPath)
	if err != nil {
		return nil, fmt.Errorf("read deployment document: %w", err)
	}
	applicationsDoc, err := os.ReadFile(applicationsPath)
	if err != nil {
		return nil, fmt.Errorf("read application document: %w", err)
	}

	desired, err := deploy.LoadDeployment(deploymentDoc)
	if err != nil {
		return nil, err
	}
	apps, err := deploy.LoadApplications(ctx, applicationsDoc)
	if err != nil {
		return nil, err
	}
	return deploy.NewModel(desired, apps)
}

// expectedUnits derives the observed state the cluster should settle into:
// every desired application active under its managed container name.
func expectedUnits(model *deploy.Model) map[deploy.NodeAddress][]deploy.ObservedUnit {
	expected := make(map[deploy.NodeAddress][]deploy.ObservedUnit)
	for _, node := range model.Nodes() {
		apps := model.ApplicationsFor(node)
		units := make([]deploy.ObservedUnit, 0, len(apps))
		for _, app := range apps {
			units = append(units, deploy.ObservedUnit{
				Name:            app.Name,
				ContainerName:   deploy.ContainerName(app.Name),
				ActivationState: deploy.ActivationActive,
				Image:           app.Image,
				Ports:           app.Ports,
			})
		}
		expected[node] = units
	}
	return expected
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "drift", "history.db")
	}
	return filepath.Join(home, ".drift", "history.db")
}
