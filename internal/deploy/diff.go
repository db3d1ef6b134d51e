package deploy

import (
	"fmt"
	"sort"
)

// Diff computes the ordered change set that drives one node's observed state
// to its desired state.
//
// Matching happens on container names: desired applications are mapped
// through the naming scheme, observed units outside the namespace are never
// touched. A desired application with no matching unit yields a Start; a
// recognized unit with no matching application yields a Stop; a matched pair
// that differs in normalized image, port set, or activation state yields a
// Stop followed immediately by its Start: the old container must release
// the name before the replacement can take it.
//
// Output order is deterministic: desired applications by name, then leftover
// stops by container name. Independent changes carry no ordering contract
// beyond that.
func Diff(desired []Application, observed []ObservedUnit) []Change {
	unitByContainer := make(map[string]ObservedUnit, len(observed))
	for _, unit := range observed {
		if _, ok := ApplicationName(unit.ContainerName); !ok {
			continue
		}
		unitByContainer[unit.ContainerName] = unit
	}

	apps := make([]Application, len(desired))
	copy(apps, desired)
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })

	changes := make([]Change, 0, len(apps))
	matched := make(map[string]bool, len(apps))

	for _, app := range apps {
		containerName := ContainerName(app.Name)
		unit, ok := unitByContainer[containerName]
		if !ok {
			changes = append(changes, Change{
				Kind:          Start,
				ContainerName: containerName,
				Application:   app,
				Reason:        "new application",
			})
			continue
		}
		matched[containerName] = true

		reason, satisfied := unitSatisfies(app, unit)
		if satisfied {
			continue
		}
		changes = append(changes,
			Change{Kind: Stop, ContainerName: containerName, Unit: unit, Reason: reason},
			Change{Kind: Start, ContainerName: containerName, Application: app, Reason: reason},
		)
	}

	leftover := make([]string, 0)
	for containerName := range unitByContainer {
		if !matched[containerName] {
			leftover = append(leftover, containerName)
		}
	}
	sort.Strings(leftover)
	for _, containerName := range leftover {
		changes = append(changes, Change{
			Kind:          Stop,
			ContainerName: containerName,
			Unit:          unitByContainer[containerName],
			Reason:        "application removed",
		})
	}

	return changes
}

// unitSatisfies reports whether an observed unit already realizes the
// desired application, with a reason when it does not. A unit that is not
// active never satisfies: a crashed container is as good as absent.
func unitSatisfies(app Application, unit ObservedUnit) (string, bool) {
	if unit.ActivationState != ActivationActive {
		return fmt.Sprintf("unit %s", unit.ActivationState), false
	}
	if !ImagesEqual(app.Image, unit.Image) {
		return fmt.Sprintf("image changed: %s → %s", unit.Image.Normalize(), app.Image.Normalize()), false
	}
	if !PortsEqual(app.Ports, unit.Ports) {
		return "ports changed", false
	}
	return "", true
}
