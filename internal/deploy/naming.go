package deploy

import "strings"

// containerNamespace prefixes every container this engine manages. The
// double dash keeps the namespace out of the way of ordinary image or
// application names.
const containerNamespace = "drift--"

// ContainerName maps an application name to its runtime container name.
// Deterministic and injective: distinct application names never collide.
func ContainerName(application string) string {
	return containerNamespace + application
}

// ApplicationName recovers the application name from a container name
// produced by ContainerName. The second return is false for names outside
// the namespace; those containers are not managed by this engine.
func ApplicationName(containerName string) (string, bool) {
	rest, ok := strings.CutPrefix(containerName, containerNamespace)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
