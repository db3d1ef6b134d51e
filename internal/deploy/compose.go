package deploy

import (
	"context"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	compose "github.com/compose-spec/compose-go/v2/types"
)

const composeSpecFilename = "application.yaml"

// loadComposeApplications maps a Docker Compose document onto an application
// configuration. Only image, published ports, and environment carry over;
// compose-only orchestration fields (volumes, healthchecks, deploy sections)
// have no counterpart here and are ignored by the loader options we use.
func loadComposeApplications(ctx context.Context, data []byte) (ApplicationConfiguration, error) {
	configDetails := compose.ConfigDetails{
		ConfigFiles: []compose.ConfigFile{
			{Filename: composeSpecFilename, Content: data},
		},
	}

	project, err := loader.LoadWithContext(ctx, configDetails, func(o *loader.Options) {
		o.SetProjectName("drift", true)
		o.SkipValidation = true
	})
	if err != nil {
		return ApplicationConfiguration{}, configErrorf("parse compose application document: %v", err)
	}
	if len(project.Services) == 0 {
		return ApplicationConfiguration{}, configErrorf("compose application document has no services")
	}

	out := ApplicationConfiguration{
		Version:      SchemaVersion,
		Applications: make(map[string]Application, len(project.Services)),
	}
	for name, svc := range project.Services {
		image, err := ParseImageReference(svc.Image)
		if err != nil {
			return ApplicationConfiguration{}, configErrorf("compose service %q: %v", name, err)
		}
		out.Applications[name] = Application{
			Name:        name,
			Image:       image,
			Ports:       composePorts(svc.Ports),
			Environment: composeEnvironment(svc.Environment),
		}
	}
	return out, nil
}

func composePorts(ports []compose.ServicePortConfig) []PortMapping {
	if len(ports) == 0 {
		return nil
	}
	out := make([]PortMapping, 0, len(ports))
	for _, p := range ports {
		internal := uint16(0)
		if p.Target <= uint32(^uint16(0)) {
			internal = uint16(p.Target)
		}
		out = append(out, PortMapping{
			Internal: internal,
			External: parsePublishedPort(p.Published),
		})
	}
	return canonicalPorts(out)
}

func parsePublishedPort(published string) uint16 {
	published = strings.TrimSpace(published)
	if published == "" {
		return 0
	}
	n, err := strconv.ParseUint(published, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

func composeEnvironment(env compose.MappingWithEquals) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for key, value := range env {
		if value == nil {
			out[key] = ""
			continue
		}
		out[key] = *value
	}
	return out
}
