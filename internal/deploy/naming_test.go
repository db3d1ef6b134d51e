package deploy

import "testing"

func TestContainerName(t *testing.T) {
	if got := ContainerName("mongodb-example"); got != "drift--mongodb-example" {
		t.Fatalf("ContainerName() = %q, want drift--mongodb-example", got)
	}
}

func TestContainerNameInjective(t *testing.T) {
	names := []string{"a", "b", "ab", "a-b", "mongodb-example", "mongodb", "example"}
	seen := make(map[string]string, len(names))
	for _, name := range names {
		containerName := ContainerName(name)
		if prev, ok := seen[containerName]; ok {
			t.Fatalf("ContainerName collision: %q and %q both map to %q", prev, name, containerName)
		}
		seen[containerName] = name
	}
}

func TestApplicationName(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		name, ok := ApplicationName(ContainerName("mongodb-example"))
		if !ok || name != "mongodb-example" {
			t.Fatalf("ApplicationName() = %q, %v; want mongodb-example, true", name, ok)
		}
	})

	t.Run("foreign names rejected", func(t *testing.T) {
		for _, containerName := range []string{"", "mongodb-example", "postgres", "drift", "drift-x", "drift--"} {
			if name, ok := ApplicationName(containerName); ok {
				t.Fatalf("ApplicationName(%q) = %q, true; want rejection", containerName, name)
			}
		}
	})
}
