package deploy

import (
	"context"
	"errors"
	"testing"
)

func TestLoadDeployment(t *testing.T) {
	t.Run("yaml form", func(t *testing.T) {
		doc := []byte(`
version: 1
nodes:
  "10.0.0.1": ["mongodb-example"]
  "10.0.0.2": []
`)
		cfg, err := LoadDeployment(doc)
		if err != nil {
			t.Fatalf("LoadDeployment() error = %v", err)
		}
		if cfg.Version != 1 {
			t.Fatalf("version = %d, want 1", cfg.Version)
		}
		if apps := cfg.Nodes["10.0.0.1"]; len(apps) != 1 || apps[0] != "mongodb-example" {
			t.Fatalf("node1 apps = %v, want [mongodb-example]", apps)
		}
		if apps, ok := cfg.Nodes["10.0.0.2"]; !ok || len(apps) != 0 {
			t.Fatalf("node2 apps = %v (declared %v), want declared empty", apps, ok)
		}
	})

	t.Run("json form", func(t *testing.T) {
		doc := []byte(`{"version": 1, "nodes": {"10.0.0.1": ["web"]}}`)
		cfg, err := LoadDeployment(doc)
		if err != nil {
			t.Fatalf("LoadDeployment() error = %v", err)
		}
		if apps := cfg.Nodes["10.0.0.1"]; len(apps) != 1 || apps[0] != "web" {
			t.Fatalf("node apps = %v, want [web]", apps)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		doc := []byte("version: 1\nnodes: {}\nextra: true\n")
		_, err := LoadDeployment(doc)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("LoadDeployment() error = %v, want ConfigurationError", err)
		}
	})

	t.Run("empty document rejected", func(t *testing.T) {
		if _, err := LoadDeployment(nil); err == nil {
			t.Fatal("LoadDeployment expected error for empty document")
		}
	})
}

func TestLoadApplications(t *testing.T) {
	t.Run("native form", func(t *testing.T) {
		doc := []byte(`
version: 1
applications:
  mongodb-example:
    image: clusterhq/mongodb
  site:
    image: nginx:1.25
    ports:
      - internal: 80
        external: 8080
    environment:
      MODE: production
`)
		cfg, err := LoadApplications(context.Background(), doc)
		if err != nil {
			t.Fatalf("LoadApplications() error = %v", err)
		}
		mongo := cfg.Applications["mongodb-example"]
		if mongo.Image.Repository != "clusterhq/mongodb" || mongo.Image.Tag != "" {
			t.Fatalf("mongo image = %+v, want untagged clusterhq/mongodb", mongo.Image)
		}
		site := cfg.Applications["site"]
		if site.Image.Tag != "1.25" {
			t.Fatalf("site image tag = %q, want 1.25", site.Image.Tag)
		}
		if len(site.Ports) != 1 || site.Ports[0] != (PortMapping{Internal: 80, External: 8080}) {
			t.Fatalf("site ports = %+v", site.Ports)
		}
		if site.Environment["MODE"] != "production" {
			t.Fatalf("site environment = %+v", site.Environment)
		}
	})

	t.Run("bad image rejected", func(t *testing.T) {
		doc := []byte("version: 1\napplications:\n  broken:\n    image: \"\"\n")
		_, err := LoadApplications(context.Background(), doc)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("LoadApplications() error = %v, want ConfigurationError", err)
		}
	})

	t.Run("compose form detected", func(t *testing.T) {
		doc := []byte(`
services:
  web:
    image: nginx:1.25
    ports:
      - "8080:80"
    environment:
      MODE: production
`)
		cfg, err := LoadApplications(context.Background(), doc)
		if err != nil {
			t.Fatalf("LoadApplications(compose) error = %v", err)
		}
		if cfg.Version != SchemaVersion {
			t.Fatalf("compose config version = %d, want %d", cfg.Version, SchemaVersion)
		}
		web, ok := cfg.Applications["web"]
		if !ok {
			t.Fatalf("compose service web missing: %+v", cfg.Applications)
		}
		if web.Image.Repository != "nginx" || web.Image.Tag != "1.25" {
			t.Fatalf("web image = %+v", web.Image)
		}
		if len(web.Ports) != 1 || web.Ports[0] != (PortMapping{Internal: 80, External: 8080}) {
			t.Fatalf("web ports = %+v", web.Ports)
		}
		if web.Environment["MODE"] != "production" {
			t.Fatalf("web environment = %+v", web.Environment)
		}
	})
}
