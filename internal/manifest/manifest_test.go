package manifest

import (
	"os"
	"path/filepath"
	"testing"

	gcpmodule "github.com/blackwell-systems/gcp-module-project"
)

const sampleYAML = `version: 0.0.30
resources:
  - name: org
    module: gcp-module-organization
    spec:
      domain: example.com
  - name: app
    module: gcp-module-project
    spec:
      project_id: demo-app
      parent: ref:org
      labels:
        env: dev
  - name: app-admins
    module: gcp-module-admin
    spec:
      resource: ref:app
      bindings:
        roles/owner:
          - group:admins@example.com
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m, err := Load(writeFile(t, "resources.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.Version != "0.0.30" {
		t.Errorf("Version = %q, want 0.0.30", m.Version)
	}
	if len(m.Resources) != 3 {
		t.Fatalf("len(Resources) = %d, want 3", len(m.Resources))
	}
	if got := m.Resources[1].Refs(); len(got) != 1 || got[0] != "org" {
		t.Errorf("Refs() = %v, want [org]", got)
	}
}

func TestLoadJSONAndSaveRoundTrip(t *testing.T) {
	src, err := Load(writeFile(t, "resources.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "resources.json")
	if err := Save(src, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.Resources) != 3 || m.Resources[2].Module != "gcp-module-admin" {
		t.Errorf("unexpected resources after round trip: %+v", m.Resources)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name: "invalid yaml",
			path: func(t *testing.T) string { return writeFile(t, "bad.yaml", "resources: [") },
		},
		{
			name: "invalid json",
			path: func(t *testing.T) string { return writeFile(t, "bad.json", "{") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path(t)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestRegistrySpecIsACopy(t *testing.T) {
	res := Resource{Spec: map[string]any{"labels": map[string]any{"env": "dev"}}}
	spec := res.RegistrySpec()
	spec["labels"].(map[string]any)["env"] = "prod"

	if res.Spec["labels"].(map[string]any)["env"] != "dev" {
		t.Error("RegistrySpec() must not alias the manifest spec")
	}
}

func TestValidate(t *testing.T) {
	reg := gcpmodule.New()

	valid := Resource{Name: "app", Module: "gcp-module-project", Spec: map[string]any{"project_id": "demo-app"}}

	tests := []struct {
		name      string
		manifest  Manifest
		wantValid bool
		wantWarn  bool
	}{
		{
			name:      "valid",
			manifest:  Manifest{Resources: []Resource{valid}},
			wantValid: true,
		},
		{
			name:      "empty manifest warns",
			manifest:  Manifest{},
			wantValid: true,
			wantWarn:  true,
		},
		{
			name: "refs are checked at run time",
			manifest: Manifest{Resources: []Resource{
				valid,
				{Name: "admins", Module: "gcp-module-admin", Spec: map[string]any{"resource": "ref:app"}},
			}},
			wantValid: true,
			wantWarn:  true,
		},
		{
			name:     "manifest needs newer registry",
			manifest: Manifest{Version: "1.0.0", Resources: []Resource{valid}},
		},
		{
			name:     "unknown module",
			manifest: Manifest{Resources: []Resource{{Name: "x", Module: "gcp-module-billing"}}},
		},
		{
			name:     "missing module",
			manifest: Manifest{Resources: []Resource{{Name: "x"}}},
		},
		{
			name:     "invalid name",
			manifest: Manifest{Resources: []Resource{{Name: "App!", Module: "gcp-module-project", Spec: valid.Spec}}},
		},
		{
			name:     "duplicate name",
			manifest: Manifest{Resources: []Resource{valid, valid}},
		},
		{
			name: "forward reference",
			manifest: Manifest{Resources: []Resource{
				{Name: "admins", Module: "gcp-module-admin", Spec: map[string]any{"resource": "ref:app"}},
				valid,
			}},
		},
		{
			name: "self reference",
			manifest: Manifest{Resources: []Resource{
				{Name: "app", Module: "gcp-module-project", Spec: map[string]any{"project_id": "ref:app"}},
			}},
		},
		{
			name: "invalid spec",
			manifest: Manifest{Resources: []Resource{
				{Name: "app", Module: "gcp-module-project", Spec: map[string]any{"project_id": "X"}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(&tt.manifest, reg)
			if result.Valid != tt.wantValid {
				t.Errorf("Validate() valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if tt.wantWarn && len(result.Warnings) == 0 {
				t.Error("Validate() should warn")
			}
			if !tt.wantValid && len(result.Errors) == 0 {
				t.Error("invalid manifest must report errors")
			}
		})
	}
}

func TestValidateUnquotedNumbers(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "resources.yaml",
			content: `resources:
  - name: org
    module: gcp-module-organization
    spec:
      organization_id: 123456789
  - name: app
    module: gcp-module-project
    spec:
      project_id: demo-app
      parent: organizations/123456789
      labels:
        tier: 1
`,
		},
		{
			name: "json",
			file: "resources.json",
			content: `{"resources": [
  {"name": "org", "module": "gcp-module-organization", "spec": {"organization_id": 123456789}},
  {"name": "app", "module": "gcp-module-project", "spec": {"project_id": "demo-app", "labels": {"tier": 1}}}
]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			result := Validate(m, gcpmodule.New())
			if !result.Valid {
				t.Errorf("Validate() errors = %v", result.Errors)
			}
		})
	}
}
