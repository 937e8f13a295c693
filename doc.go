// Package gcpmodule is the catalog of GCP resource modules.
//
// It declares which resource modules this release provides and under which
// identifiers a host framework discovers them:
//
//	gcp-module-project       Project       Cloud Resource Manager projects
//	gcp-module-organization  Organization  organization lookup and verification
//	gcp-module-admin         Admin         administrative IAM role grants
//
// # Usage
//
// A host builds the registry once and injects it where modules are resolved:
//
//	reg := gcpmodule.New()
//	if err := reg.Require("0.0.30"); err != nil {
//		return err
//	}
//	entry, err := reg.Lookup("gcp-module-project")
//	if err != nil {
//		return err // *registry.UnknownModuleError
//	}
//	mod, err := entry.New(services)
//
// Adding a module is a release, not a runtime operation: append it to the
// catalog and bump Version.
//
// # Reference host
//
// cmd/gcp-module drives the modules from a YAML manifest:
//
//	gcp-module modules list
//	gcp-module plan -f resources.yaml
//	gcp-module apply -f resources.yaml
//
// # License
//
// Apache 2.0 - See LICENSE file for details.
package gcpmodule
