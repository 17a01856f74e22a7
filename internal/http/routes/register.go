// Package routes provides shared route registration for the gateway's
// documented API surface. The chat endpoint is a raw handler mounted
// by the server itself; everything here is read-only.
package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sena168/aicenghub/internal/http/handlers"
	"github.com/sena168/aicenghub/internal/http/mw"
)

// Handlers bundles the handler functions the documented routes use.
type Handlers struct {
	Links func(ctx context.Context, input *struct{}) (*handlers.ListLinksOutput, error)

	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)
}

// Register registers all documented API routes with the given Huma API.
func Register(api huma.API, h *Handlers) {
	// Health check
	mw.PublicGet(api, "/api/v1/health", handlers.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Public catalog listing
	mw.PublicGet(api, "/api/v1/links", h.Links,
		mw.WithTags("Links"),
		mw.WithSummary("List catalog links"),
		mw.WithDescription("Returns the curated AI-tool catalog with abilities and pricing tiers."),
		mw.WithOperationID("listLinks"))
}

// RegisterProbes registers the Kubernetes probes on a docs-less API.
func RegisterProbes(api huma.API, h *Handlers) {
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)
}
