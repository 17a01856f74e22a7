package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sena168/aicenghub/internal/models"
)

// LinkLister is the catalog surface the public listing needs.
type LinkLister interface {
	GetMainLinks(ctx context.Context) ([]*models.MainLink, error)
}

// LinkEntry is one catalog row in the public listing.
type LinkEntry struct {
	ID           string             `json:"id"`
	CanonicalURL string             `json:"canonicalUrl"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Abilities    []models.Ability   `json:"abilities,omitempty"`
	Pricing      models.PricingTier `json:"pricing"`
	Tags         []models.Tag       `json:"tags,omitempty"`
	FaviconURL   string             `json:"faviconUrl,omitempty"`
	ThumbnailURL string             `json:"thumbnailUrl,omitempty"`
}

// ListLinksOutput is the catalog listing response.
type ListLinksOutput struct {
	Body struct {
		Links []LinkEntry `json:"links"`
		Count int         `json:"count"`
	}
}

// LinksHandler serves the read-only catalog listing.
type LinksHandler struct {
	links LinkLister
}

// NewLinksHandler creates a catalog listing handler.
func NewLinksHandler(links LinkLister) *LinksHandler {
	return &LinksHandler{links: links}
}

// ListLinks returns the curated catalog, name-sorted.
func (h *LinksHandler) ListLinks(ctx context.Context, input *struct{}) (*ListLinksOutput, error) {
	out := &ListLinksOutput{}
	out.Body.Links = []LinkEntry{}

	if h.links == nil {
		return out, nil
	}

	links, err := h.links.GetMainLinks(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list links")
	}
	for _, link := range links {
		out.Body.Links = append(out.Body.Links, LinkEntry{
			ID:           link.ID,
			CanonicalURL: link.CanonicalURL,
			Name:         link.Name,
			Description:  link.Description,
			Abilities:    link.Abilities,
			Pricing:      link.Pricing,
			Tags:         link.Tags,
			FaviconURL:   link.FaviconURL,
			ThumbnailURL: link.ThumbnailURL,
		})
	}
	out.Body.Count = len(out.Body.Links)
	return out, nil
}
