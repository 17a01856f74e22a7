package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/sena168/aicenghub/internal/models"
)

// ========================================
// HealthCheck Tests
// ========================================

func TestHealthCheck(t *testing.T) {
	output, err := HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "healthy" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "healthy")
	}
	if output.Body.Version == "" {
		t.Error("expected version to be set")
	}
}

// ========================================
// Livez Tests
// ========================================

func TestLivez(t *testing.T) {
	output, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// Readyz Tests
// ========================================

// mockDBPinger implements DBPinger for testing
type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping() error {
	return m.err
}

func TestReadyzSuccess(t *testing.T) {
	handler := NewReadyzHandler(&mockDBPinger{})

	output, err := handler.Readyz(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

func TestReadyzDBError(t *testing.T) {
	handler := NewReadyzHandler(&mockDBPinger{err: errors.New("connection failed")})

	if _, err := handler.Readyz(context.Background(), nil); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestReadyzNilDB(t *testing.T) {
	handler := NewReadyzHandler(nil)

	output, err := handler.Readyz(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// ListLinks Tests
// ========================================

type mockLinkLister struct {
	links []*models.MainLink
	err   error
}

func (m *mockLinkLister) GetMainLinks(ctx context.Context) ([]*models.MainLink, error) {
	return m.links, m.err
}

func TestListLinks(t *testing.T) {
	handler := NewLinksHandler(&mockLinkLister{links: []*models.MainLink{
		{ID: "01A", CanonicalURL: "https://acme.example", Name: "Acme", Pricing: models.PricingFree},
		{ID: "01B", CanonicalURL: "https://beta.example", Name: "Beta", Pricing: models.PricingPaid},
	}})

	output, err := handler.ListLinks(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Count != 2 {
		t.Errorf("Count = %d, want 2", output.Body.Count)
	}
	if output.Body.Links[0].Name != "Acme" || output.Body.Links[0].Pricing != models.PricingFree {
		t.Errorf("unexpected first entry %+v", output.Body.Links[0])
	}
}

func TestListLinksStoreError(t *testing.T) {
	handler := NewLinksHandler(&mockLinkLister{err: errors.New("db down")})

	if _, err := handler.ListLinks(context.Background(), nil); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestListLinksNilStore(t *testing.T) {
	handler := NewLinksHandler(nil)

	output, err := handler.ListLinks(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Count != 0 || output.Body.Links == nil {
		t.Errorf("expected empty listing, got %+v", output.Body)
	}
}
