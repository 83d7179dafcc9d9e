package importer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"depot/internal/errs"
	"depot/internal/importer"
	"depot/internal/testsupport"
)

func newShopServer(t *testing.T, wantToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantToken != "" {
			if got := r.Header.Get("Authorization"); got != "Bearer "+wantToken {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
		}
		id, ok := strings.CutPrefix(r.URL.Path, "/titles/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch id {
		case "0100ABCD00000000":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"title_id": id,
				"name":     "Sample Quest",
				"base":     "https://mirror.example/base.nsp",
				"update":   "https://mirror.example/update.nsp",
				"dlc": []string{
					"https://mirror.example/dlc1.nsp",
					"https://mirror.example/dlc2.nsp",
				},
			})
		case "0100BEEF00000000":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"title_id": id,
				"name":     "Base Only",
				"base":     "https://mirror.example/only-base.nsp",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestShopProviderResolvesEveryKindByDefault(t *testing.T) {
	srv := newShopServer(t, "")
	cfg := testsupport.NewConfig(t, testsupport.WithImportShop(srv.URL, ""))
	provider := importer.NewShopProvider(cfg, nil)

	requests, err := provider.Resolve(context.Background(), "0100abcd00000000")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(requests) != 4 {
		t.Fatalf("expected base+update+2 dlc, got %d: %+v", len(requests), requests)
	}

	names := make([]string, 0, len(requests))
	for _, request := range requests {
		names = append(names, request.DisplayName)
	}
	want := []string{"Sample Quest", "Sample Quest (Update)", "Sample Quest (DLC 1)", "Sample Quest (DLC 2)"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("unexpected display names %v, want %v", names, want)
		}
	}
}

func TestShopProviderFiltersByKind(t *testing.T) {
	srv := newShopServer(t, "")
	cfg := testsupport.NewConfig(t, testsupport.WithImportShop(srv.URL, ""))
	provider := importer.NewShopProvider(cfg, nil)
	ctx := context.Background()

	requests, err := provider.Resolve(ctx, "0100ABCD00000000:update")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(requests) != 1 || requests[0].URL != "https://mirror.example/update.nsp" {
		t.Fatalf("unexpected update requests %+v", requests)
	}

	requests, err = provider.Resolve(ctx, "0100ABCD00000000:dlc")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected two dlc requests, got %+v", requests)
	}

	if _, err := provider.Resolve(ctx, "0100BEEF00000000:update"); err == nil {
		t.Fatal("expected error for missing update package")
	}

	if _, err := provider.Resolve(ctx, "0100ABCD00000000:banana"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestShopProviderSendsBearerToken(t *testing.T) {
	srv := newShopServer(t, "sekrit")

	authorized := importer.NewShopProvider(
		testsupport.NewConfig(t, testsupport.WithImportShop(srv.URL, "sekrit")), nil)
	if _, err := authorized.Resolve(context.Background(), "0100ABCD00000000"); err != nil {
		t.Fatalf("authorized resolve failed: %v", err)
	}

	anonymous := importer.NewShopProvider(
		testsupport.NewConfig(t, testsupport.WithImportShop(srv.URL, "")), nil)
	_, err := anonymous.Resolve(context.Background(), "0100ABCD00000000")
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestShopProviderUnknownTitleIsNotFound(t *testing.T) {
	srv := newShopServer(t, "")
	cfg := testsupport.NewConfig(t, testsupport.WithImportShop(srv.URL, ""))
	provider := importer.NewShopProvider(cfg, nil)

	_, err := provider.Resolve(context.Background(), "0100DEAD00000000")
	if err == nil {
		t.Fatal("expected error for unknown title")
	}
	if !errs.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestShopProviderRequiresConfiguration(t *testing.T) {
	provider := importer.NewShopProvider(testsupport.NewConfig(t), nil)

	_, err := provider.Resolve(context.Background(), "0100ABCD00000000")
	if err == nil || !strings.Contains(err.Error(), "import.shop_url") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
