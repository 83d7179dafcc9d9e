package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"depot/internal/config"
	"depot/internal/downloads"
	"depot/internal/errs"
	"depot/internal/logging"
)

// ShopProvider resolves a title ID against a shop title endpoint:
// GET <shop_url>/titles/<id> answers with the base, update, and DLC
// download URLs for that title. The reference is "<titleID>" or
// "<titleID>:<kind>" with kind one of base, update, dlc, all.
type ShopProvider struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewShopProvider builds the shop provider from the import config.
func NewShopProvider(cfg *config.Config, logger *slog.Logger) *ShopProvider {
	timeout := time.Duration(cfg.Import.RequestTimeoutSeconds) * time.Second
	return &ShopProvider{
		baseURL: cfg.Import.ShopURL,
		token:   cfg.Import.ShopToken,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "importer"),
	}
}

func (p *ShopProvider) Name() string { return "shop" }

// shopTitle is the title endpoint's response document.
type shopTitle struct {
	TitleID string   `json:"title_id"`
	Name    string   `json:"name"`
	Base    string   `json:"base"`
	Update  string   `json:"update"`
	DLC     []string `json:"dlc"`
}

// Resolve fetches the title document and maps the requested kinds to
// download requests.
func (p *ShopProvider) Resolve(ctx context.Context, ref string) ([]downloads.Request, error) {
	if p.baseURL == "" {
		return nil, errs.NewConflict("shop import", "not configured (set import.shop_url)")
	}

	titleID, kind, err := splitShopRef(ref)
	if err != nil {
		return nil, err
	}

	title, err := p.fetchTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}

	var requests []downloads.Request
	wantAll := kind == "all"
	if (wantAll || kind == "base") && title.Base != "" {
		requests = append(requests, downloads.Request{URL: title.Base, DisplayName: title.Name})
	}
	if (wantAll || kind == "update") && title.Update != "" {
		name := title.Name
		if name != "" {
			name += " (Update)"
		}
		requests = append(requests, downloads.Request{URL: title.Update, DisplayName: name})
	}
	if wantAll || kind == "dlc" {
		for i, dlcURL := range title.DLC {
			if dlcURL == "" {
				continue
			}
			name := title.Name
			if name != "" {
				name = fmt.Sprintf("%s (DLC %d)", name, i+1)
			}
			requests = append(requests, downloads.Request{URL: dlcURL, DisplayName: name})
		}
	}

	if len(requests) == 0 {
		if wantAll {
			return nil, errs.NewNotFound("downloadable content for title", titleID)
		}
		return nil, errs.NewNotFound(kind+" package for title", titleID)
	}
	return requests, nil
}

// splitShopRef parses "<titleID>" or "<titleID>:<kind>".
func splitShopRef(ref string) (titleID, kind string, err error) {
	titleID, kind, found := strings.Cut(strings.TrimSpace(ref), ":")
	titleID = strings.ToUpper(strings.TrimSpace(titleID))
	if titleID == "" {
		return "", "", errs.NewDecode(ref, "shop import reference needs a title id", nil)
	}
	if !found {
		return titleID, "all", nil
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case "base", "update", "dlc", "all":
		return titleID, kind, nil
	}
	return "", "", errs.NewDecode(kind, "unknown shop package kind (want base, update, dlc, or all)", nil)
}

func (p *ShopProvider) fetchTitle(ctx context.Context, titleID string) (*shopTitle, error) {
	endpoint := p.baseURL + "/titles/" + titleID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build shop request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.NewTransientIO("fetch shop title "+titleID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.NewNotFound("shop title", titleID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("shop rejected credentials: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("shop title lookup: status %d", resp.StatusCode)
	}

	var title shopTitle
	if err := json.NewDecoder(resp.Body).Decode(&title); err != nil {
		return nil, fmt.Errorf("decode shop title: %w", err)
	}
	p.logger.Debug("shop title resolved",
		logging.String("title_id", titleID),
		logging.String("name", title.Name))
	return &title, nil
}
