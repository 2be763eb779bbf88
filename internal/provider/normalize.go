package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const atlassianResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"

// normalizeSlack handles Slack's OAuth v2 response, which nests the user
// token under authed_user and signals failure with ok=false instead of an
// HTTP error status.
func normalizeSlack(_ context.Context, _ *http.Client, raw map[string]any, tr *TokenResult) error {
	if ok, present := raw["ok"].(bool); present && !ok {
		msg, _ := raw["error"].(string)
		return fmt.Errorf("slack reported %q", msg)
	}

	if au, ok := raw["authed_user"].(map[string]any); ok {
		if tok, _ := au["access_token"].(string); tok != "" {
			tr.AccessToken = tok
		}
		if rt, _ := au["refresh_token"].(string); rt != "" {
			tr.RefreshToken = rt
		}
		if exp, ok := au["expires_in"].(float64); ok && tr.ExpiresIn == 0 {
			tr.ExpiresIn = int64(exp)
		}
		if id, _ := au["id"].(string); id != "" {
			tr.Metadata["authed_user_id"] = id
		}
	}
	if team, ok := raw["team"].(map[string]any); ok {
		if id, _ := team["id"].(string); id != "" {
			tr.Metadata["team_id"] = id
		}
		if name, _ := team["name"].(string); name != "" {
			tr.Metadata["team_name"] = name
		}
	}
	return nil
}

// normalizeAtlassian resolves the cloud id the tenant APIs require on every
// subsequent call. Atlassian does not return it with the token, so this is
// the one provider whose normalization performs a follow-up lookup.
func normalizeAtlassian(ctx context.Context, hc *http.Client, _ map[string]any, tr *TokenResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, atlassianResourcesURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tr.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("accessible-resources: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("accessible-resources: http %d", resp.StatusCode)
	}

	var resources []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return fmt.Errorf("accessible-resources: %w", err)
	}
	if len(resources) == 0 {
		return errors.New("no accessible atlassian site for this grant")
	}

	tr.Metadata["cloud_id"] = resources[0].ID
	tr.Metadata["site_name"] = resources[0].Name
	tr.Metadata["site_url"] = resources[0].URL
	return nil
}

// normalizeFigma records the user id Figma returns alongside the tokens.
func normalizeFigma(_ context.Context, _ *http.Client, raw map[string]any, tr *TokenResult) error {
	switch id := raw["user_id"].(type) {
	case string:
		if id != "" {
			tr.Metadata["figma_user_id"] = id
		}
	case float64:
		tr.Metadata["figma_user_id"] = fmt.Sprintf("%.0f", id)
	}
	return nil
}
