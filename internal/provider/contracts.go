package provider

// CallbackPath is the fixed redirect path registered with every provider app.
// The signed state parameter identifies the tool, so one callback serves all.
const CallbackPath = "/v1/integrations/callback"

// Builtin is the compiled-in contract table.
//
// Whether a given app registration serves one tool or several is a
// per-provider fact, not a rule: Atlassian and Google each serve two tools
// under one registration and one scope set, the rest serve one.
func Builtin() []Contract {
	return []Contract{
		{
			ProviderID:         "github",
			AuthorizeURL:       "https://github.com/login/oauth/authorize",
			TokenURL:           "https://github.com/login/oauth/access_token",
			ClientIDEnvKey:     "GITHUB_CLIENT_ID",
			ClientSecretEnvKey: "GITHUB_CLIENT_SECRET",
			RedirectPath:       CallbackPath,
			Scopes:             []string{"repo", "read:user"},
			ToolIDs:            []string{"github"},
		},
		{
			ProviderID:         "atlassian",
			AuthorizeURL:       "https://auth.atlassian.com/authorize",
			TokenURL:           "https://auth.atlassian.com/oauth/token",
			ClientIDEnvKey:     "ATLASSIAN_CLIENT_ID",
			ClientSecretEnvKey: "ATLASSIAN_CLIENT_SECRET",
			RedirectPath:       CallbackPath,
			Scopes: []string{
				"read:jira-work", "write:jira-work",
				"read:confluence-content.all", "write:confluence-content",
				"offline_access",
			},
			ToolIDs: []string{"jira", "confluence"},
			ExtraAuthParams: map[string]string{
				"audience": "api.atlassian.com",
				"prompt":   "consent",
			},
			Normalize: normalizeAtlassian,
		},
		{
			ProviderID:         "google",
			AuthorizeURL:       "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:           "https://oauth2.googleapis.com/token",
			ClientIDEnvKey:     "GOOGLE_CLIENT_ID",
			ClientSecretEnvKey: "GOOGLE_CLIENT_SECRET",
			RedirectPath:       CallbackPath,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.modify",
				"https://www.googleapis.com/auth/calendar",
			},
			ToolIDs: []string{"gmail", "gcalendar"},
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
		},
		{
			ProviderID:         "slack",
			AuthorizeURL:       "https://slack.com/oauth/v2/authorize",
			TokenURL:           "https://slack.com/api/oauth.v2.access",
			ClientIDEnvKey:     "SLACK_CLIENT_ID",
			ClientSecretEnvKey: "SLACK_CLIENT_SECRET",
			RedirectPath:       CallbackPath,
			Scopes:             []string{"channels:read", "chat:write", "users:read"},
			ToolIDs:            []string{"slack"},
			Normalize:          normalizeSlack,
		},
		{
			ProviderID:         "figma",
			AuthorizeURL:       "https://www.figma.com/oauth",
			TokenURL:           "https://api.figma.com/v1/oauth/token",
			ClientIDEnvKey:     "FIGMA_CLIENT_ID",
			ClientSecretEnvKey: "FIGMA_CLIENT_SECRET",
			RedirectPath:       CallbackPath,
			Scopes:             []string{"files:read"},
			ToolIDs:            []string{"figma"},
			Normalize:          normalizeFigma,
		},
	}
}
