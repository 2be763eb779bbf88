package provider

import (
	"errors"
	"reflect"
	"testing"
)

func testContracts() []Contract {
	return []Contract{
		{
			ProviderID:         "acme",
			AuthorizeURL:       "https://acme.test/authorize",
			TokenURL:           "https://acme.test/token",
			ClientIDEnvKey:     "ACME_CLIENT_ID",
			ClientSecretEnvKey: "ACME_CLIENT_SECRET",
			ToolIDs:            []string{"tracker", "wiki"},
		},
		{
			ProviderID:         "solo",
			AuthorizeURL:       "https://solo.test/authorize",
			TokenURL:           "https://solo.test/token",
			ClientIDEnvKey:     "SOLO_CLIENT_ID",
			ClientSecretEnvKey: "SOLO_CLIENT_SECRET",
			ToolIDs:            []string{"chat"},
		},
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func([]Contract) []Contract
	}{
		{"empty provider id", func(cs []Contract) []Contract {
			cs[0].ProviderID = ""
			return cs
		}},
		{"duplicate provider", func(cs []Contract) []Contract {
			cs[1].ProviderID = cs[0].ProviderID
			cs[1].ToolIDs = []string{"other"}
			return cs
		}},
		{"no tools", func(cs []Contract) []Contract {
			cs[0].ToolIDs = nil
			return cs
		}},
		{"shared tool id", func(cs []Contract) []Contract {
			cs[1].ToolIDs = []string{"tracker"}
			return cs
		}},
		{"missing token url", func(cs []Contract) []Contract {
			cs[0].TokenURL = ""
			return cs
		}},
		{"missing env keys", func(cs []Contract) []Contract {
			cs[0].ClientSecretEnvKey = ""
			return cs
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(nil, tc.mutate(testContracts())); err == nil {
				t.Fatalf("expected construction to fail")
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r, err := NewRegistry(nil, testContracts())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	c, err := r.Resolve("tracker")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.ProviderID != "acme" {
		t.Fatalf("provider = %q, want acme", c.ProviderID)
	}

	// Tool ids are normalized before lookup.
	if _, err := r.Resolve("  Tracker "); err != nil {
		t.Fatalf("normalized Resolve: %v", err)
	}

	_, err = r.Resolve("nope")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_Availability(t *testing.T) {
	env := map[string]string{
		"ACME_CLIENT_ID":     "id",
		"ACME_CLIENT_SECRET": "secret",
		// solo has an id but no secret: not configured.
		"SOLO_CLIENT_ID": "id",
	}
	r, err := NewRegistry(env, testContracts())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if !r.Available("tracker") || !r.Available("wiki") {
		t.Fatalf("acme tools should be available")
	}
	if r.Available("chat") {
		t.Fatalf("chat should not be available without a secret")
	}
	if r.Available("nope") {
		t.Fatalf("unknown tool should not be available")
	}

	if got, want := r.ListAvailable(), []string{"tracker", "wiki"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ListAvailable = %v, want %v", got, want)
	}
	if got, want := r.Tools(), []string{"chat", "tracker", "wiki"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Tools = %v, want %v", got, want)
	}
}

func TestRegistry_RequiredEnvKeys(t *testing.T) {
	r, err := NewRegistry(nil, testContracts())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	keys, err := r.RequiredEnvKeys("acme")
	if err != nil {
		t.Fatalf("RequiredEnvKeys: %v", err)
	}
	if want := []string{"ACME_CLIENT_ID", "ACME_CLIENT_SECRET"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}

	if _, err := r.RequiredEnvKeys("ghost"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestBuiltin_TableIsValid(t *testing.T) {
	r, err := NewRegistry(nil, Builtin())
	if err != nil {
		t.Fatalf("builtin contracts should construct: %v", err)
	}

	// The compiled-in table maps each tool to exactly one provider.
	for tool, provider := range map[string]string{
		"github":     "github",
		"jira":       "atlassian",
		"confluence": "atlassian",
		"gmail":      "google",
		"gcalendar":  "google",
		"slack":      "slack",
		"figma":      "figma",
	} {
		c, err := r.Resolve(tool)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tool, err)
		}
		if c.ProviderID != provider {
			t.Fatalf("tool %q -> %q, want %q", tool, c.ProviderID, provider)
		}
	}
}
