package i18n_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yodabot/support-desk/internal/i18n"
)

func TestLoadAndFallback(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("en.json", `{"welcomeMessage":"Welcome","ticketCreatedMessage":"Ticket %s created"}`)
	write("am.json", `{"welcomeMessage":"እንኳን ደህና መጡ"}`)

	c, err := i18n.Load(dir, "en", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := c.Get("am", i18n.Welcome); got != "እንኳን ደህና መጡ" {
		t.Fatalf("expected amharic welcome, got %q", got)
	}
	if got := c.Format("am", i18n.TicketCreated, "TCK-000001"); got != "Ticket TCK-000001 created" {
		t.Fatalf("expected fallback to english, got %q", got)
	}
	if got := c.Get("fr", i18n.Welcome); got != "Welcome" {
		t.Fatalf("expected default for unknown language, got %q", got)
	}
	if got := c.Get("en", "nope"); got != "[nope]" {
		t.Fatalf("expected [nope], got %q", got)
	}
	if langs := c.Languages(); len(langs) != 2 || langs[0] != "am" {
		t.Fatalf("unexpected languages %v", langs)
	}
}

func TestLoadRequiresDefaultLanguage(t *testing.T) {
	if _, err := i18n.Load(t.TempDir(), "en", nil); err == nil {
		t.Fatalf("expected error when default language is missing")
	}
}

func TestShippedTemplatesLoad(t *testing.T) {
	c, err := i18n.Load(filepath.Join("..", "..", "languages"), "en", nil)
	if err != nil {
		t.Fatalf("load shipped templates: %v", err)
	}
	for _, key := range []string{i18n.Welcome, i18n.TicketCreated, i18n.ConfirmClose, i18n.StatsMessage} {
		if got := c.Get("en", key); got == "["+key+"]" {
			t.Fatalf("shipped en.json is missing %s", key)
		}
	}
}
