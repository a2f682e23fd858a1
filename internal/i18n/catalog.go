// Package i18n loads user-facing message templates. Each language lives in
// <dir>/<code>.json as a flat object of key to template; templates use fmt
// verbs for their arguments.
package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yodabot/support-desk/pkg/logger"
)

// Catalog resolves template keys per language.
type Catalog struct {
	defaultLang string
	langs       map[string]map[string]string
	logger      *logger.Logger
}

// Load reads every *.json file in dir. The default language must be present.
func Load(dir, defaultLang string, log *logger.Logger) (*Catalog, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list templates in %s: %w", dir, err)
	}

	langs := make(map[string]map[string]string, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		code := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		langs[code] = messages
	}

	if _, ok := langs[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q not found in %s", defaultLang, dir)
	}
	return New(defaultLang, langs, log), nil
}

// New builds a catalog from in-memory templates.
func New(defaultLang string, langs map[string]map[string]string, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Global()
	}
	return &Catalog{defaultLang: defaultLang, langs: langs, logger: log}
}

// Default returns the fallback language code.
func (c *Catalog) Default() string {
	return c.defaultLang
}

// Has reports whether lang is loaded.
func (c *Catalog) Has(lang string) bool {
	_, ok := c.langs[lang]
	return ok
}

// Languages returns the loaded language codes.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.langs))
	for code := range c.langs {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Get returns the template for key in lang, falling back to the default
// language. Unknown keys render as "[key]".
func (c *Catalog) Get(lang, key string) string {
	if msg, ok := c.langs[lang][key]; ok {
		return msg
	}
	if msg, ok := c.langs[c.defaultLang][key]; ok {
		return msg
	}
	c.logger.Warn("missing template", zap.String("lang", lang), zap.String("key", key))
	return "[" + key + "]"
}

// Format renders the template for key with args.
func (c *Catalog) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(c.Get(lang, key), args...)
}
