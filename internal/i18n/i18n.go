package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

// Translator holds the message bundle for every embedded locale.
type Translator struct {
	bundle   *i18n.Bundle
	fallback *i18n.Localizer
	matcher  language.Matcher
	tags     []language.Tag
}

// New loads the translation bundle with lang as the default language.
func New(lang string) (*Translator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	// The default language goes first so the matcher falls back to it.
	tags := []language.Tag{tag}
	for _, t := range bundle.LanguageTags() {
		if t != tag {
			tags = append(tags, t)
		}
	}

	return &Translator{
		bundle:   bundle,
		fallback: i18n.NewLocalizer(bundle, lang),
		matcher:  language.NewMatcher(tags),
		tags:     tags,
	}, nil
}

// Languages returns the supported languages, default first.
func (tr *Translator) Languages() []language.Tag {
	return tr.tags
}

// NewLocalizer creates a localizer preferring the given languages.
func (tr *Translator) NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(tr.bundle, langs...)
}

// Match returns the supported language that best fits the given
// Accept-Language values or language names.
func (tr *Translator) Match(prefs ...string) language.Tag {
	_, i := language.MatchStrings(tr.matcher, prefs...)
	return tr.tags[i]
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func (tr *Translator) localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return tr.fallback
}

// T translates a message by ID.
func (tr *Translator) T(ctx context.Context, msgID string) string {
	return tr.localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func (tr *Translator) Td(ctx context.Context, msgID string, data map[string]any) string {
	return tr.localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
}

// Tp translates a pluralized message by ID.
func (tr *Translator) Tp(ctx context.Context, msgID string, count int) string {
	return tr.localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

func (tr *Translator) localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := tr.localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}
