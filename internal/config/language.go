// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// SupportedLanguages lists the reply languages offered to users. The
// service receives the English display name ("Hindi", "Tamil", ...).
var SupportedLanguages = []language.Tag{
	language.English,
	language.Hindi,
	language.Tamil,
	language.Telugu,
	language.Kannada,
	language.Malayalam,
	language.Marathi,
	language.Bengali,
	language.Gujarati,
	language.Punjabi,
	language.Urdu,
	language.Spanish,
	language.French,
	language.German,
	language.Portuguese,
	language.Arabic,
}

var languageMatcher = language.NewMatcher(SupportedLanguages)

// LanguageName returns the English display name of a tag.
func LanguageName(tag language.Tag) string {
	return display.English.Tags().Name(tag)
}

// NormalizeLanguage accepts a language name ("hindi", "Tamil") or a BCP 47
// tag ("hi", "ta-IN") and returns the display name the service expects.
func NormalizeLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("language must not be empty")
	}

	for _, tag := range SupportedLanguages {
		if strings.EqualFold(LanguageName(tag), s) {
			return LanguageName(tag), nil
		}
	}

	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unsupported language %q", s)
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return "", fmt.Errorf("unsupported language %q", s)
	}
	return LanguageName(SupportedLanguages[idx]), nil
}

// LanguageNames returns the display names of all supported languages.
func LanguageNames() []string {
	names := make([]string, len(SupportedLanguages))
	for i, tag := range SupportedLanguages {
		names[i] = LanguageName(tag)
	}
	return names
}
