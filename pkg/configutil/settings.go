// Package configutil decodes the free-form vendor settings blocks from the
// config file into typed provider settings.
package configutil

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings maps a vendor's settings block onto a typed struct. Keys
// match fields ignoring case, underscores and hyphens, so "api_key",
// "apiKey" and "API-Key" all land on APIKey.
func DecodeSettings(settings map[string]any, target any) error {
	if len(settings) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		MatchName: func(key, field string) bool {
			return foldKey(key) == foldKey(field)
		},
	})
	if err != nil {
		return fmt.Errorf("settings decoder: %w", err)
	}
	if err := dec.Decode(settings); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

// RequireString rejects an empty value for a mandatory field, naming its
// config path in the error.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", path)
	}
	return nil
}

func foldKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
