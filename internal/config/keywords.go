package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keywords are the term lists matched (lowercase substring) by the
// verification pipeline.
type Keywords struct {
	Imported []string `yaml:"imported"`
	Crypto   []string `yaml:"crypto"`
	Added    []string `yaml:"added"`
	Removed  []string `yaml:"removed"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Imported: []string{
			"imported", "import from", "migrated", "history imported",
			"messages imported", "message history", "history was",
		},
		Crypto: []string{
			"investment", "ico", "staking", "apy", "usdt", "tron", "bnb",
			"coin", "token", "presale", "airdrop", "btc", "crypto",
			"exchange", "binance", "bybit",
		},
		Added:   []string{"added", "joined the group", "invited", "has joined"},
		Removed: []string{"left", "kicked", "removed", "banned", "deleted"},
	}
}

// LoadKeywords reads a YAML keyword file. Categories missing from the file
// keep their defaults. An empty path returns the defaults.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("read keywords file: %w", err)
	}

	var file Keywords
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Keywords{}, fmt.Errorf("parse keywords file %s: %w", path, err)
	}

	if len(file.Imported) > 0 {
		kw.Imported = normalize(file.Imported)
	}
	if len(file.Crypto) > 0 {
		kw.Crypto = normalize(file.Crypto)
	}
	if len(file.Added) > 0 {
		kw.Added = normalize(file.Added)
	}
	if len(file.Removed) > 0 {
		kw.Removed = normalize(file.Removed)
	}
	return kw, nil
}

func normalize(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
