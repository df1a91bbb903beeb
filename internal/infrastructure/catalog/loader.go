// Package catalog loads badge definitions from YAML and seeds them into a
// badge.Catalog.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

//go:embed default.yaml
var defaultCatalog []byte

// File represents the YAML structure of a badge catalog.
type File struct {
	Badges []BadgeFile `yaml:"badges"`
}

// BadgeFile represents one badge entry.
type BadgeFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Criterion   struct {
		Kind    string `yaml:"kind"`
		TopicID string `yaml:"topic_id"`
	} `yaml:"criterion"`
	Threshold int `yaml:"threshold"`
}

func (b BadgeFile) toDefinition() badge.Definition {
	return badge.Definition{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Criterion:   badge.Criterion{Kind: badge.Kind(b.Criterion.Kind), TopicID: b.Criterion.TopicID},
		Threshold:   b.Threshold,
	}
}

// Parse decodes a YAML catalog. Definitions are returned as written;
// Seed validates them.
func Parse(data []byte) ([]badge.Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}
	defs := make([]badge.Definition, 0, len(f.Badges))
	for _, b := range f.Badges {
		defs = append(defs, b.toDefinition())
	}
	return defs, nil
}

// LoadFile reads and parses a YAML catalog from disk.
func LoadFile(path string) ([]badge.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() []badge.Definition {
	defs, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return defs
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) ([]badge.Definition, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// SeedResult reports what Seed did.
type SeedResult struct {
	Upserted int
	Rejected []error
}

// Seed upserts every valid definition. Invalid ones are logged at error
// level and reported in Rejected; they never stop the others.
func Seed(ctx context.Context, cat badge.Catalog, defs []badge.Definition, log *logger.Logger) (SeedResult, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("catalog"))

	var res SeedResult
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			log.Error("rejected badge definition", logger.BadgeID(d.ID), logger.Err(err))
			res.Rejected = append(res.Rejected, err)
			continue
		}
		if seen[d.ID] {
			err := shared.NewDomainError("catalog", "Seed", shared.ErrConfiguration, "duplicate badge id").
				With("badge_id", d.ID)
			log.Error("rejected badge definition", logger.BadgeID(d.ID), logger.Err(err))
			res.Rejected = append(res.Rejected, err)
			continue
		}
		seen[d.ID] = true

		if err := cat.Upsert(ctx, d); err != nil {
			return res, fmt.Errorf("upsert badge %s: %w", d.ID, err)
		}
		res.Upserted++
	}

	log.Info("badge catalog seeded",
		logger.Int("upserted", res.Upserted),
		logger.Int("rejected", len(res.Rejected)),
	)
	return res, nil
}
