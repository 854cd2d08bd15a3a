// Package catalog supplies the matching profiles. Profiles are loaded once and
// shared read-only by every worker.
package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

type Catalog interface {
	// GetProfiles returns the profiles whose sourceType is entityType.
	GetProfiles(ctx context.Context, entityType string) ([]models.MatchingProfile, error)
	// GetProfilesForCandidate returns the profiles whose candidateType is entityType
	// and whose sourceType is a different type.
	GetProfilesForCandidate(ctx context.Context, entityType string) ([]models.MatchingProfile, error)
}

type file struct {
	Profiles []models.MatchingProfile `yaml:"profiles"`
}

type StaticCatalog struct {
	profiles []models.MatchingProfile
}

func New(profiles []models.MatchingProfile) *StaticCatalog {
	return &StaticCatalog{profiles: append([]models.MatchingProfile(nil), profiles...)}
}

// Load reads a YAML catalog. Structurally invalid profiles are kept and reported so
// the engine can skip them one by one; an unreadable file is an error.
func Load(path string, logger ectologger.Logger) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matching catalog %s: %w", path, err)
	}
	return Parse(data, logger)
}

func Parse(data []byte, logger ectologger.Logger) (*StaticCatalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse matching catalog: %w", err)
	}

	validate := validator.New()
	for _, p := range f.Profiles {
		if err := validate.Struct(p); err != nil {
			logger.WithError(err).WithField("profile", p.Name).Warn("Matching profile is invalid and will be skipped")
		}
	}

	logger.WithField("profiles", len(f.Profiles)).Info("Loaded matching catalog")
	return New(f.Profiles), nil
}

func (c *StaticCatalog) GetProfiles(ctx context.Context, entityType string) ([]models.MatchingProfile, error) {
	profiles := make([]models.MatchingProfile, 0)
	for _, p := range c.profiles {
		if p.SourceType == entityType {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// GetProfilesForCandidate returns the profiles the entity type must also be evaluated
// against in the candidate role. Symmetric same-type profiles are left out because the
// forward pass already finds every pair they can match.
func (c *StaticCatalog) GetProfilesForCandidate(ctx context.Context, entityType string) ([]models.MatchingProfile, error) {
	profiles := make([]models.MatchingProfile, 0)
	for _, p := range c.profiles {
		if p.CandidateType == entityType && !p.Symmetric() {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// Profiles returns every loaded profile.
func (c *StaticCatalog) Profiles() []models.MatchingProfile {
	return append([]models.MatchingProfile(nil), c.profiles...)
}
