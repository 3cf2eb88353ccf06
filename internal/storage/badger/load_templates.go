package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
)

// TemplateFile is the on-disk TOML form of a seeded template.
type TemplateFile struct {
	Name        string                  `toml:"name"`
	Description string                  `toml:"description"`
	Kind        string                  `toml:"kind"`
	Category    string                  `toml:"category"`
	Body        string                  `toml:"body"`
	Metadata    models.TemplateMetadata `toml:"metadata"`
}

// ToTemplate converts the file form into the stored model. Seeded templates
// get a stable ID derived from the name so reloading updates in place.
func (f *TemplateFile) ToTemplate() (*models.Template, error) {
	kind, err := models.ParseTemplateKind(f.Kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(f.Body) == "" {
		return nil, fmt.Errorf("template body is required")
	}

	return &models.Template{
		ID:          seedTemplateID(f.Name),
		Name:        f.Name,
		Description: f.Description,
		Kind:        kind,
		Category:    strings.ToLower(strings.TrimSpace(f.Category)),
		Body:        f.Body,
		Metadata:    f.Metadata,
		BuiltIn:     true,
	}, nil
}

// seedTemplateID derives a stable slug ID from a template name.
func seedTemplateID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return "tpl_" + strings.Trim(slug, "-")
}

// LoadTemplatesFromFiles loads scan templates from TOML files in the
// specified directory. Existing built-in templates are refreshed; templates
// created through the API are never overwritten.
func LoadTemplatesFromFiles(ctx context.Context, storage interfaces.TemplateStorage, seedDir string, logger arbor.ILogger) (int, error) {
	if _, err := os.Stat(seedDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", seedDir).Msg("Template seed directory does not exist, skipping")
		return 0, nil
	}

	logger.Info().Str("dir", seedDir).Msg("Loading scan templates from files")

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read template seed directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}

		filePath := filepath.Join(seedDir, entry.Name())

		tomlBytes, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read template file")
			continue
		}

		var file TemplateFile
		if err := toml.Unmarshal(tomlBytes, &file); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse template TOML")
			continue
		}

		template, err := file.ToTemplate()
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Invalid template definition")
			continue
		}

		existing, err := storage.GetTemplate(ctx, template.ID)
		if err == nil && existing != nil && !existing.BuiltIn {
			logger.Warn().Str("template_id", template.ID).Str("file", entry.Name()).Msg("Template ID collides with a user template, skipping seed")
			continue
		}
		if existing != nil {
			template.CreatedAt = existing.CreatedAt
		}

		if err := storage.SaveTemplate(ctx, template); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("template_id", template.ID).Msg("Failed to save template")
			continue
		}

		logger.Info().Str("file", entry.Name()).Str("template_id", template.ID).Str("kind", string(template.Kind)).Msg("Template loaded from file")
		loadedCount++
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Scan templates loaded from files")
	} else {
		logger.Debug().Msg("No scan templates loaded from files")
	}

	return loadedCount, nil
}
