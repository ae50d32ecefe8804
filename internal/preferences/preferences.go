// Package preferences loads and resolves source preferences: the
// operator-maintained mapping from document metadata (category,
// platform, datatype) to answer instructions, preferred external
// domains, and response-shape hints.
//
// The preference tree is loaded once at startup and read-only
// thereafter, so it is safe for unsynchronized concurrent reads. A
// missing preferences file is valid configuration: every resolver
// method tolerates a nil *Preferences and falls back to empty output.
package preferences

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/viper"
)

// DefaultMaxContextSentences bounds background-context sentences in
// synthesized answers when the preferences file does not say otherwise.
const DefaultMaxContextSentences = 2

// Source holds the preference entry for one category subtype or one
// platform: an instruction injected into answer prompts and the
// external domains worth searching for that kind of data.
type Source struct {
	Instruction      string   `mapstructure:"instruction"`
	PreferredSources []string `mapstructure:"preferred_sources"`
}

// Format carries response-shape hints for answer synthesis.
type Format struct {
	DataFocusRatio      int `mapstructure:"data_focus_ratio"`
	ContextRatio        int `mapstructure:"context_ratio"`
	MaxContextSentences int `mapstructure:"max_context_sentences"`
}

// Preferences is the loaded preference tree. ByCategory is keyed
// category -> datatype subtype -> Source; ByPlatform is keyed platform
// -> Source. Default supplies the instruction used when nothing
// matches.
type Preferences struct {
	ByCategory map[string]map[string]Source `mapstructure:"by_category"`
	ByPlatform map[string]Source            `mapstructure:"by_platform"`
	Default    Source                       `mapstructure:"default"`
	Format     Format                       `mapstructure:"response_format"`
}

// fileSchema mirrors the on-disk layout: the tree nests under a
// source_preferences key with response_format as a sibling.
type fileSchema struct {
	SourcePreferences struct {
		ByCategory map[string]map[string]Source `mapstructure:"by_category"`
		ByPlatform map[string]Source            `mapstructure:"by_platform"`
		Default    Source                       `mapstructure:"default"`
	} `mapstructure:"source_preferences"`
	ResponseFormat Format `mapstructure:"response_format"`
}

// Load reads the preferences file at path. A missing file (or an empty
// path) returns (nil, nil): absent preferences are valid and every
// resolver method treats nil as "no preferences". Malformed content is
// an error.
func Load(path string, logger *slog.Logger) (*Preferences, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		logger.Info("no preferences path configured, running without source preferences")
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			logger.Warn("preferences file not found, running without source preferences", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading preferences file %q: %w", path, err)
	}

	var schema fileSchema
	if err := v.Unmarshal(&schema); err != nil {
		return nil, fmt.Errorf("parsing preferences file %q: %w", path, err)
	}

	prefs := &Preferences{
		ByCategory: schema.SourcePreferences.ByCategory,
		ByPlatform: schema.SourcePreferences.ByPlatform,
		Default:    schema.SourcePreferences.Default,
		Format:     schema.ResponseFormat,
	}
	logger.Info("loaded source preferences",
		"path", path,
		"categories", len(prefs.ByCategory),
		"platforms", len(prefs.ByPlatform))
	return prefs, nil
}
