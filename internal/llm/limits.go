package llm

import (
	_ "embed"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed models.toml
var modelLimitsTOML []byte

// ModelLimits holds the admission ceilings for one model.
type ModelLimits struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
	TokensPerMinute   int `toml:"tokens_per_minute"`
	TokensPerDay      int `toml:"tokens_per_day"`
}

type modelLimitsFile struct {
	Models map[string]ModelLimits `toml:"models"`
}

// LimitsForModel returns the admission ceilings for a model ID,
// matching by longest table-key prefix and falling back to the
// default entry.
func LimitsForModel(model string) (ModelLimits, error) {
	var file modelLimitsFile
	if err := toml.Unmarshal(modelLimitsTOML, &file); err != nil {
		return ModelLimits{}, fmt.Errorf("failed to parse embedded model limits: %w", err)
	}

	var best string
	for key := range file.Models {
		if key == "default" {
			continue
		}
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return file.Models[best], nil
	}

	def, ok := file.Models["default"]
	if !ok {
		return ModelLimits{}, fmt.Errorf("model limits table has no default entry")
	}
	return def, nil
}
