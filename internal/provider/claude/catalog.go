package claude

import (
	"strings"
	"time"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/models"
)

const (
	defaultContextLength  = 200000
	defaultParameterCount = int64(200_000_000_000)
)

type catalogEntry struct {
	name          string
	description   string
	parameterSize string
	size          int64
	digest        string
	contextLength int
}

var builtinCatalog = []catalogEntry{
	{"claude-opus-4-20250514", "Our most capable and intelligent model yet", "200B", 200_000_000_000, "anthropic-claude-opus-4", defaultContextLength},
	{"claude-sonnet-4-20250514", "High-performance model with exceptional reasoning", "200B", 200_000_000_000, "anthropic-claude-sonnet-4", defaultContextLength},
	{"claude-3-7-sonnet-20250219", "High-performance model with extended thinking", "128K", 128_000_000_000, "anthropic-claude-3-7-sonnet", defaultContextLength},
	{"claude-3-5-sonnet-20241022", "Our previous intelligent model (v2)", "200B", 200_000_000_000, "anthropic-claude-3-5-sonnet-v2", defaultContextLength},
	{"claude-3-5-sonnet-20240620", "Our previous intelligent model", "200B", 200_000_000_000, "anthropic-claude-3-5-sonnet-v1", defaultContextLength},
	{"claude-3-5-haiku-20241022", "Our fastest model", "100B", 100_000_000_000, "anthropic-claude-3-5-haiku", defaultContextLength},
}

func catalogFromConfig(cfgModels []config.ModelConfig) []catalogEntry {
	if len(cfgModels) == 0 {
		out := make([]catalogEntry, len(builtinCatalog))
		copy(out, builtinCatalog)
		return out
	}

	out := make([]catalogEntry, 0, len(cfgModels))
	for _, m := range cfgModels {
		entry := catalogEntry{
			name:          strings.TrimSpace(m.Name),
			description:   m.Description,
			parameterSize: m.ParameterSize,
			size:          m.Size,
			digest:        "anthropic-" + strings.TrimSpace(m.Name),
			contextLength: m.ContextLength,
		}
		if entry.parameterSize == "" {
			entry.parameterSize = "200B"
		}
		if entry.contextLength == 0 {
			entry.contextLength = defaultContextLength
		}
		out = append(out, entry)
	}
	return out
}

func familyDetails(parameterSize string) models.ModelDetails {
	return models.ModelDetails{
		ParentModel:       "",
		Format:            "gguf",
		Family:            "claude",
		Families:          []string{"claude"},
		ParameterSize:     parameterSize,
		QuantizationLevel: "Q4_K_M",
	}
}

func (e catalogEntry) model(modifiedAt time.Time) models.Model {
	return models.Model{
		Name:       e.name,
		Model:      e.name,
		ModifiedAt: modifiedAt.UTC().Format(time.RFC3339),
		Size:       e.size,
		Digest:     e.digest,
		Details:    familyDetails(e.parameterSize),
	}
}

func (e catalogEntry) document(modifiedAt time.Time) *models.ModelDocument {
	return &models.ModelDocument{
		License: "Anthropic Research License",
		System:  e.description,
		Details: familyDetails(e.parameterSize),
		ModelInfo: map[string]any{
			"general.architecture":    "claude",
			"general.file_type":       15,
			"general.context_length":  e.contextLength,
			"general.parameter_count": defaultParameterCount,
		},
		ModifiedAt: modifiedAt.UTC().Format(time.RFC3339),
	}
}
