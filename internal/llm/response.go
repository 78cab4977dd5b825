package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// ErrMalformedResponse marks a model response that could not be decoded
// into the requested schema even after repair. Callers distinguish it from
// transport failures with errors.Is; it is never retried.
var ErrMalformedResponse = errors.New("malformed model response")

// DecodeResponse parses a raw model response into target. Models sometimes
// wrap JSON in markdown fences or prose, or emit slightly malformed JSON
// (trailing commas, unterminated objects); the response is extracted and
// repaired before giving up.
func DecodeResponse(raw string, target interface{}) error {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return fmt.Errorf("%w: no JSON found in response", ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(jsonStr), target); err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
	if repairErr != nil {
		return fmt.Errorf("%w: repair failed: %v", ErrMalformedResponse, repairErr)
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("%w: not parseable after repair: %v", ErrMalformedResponse, err)
	}

	log.Debug().
		Int("original_bytes", len(jsonStr)).
		Int("repaired_bytes", len(repaired)).
		Msg("LLM response required JSON repair")
	return nil
}

// extractJSON pulls JSON content out of a mixed text/JSON response.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// Fenced code block, with or without a language tag.
	if strings.Contains(raw, "```") {
		var jsonLines []string
		inBlock := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if inBlock {
					break
				}
				inBlock = true
				continue
			}
			if inBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		if candidate := strings.TrimSpace(strings.Join(jsonLines, "\n")); candidate != "" {
			return candidate
		}
	}

	// Fall back to the outermost braces.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}
