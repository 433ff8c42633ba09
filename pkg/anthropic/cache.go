package anthropic

import (
	"strings"

	"github.com/rotisserie/eris"
)

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL. The scoring rubric is identical across
// chunks of a run, so later chunks read it from cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}

// ExtractJSON returns the substring between the first '{' and the last '}'.
// Models sometimes wrap JSON in prose or code fences.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", eris.New("anthropic: no JSON object in response")
	}
	return text[start : end+1], nil
}
