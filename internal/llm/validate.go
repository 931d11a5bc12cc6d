package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*(.*?)\\s*```$")
	cssFenceRe    = regexp.MustCompile("(?im)^```[a-z]*\\s*|\\s*```$")
)

var requiredQuestionKeys = []string{"type", "text", "answer"}

var conversationalPrefixes = []string{"sure, here", "here is", "certainly", "okay,"}

// StripCodeFence removes a surrounding ``` or ```json block if present.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if m := fencedBlockRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}

// ValidateQuestionSet checks for {"questions": [...]} where every item has
// type, text and answer, and multiple_choice items also carry options.
func ValidateQuestionSet(content string) (bool, string) {
	body := StripCodeFence(content)

	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return false, describeJSONError(body, err)
	}

	obj, ok := data.(map[string]any)
	if !ok {
		return false, "Response is not a JSON object."
	}
	raw, ok := obj["questions"]
	if !ok {
		return false, "JSON missing 'questions' key."
	}
	items, ok := raw.([]any)
	if !ok {
		return false, fmt.Sprintf("'questions' is not a list (got %s).", jsonTypeName(raw))
	}

	for i, item := range items {
		q, ok := item.(map[string]any)
		if !ok {
			return false, fmt.Sprintf("Item at index %d in 'questions' list is not a JSON object (got %s).", i, jsonTypeName(item))
		}
		for _, key := range requiredQuestionKeys {
			if _, present := q[key]; !present {
				return false, fmt.Sprintf("Question at index %d missing required keys %v. Found: [%s]",
					i, requiredQuestionKeys, strings.Join(sortedKeys(q), ", "))
			}
		}
		if q["type"] == "multiple_choice" {
			if _, present := q["options"]; !present {
				return false, fmt.Sprintf("Multiple choice question at index %d missing 'options'. Found: [%s]",
					i, strings.Join(sortedKeys(q), ", "))
			}
		}
	}

	return true, "Valid structure."
}

// ValidateScore checks for {"score": n} with n in [0.0, 1.0].
func ValidateScore(content string) (bool, string) {
	body := StripCodeFence(content)

	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return false, fmt.Sprintf("Invalid JSON: %v. Response snippet: %s", err, truncate(body, 100))
	}

	obj, ok := data.(map[string]any)
	if !ok {
		return false, "Response is not a JSON object."
	}
	raw, ok := obj["score"]
	if !ok {
		return false, "JSON missing 'score' key."
	}
	score, ok := raw.(float64)
	if !ok {
		return false, fmt.Sprintf("'score' is not a number (got %s).", jsonTypeName(raw))
	}
	if score < 0 || score > 1 {
		return false, fmt.Sprintf("'score' (%g) is outside the valid range [0.0, 1.0].", score)
	}
	return true, "Valid score format."
}

// ValidateCSS rejects empty or chatty responses and text without any CSS
// structure. A markdown fence is tolerated with a warning since it gets
// cleaned afterwards.
func ValidateCSS(content string) (bool, string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return false, "CSS response is empty."
	}

	ok := true
	var details []string

	lower := strings.ToLower(content)
	if lo.SomeBy(conversationalPrefixes, func(p string) bool { return strings.HasPrefix(lower, p) }) {
		ok = false
		details = append(details, "Contains introductory text.")
	}

	hasFence := strings.Contains(content, "```")
	hasStructure := strings.Contains(content, "{") && strings.Contains(content, "}") && strings.Contains(content, ":")
	if !hasStructure && !hasFence {
		ok = false
		details = append(details, "Lacks basic CSS structure ({, }, :).")
	}
	if hasFence {
		details = append(details, "Warning: Contains markdown backticks (will be cleaned).")
	}

	if len(details) == 0 {
		return ok, "Passed basic validation."
	}
	return ok, strings.Join(details, " ")
}

// CleanCSS strips markdown fences and any leading lines that do not look
// like CSS.
func CleanCSS(css string) string {
	cleaned := strings.TrimSpace(cssFenceRe.ReplaceAllString(css, ""))

	lines := strings.Split(cleaned, "\n")
	first := slices.IndexFunc(lines, func(line string) bool {
		trimmed := strings.TrimSpace(line)
		return strings.ContainsAny(trimmed[:min(len(trimmed), 1)], "/{.#@*") || strings.Contains(line, ":")
	})
	if first < 0 {
		first = 0
	}
	return strings.Join(lines[first:], "\n")
}

func describeJSONError(body string, err error) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset := int(syntaxErr.Offset)
		start := max(0, offset-20)
		end := min(len(body), offset+20)
		return fmt.Sprintf("Invalid JSON: %v at offset %d. Context: '...%s...'", err, offset, body[start:end])
	}
	return fmt.Sprintf("Invalid JSON: %v", err)
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
