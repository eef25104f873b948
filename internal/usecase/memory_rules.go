// File: internal/usecase/memory_rules.go
package usecase

import (
	"regexp"
	"strings"

	"chat-task-bridge/internal/domain/model"
)

const (
	explicitConfidence = 0.95
	maxMemoryContent   = 280
)

type memoryRule struct {
	re       *regexp.Regexp
	category model.MemoryCategory
	render   func(capture string) string
}

// remember unwraps "remember (that) X" and re-runs the specific rules on X.
var rememberRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:remember|note|keep in mind)(?:\s+that)?[,:]?\s+(.+)$`)

var memoryRules = []memoryRule{
	{regexp.MustCompile(`(?i)^(?:correction|actually)[,:]\s*(.+)$`), model.MemoryCorrection,
		func(c string) string { return "Correction: " + c }},
	{regexp.MustCompile(`(?i)^i(?:'m| am) (?:the |a )?((?:co-?)?founder|ceo|cto|owner|head) of (.+)$`), model.MemoryFact, nil},
	{regexp.MustCompile(`(?i)^i (?:work|am working) (?:at|for) (.+)$`), model.MemoryFact,
		func(c string) string { return "User works at " + c }},
	{regexp.MustCompile(`(?i)^my name is (.+)$`), model.MemoryFact,
		func(c string) string { return "User's name is " + c }},
	{regexp.MustCompile(`(?i)^i (?:live|am based) in (.+)$`), model.MemoryFact,
		func(c string) string { return "User lives in " + c }},
	{regexp.MustCompile(`(?i)^my (?:timezone|time zone) is (.+)$`), model.MemoryPreference,
		func(c string) string { return "User's timezone is " + c }},
	{regexp.MustCompile(`(?i)^call me (.+)$`), model.MemoryPreference,
		func(c string) string { return "User wants to be called " + c }},
	{regexp.MustCompile(`(?i)^i(?: would| really)? prefer (.+)$`), model.MemoryPreference,
		func(c string) string { return "User prefers " + c }},
	{regexp.MustCompile(`(?i)^(?:please\s+)?(?:always|never) (?:reply|respond|answer|use|write|send|include)\b.*$`), model.MemoryPreference, nil},
	{regexp.MustCompile(`(?i)^we (?:decided|agreed)(?: to| that)? (.+)$`), model.MemoryDecision,
		func(c string) string { return "Decided: " + c }},
}

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?;\n]+\s*`)
	connectiveRe    = regexp.MustCompile(`(?i)\s*,?\s+(?:and also|and|also|plus|but)\s+`)
)

// ExtractExplicitMemories pulls first-person statements such as "remember that
// ...", "I prefer ..." or "my timezone is ..." out of user text. Compound
// sentences are split on connectives that introduce another statement.
func ExtractExplicitMemories(text string) []model.MemoryCandidate {
	var out []model.MemoryCandidate
	seen := make(map[string]bool)
	for _, sentence := range sentenceSplitRe.Split(text, -1) {
		for _, clause := range splitClauses(strings.TrimSpace(sentence)) {
			cand, ok := matchClause(clause, false)
			if !ok {
				continue
			}
			key := normalizePhrase(cand.Content)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, cand)
		}
	}
	return out
}

func splitClauses(sentence string) []string {
	if sentence == "" {
		return nil
	}
	var clauses []string
	start := 0
	for _, loc := range connectiveRe.FindAllStringIndex(sentence, -1) {
		if loc[0] < start {
			continue
		}
		if startsStatement(sentence[loc[1]:]) {
			clauses = append(clauses, sentence[start:loc[0]])
			start = loc[1]
		}
	}
	return append(clauses, sentence[start:])
}

func startsStatement(s string) bool {
	s = strings.TrimSpace(s)
	if rememberRe.MatchString(s) {
		return true
	}
	for _, r := range memoryRules {
		if r.re.MatchString(s) {
			return true
		}
	}
	return false
}

func matchClause(clause string, inRemember bool) (model.MemoryCandidate, bool) {
	clause = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(clause), ".,!?;:"))
	if clause == "" {
		return model.MemoryCandidate{}, false
	}
	if !inRemember {
		if m := rememberRe.FindStringSubmatch(clause); m != nil {
			if cand, ok := matchClause(m[1], true); ok {
				return cand, true
			}
			return explicitCandidate(model.MemoryFact, m[1]), true
		}
	}
	for _, r := range memoryRules {
		m := r.re.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		var content string
		switch {
		case r.render != nil:
			content = r.render(strings.TrimSpace(m[len(m)-1]))
		case len(m) == 3:
			content = "User is the " + strings.ToLower(m[1]) + " of " + strings.TrimSpace(m[2])
		default:
			content = clause
		}
		return explicitCandidate(r.category, content), true
	}
	return model.MemoryCandidate{}, false
}

func explicitCandidate(cat model.MemoryCategory, content string) model.MemoryCandidate {
	content = strings.TrimSpace(content)
	if r := []rune(content); len(r) > maxMemoryContent {
		content = string(r[:maxMemoryContent])
	}
	return model.MemoryCandidate{Category: cat, Content: content, Confidence: explicitConfidence}
}

// topicLexicon maps a narrow topic to the phrases that signal it.
var topicLexicon = map[string][]string{
	"timezone": {"timezone", "time zone", "utc", "gmt"},
	"language": {"language", "reply in", "respond in", "speak"},
	"name":     {"name is", "called", "call me"},
	"email":    {"email", "e mail"},
	"location": {"lives in", "live in", "based in", "located in"},
	"employer": {"works at", "work at", "works for", "work for"},
	"role":     {"founder of", "ceo of", "cto of", "owner of", "head of"},
	"tone":     {"tone", "formal", "casual"},
	"length":   {"concise", "brief", "short", "detailed", "verbose", "long"},
	"format":   {"bullet", "markdown", "table", "format"},
}

var prefTokenRe = regexp.MustCompile(`\b(?:prefers?|likes?|wants?)\s+(?:to\s+|be\s+|a\s+|an\s+|the\s+|my\s+|being\s+)*([a-z0-9]+)`)

// topicSignals returns the narrow topics a memory talks about; two records of
// the same category that share one are about the same thing.
func topicSignals(content string) map[string]bool {
	norm := " " + normalizePhrase(content) + " "
	out := make(map[string]bool)
	for topic, phrases := range topicLexicon {
		for _, p := range phrases {
			if strings.Contains(norm, " "+p+" ") {
				out[topic] = true
				break
			}
		}
	}
	if m := prefTokenRe.FindStringSubmatch(norm); m != nil {
		out["pref:"+m[1]] = true
	}
	return out
}

func sharesTopic(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// isDuplicateMemory reports equal or substring-overlapping normalized content.
func isDuplicateMemory(a, b string) bool {
	na, nb := normalizePhrase(a), normalizePhrase(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}
