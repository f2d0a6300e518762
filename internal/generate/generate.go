// Package generate produces task drafts from free-form instructions for the
// bulk generation endpoint.
package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"taskboard/internal/models"
)

// MaxDrafts caps one proposal.
const MaxDrafts = 20

// Request carries the instructions and where the drafts will land.
type Request struct {
	Instructions string
	WorkspaceID  string
	ProjectID    string
}

// Generator turns instructions into draft tasks. Drafts are never persisted
// by a generator.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]models.TaskGenerationItem, error)
}

// Heuristic splits instructions into one draft per line or bullet and infers
// priority and effort from keywords. It needs no model endpoint.
type Heuristic struct{}

var (
	bullet    = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\[[ xX]?\])\s*`)
	separator = regexp.MustCompile(`\s*;\s*|\n`)
)

var priorityWords = []struct {
	priority models.TaskPriority
	words    []string
}{
	{models.PriorityCritical, []string{"urgent", "asap", "critical", "blocker", "outage", "security"}},
	{models.PriorityHigh, []string{"important", "high", "must", "deadline", "bug"}},
	{models.PriorityLow, []string{"later", "nice to have", "someday", "low", "maybe", "cleanup"}},
}

var heavyWords = []string{"refactor", "migrate", "migration", "design", "integrate", "rewrite", "research"}

// Generate implements Generator.
func (Heuristic) Generate(ctx context.Context, req Request) ([]models.TaskGenerationItem, error) {
	text := strings.TrimSpace(req.Instructions)
	if text == "" {
		return nil, fmt.Errorf("generate: %w: instructions are required", models.ErrValidation)
	}

	var out []models.TaskGenerationItem
	for _, part := range separator.Split(text, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(bullet.ReplaceAllString(part, ""))
		if line == "" {
			continue
		}
		title, desc := line, ""
		if i := strings.Index(line, ": "); i > 0 {
			title, desc = strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+2:])
		}
		out = append(out, models.TaskGenerationItem{
			Title:       capitalize(truncate(title, 120)),
			Description: desc,
			Priority:    priorityOf(line),
			Effort:      effortOf(line),
		})
		if len(out) == MaxDrafts {
			break
		}
	}
	return out, nil
}

func priorityOf(line string) models.TaskPriority {
	lower := strings.ToLower(line)
	for _, p := range priorityWords {
		for _, w := range p.words {
			if containsWord(lower, w) {
				return p.priority
			}
		}
	}
	return models.PriorityMedium
}

func effortOf(line string) int {
	n := len(strings.Fields(line))
	effort := 1
	switch {
	case n > 12:
		effort = 3
	case n > 5:
		effort = 2
	}
	lower := strings.ToLower(line)
	for _, w := range heavyWords {
		if containsWord(lower, w) {
			effort += 2
			break
		}
	}
	return effort
}

func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(w)
		if (start == 0 || !isLetter(s[start-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
