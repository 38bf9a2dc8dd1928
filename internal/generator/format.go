package generator

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"doorslight/internal/graph"
)

// Badge is a labelled status pill.
type Badge struct {
	Label string
	Class string
}

var statusClasses = map[graph.Status]string{
	graph.StatusAllPass:   "pass",
	graph.StatusAnyFail:   "fail",
	graph.StatusHasNotRun: "warn",
	graph.StatusPartial:   "warn",
	graph.StatusNoTests:   "mute",
	graph.StatusMixed:     "info",
}

// StatusBadge styles a rollup label. Unknown labels render as info.
func StatusBadge(s graph.Status) Badge {
	class, ok := statusClasses[s]
	if !ok {
		class = "info"
	}
	return Badge{Label: string(s), Class: class}
}

// ResultBadge styles a single recorded test result.
func ResultBadge(result string) Badge {
	label := strings.TrimSpace(result)
	c, ok := graph.ParseCategory(result)
	if !ok {
		return Badge{Label: label, Class: "info"}
	}
	if label == "" {
		label = c.String()
	}
	switch c {
	case graph.CategoryPass:
		return Badge{Label: label, Class: "pass"}
	case graph.CategoryFail:
		return Badge{Label: label, Class: "fail"}
	default:
		return Badge{Label: label, Class: "warn"}
	}
}

// Truncate shortens s to n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func RequirementURL(id string) string {
	return "requirements/" + strings.ReplaceAll(id, "/", "_") + ".html"
}

func ModuleEditURL(module string) string {
	return "edit/edit-" + module + ".html"
}

func LevelURL(level string) string {
	return "levels/" + strings.ToLower(level) + ".html"
}

// lessRequirement orders by module, type code, then counter. All-digit
// counters compare numerically and sort before non-numeric ones.
func lessRequirement(a, b graph.Requirement) bool {
	if a.Module != b.Module {
		return a.Module < b.Module
	}
	if a.TypeCode != b.TypeCode {
		return a.TypeCode < b.TypeCode
	}
	return lessCounter(a.Counter, b.Counter)
}

func lessCounter(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	aNum := errA == nil && isDigits(a)
	bNum := errB == nil && isDigits(b)
	switch {
	case aNum && bNum:
		if na != nb {
			return na < nb
		}
		return a < b
	case aNum:
		return true
	case bNum:
		return false
	default:
		return a < b
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
