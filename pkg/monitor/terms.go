package monitor

import (
	"fmt"
	"strings"
)

// researchVerbs mark the words whose immediate successors in the task
// description become expected search terms.
var researchVerbs = []string{"research", "find", "search", "investigate", "analyze", "study"}

var redirectStrip = map[string]struct{}{
	"research":     {},
	"find":         {},
	"search":       {},
	"investigate":  {},
	"analyze":      {},
	"study":        {},
	"latest":       {},
	"developments": {},
}

var redirectStopwords = map[string]struct{}{
	"the":   {},
	"and":   {},
	"in":    {},
	"of":    {},
	"to":    {},
	"for":   {},
	"with":  {},
	"about": {},
}

// expectedTermsFromTask extracts the terms searches and page URLs are
// matched against: up to three words following each research verb, or
// the first five words of the task when no verb appears.
func expectedTermsFromTask(task string) []string {
	taskLower := strings.ToLower(task)
	words := strings.Fields(task)

	var terms []string
	hasVerb := false
	for _, verb := range researchVerbs {
		if strings.Contains(taskLower, verb) {
			hasVerb = true
			break
		}
	}
	if hasVerb {
		for i, word := range words {
			if !isResearchVerb(strings.ToLower(word)) || i+1 >= len(words) {
				continue
			}
			end := i + 4
			if end > len(words) {
				end = len(words)
			}
			terms = append(terms, words[i+1:end]...)
		}
	}

	if len(terms) == 0 {
		end := len(words)
		if end > 5 {
			end = 5
		}
		terms = append(terms, words[:end]...)
	}
	return terms
}

func isResearchVerb(word string) bool {
	for _, verb := range researchVerbs {
		if word == verb {
			return true
		}
	}
	return false
}

// redirectTermsFromTask reduces the task description to the content
// words a redirected search should use.
func redirectTermsFromTask(task string) string {
	if task == "" {
		return "artificial intelligence machine learning"
	}

	var meaningful []string
	for _, word := range strings.Fields(task) {
		lower := strings.ToLower(word)
		if _, stripped := redirectStrip[lower]; stripped {
			continue
		}
		if len(word) <= 2 {
			continue
		}
		if _, stop := redirectStopwords[lower]; stop {
			continue
		}
		meaningful = append(meaningful, word)
	}

	if len(meaningful) == 0 {
		return task
	}
	if len(meaningful) > 5 {
		meaningful = meaningful[:5]
	}
	return strings.Join(meaningful, " ")
}

func (m *Monitor) feedbackLocked(a Activity) string {
	switch a.Type {
	case ActivitySearch:
		query := detailString(a.Details, "query")
		if query == "" {
			return "No search query detected. Please perform a search related to the assigned task."
		}
		return fmt.Sprintf("Search query '%s' may not be relevant to the task: '%s'. Please focus on the main task.",
			query, m.originalTask)
	case ActivityError:
		return fmt.Sprintf("Error occurred: %s. Please retry the task or use a different approach.",
			a.Description)
	default:
		return fmt.Sprintf("Activity '%s' may not be progressing the main task. Please focus on: %s",
			a.Description, m.originalTask)
	}
}
