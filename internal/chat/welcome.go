package chat

import (
	"fmt"
	"strings"

	"github.com/averlon/instantagent/internal/domain"
)

// imageWelcome is the fixed greeting for image-generation agents.
const imageWelcome = "🎨 Hi there! I'm an image generation assistant. I can create images based on your text descriptions. Just describe what you'd like to see, and I'll make it for you!"

// defaultMarker decorates goals that match no keyword set.
const defaultMarker = "✨"

// markerTable maps goal keywords to a decorative marker. Scanned in
// order, first match wins, so travel outranks the generic planning set.
var markerTable = []struct {
	symbol   string
	keywords []string
}{
	{"✈️", []string{"trip", "travel", "flight", "journey", "vacation", "itinerary"}},
	{"💰", []string{"budget", "finance", "stock", "crypto", "market", "invest", "money"}},
	{"🍳", []string{"cook", "recipe", "food", "meal"}},
	{"💪", []string{"workout", "fitness", "exercise", "health"}},
	{"📚", []string{"math", "algebra", "study", "learn", "teach", "homework"}},
	{"💻", []string{"code", "program", "software", "debug"}},
	{"🎵", []string{"music", "song", "playlist"}},
	{"📋", []string{"plan", "organize", "schedule"}},
}

// SynthesizeWelcome maps an agent's goal text and model type to its
// seeded greeting. Pure and deterministic: identical inputs always
// produce identical output, and no network is involved.
func SynthesizeWelcome(goal string, modelType domain.ModelType) string {
	if modelType == domain.ModelTypeImage {
		return imageWelcome
	}

	goal = strings.TrimSpace(goal)
	if goal == "" {
		return defaultMarker + " Hello! I'm your friendly AI assistant. How can I assist you today?"
	}

	marker := markerFor(goal)
	lower := strings.ToLower(goal)

	switch {
	case hasLeadingVerb(lower, "help", "assist"):
		return fmt.Sprintf("%s Hello! I'm your friendly AI assistant ready to %s. How can I help you today?", marker, goal)
	case hasLeadingVerb(lower, "create", "make", "build"):
		return fmt.Sprintf("%s Hello! I'm your friendly AI assistant ready to help you %s. What would you like to know?", marker, goal)
	case hasLeadingVerb(lower, "answer", "provide"):
		return fmt.Sprintf("%s Hello! I'm your friendly AI assistant ready to %s. What questions do you have?", marker, goal)
	case strings.Contains(lower, "plan"):
		return fmt.Sprintf("%s Hello! I'm your friendly AI assistant for planning %s. How can I assist you today?", marker, planningSubject(goal))
	default:
		return fmt.Sprintf("%s Hello! I'm your friendly AI assistant for %s. I'm here to help you. How can I assist you today?", marker, goal)
	}
}

func markerFor(goal string) string {
	lower := strings.ToLower(goal)
	for _, entry := range markerTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.symbol
			}
		}
	}
	return defaultMarker
}

func hasLeadingVerb(lowerGoal string, verbs ...string) bool {
	for _, v := range verbs {
		if lowerGoal == v || strings.HasPrefix(lowerGoal, v+" ") {
			return true
		}
	}
	return false
}

// planningSubject strips planning vocabulary from the goal so the
// "for planning X" template reads naturally.
func planningSubject(goal string) string {
	fields := strings.Fields(goal)
	kept := fields[:0]
	for _, f := range fields {
		switch strings.ToLower(strings.Trim(f, ".,!?")) {
		case "plan", "planning":
			continue
		}
		kept = append(kept, f)
	}
	subject := strings.TrimSpace(strings.Join(kept, " "))
	if subject == "" {
		return goal
	}
	return subject
}
