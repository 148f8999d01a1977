package triage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

// Kind tags the variant held by an Outcome.
type Kind string

const (
	KindLanguageSwitch Kind = "language_switch"
	KindEmergency      Kind = "emergency"
	KindMenuShortcut   Kind = "menu_shortcut"
	KindHospitalQuery  Kind = "hospital_query"
	KindFreeform       Kind = "freeform"
)

// MenuOptionCount is the number of numbered menu shortcuts.
const MenuOptionCount = 6

// Outcome is the classification of one message. Only the fields belonging to
// Kind are set: Language for KindLanguageSwitch, Option for KindMenuShortcut,
// State and Area for KindHospitalQuery.
type Outcome struct {
	Kind     Kind
	Language models.Language
	Option   int
	State    string
	Area     string
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindLanguageSwitch:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Language)
	case KindMenuShortcut:
		return fmt.Sprintf("%s(%d)", o.Kind, o.Option)
	case KindHospitalQuery:
		return fmt.Sprintf("%s(%s, %s)", o.Kind, o.State, o.Area)
	default:
		return string(o.Kind)
	}
}

// Freeform is the outcome for text no classifier claimed.
func Freeform() Outcome {
	return Outcome{Kind: KindFreeform}
}

// Classifier inspects text and claims it by returning true.
type Classifier func(text string) (Outcome, bool)

// DefaultClassifiers is the priority order used by Classify. Language switching
// pre-empts everything, emergencies pre-empt menu and hospital parsing, and menu
// shortcuts pre-empt the hospital pattern.
var DefaultClassifiers = []Classifier{
	ClassifyLanguageSwitch,
	ClassifyEmergency,
	ClassifyMenuShortcut,
	ClassifyHospitalQuery,
}

// Classify runs DefaultClassifiers in order and returns the first match,
// or Freeform when none match.
func Classify(text string) Outcome {
	return ClassifyWith(text, DefaultClassifiers)
}

// ClassifyWith runs the given classifiers in order, stopping at the first match.
func ClassifyWith(text string, classifiers []Classifier) Outcome {
	for _, c := range classifiers {
		if out, ok := c(text); ok {
			return out
		}
	}
	return Freeform()
}

// ClassifyLanguageSwitch claims messages containing a language trigger phrase.
func ClassifyLanguageSwitch(text string) (Outcome, bool) {
	lang, ok := DetectLanguageSwitch(text)
	if !ok {
		return Outcome{}, false
	}
	return Outcome{Kind: KindLanguageSwitch, Language: lang}, true
}

// ClassifyEmergency claims messages containing an emergency keyword.
func ClassifyEmergency(text string) (Outcome, bool) {
	if !IsEmergency(text) {
		return Outcome{}, false
	}
	return Outcome{Kind: KindEmergency}, true
}

// ClassifyMenuShortcut claims messages that are exactly one of the digits 1..6
// once surrounding whitespace is removed.
func ClassifyMenuShortcut(text string) (Outcome, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) != 1 {
		return Outcome{}, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > MenuOptionCount {
		return Outcome{}, false
	}
	return Outcome{Kind: KindMenuShortcut, Option: n}, true
}

// ClassifyHospitalQuery claims messages of the form "state, area": exactly one
// comma with non-empty text on both sides. State and Area are returned trimmed
// and lowercased.
func ClassifyHospitalQuery(text string) (Outcome, bool) {
	state, area, ok := ParseLocation(text)
	if !ok {
		return Outcome{}, false
	}
	return Outcome{Kind: KindHospitalQuery, State: state, Area: area}, true
}

// ParseLocation splits "state, area" into its lowercased, trimmed parts.
func ParseLocation(text string) (state, area string, ok bool) {
	if strings.Count(text, ",") != 1 {
		return "", "", false
	}
	before, after, _ := strings.Cut(text, ",")
	state = strings.ToLower(strings.TrimSpace(before))
	area = strings.ToLower(strings.TrimSpace(after))
	if state == "" || area == "" {
		return "", "", false
	}
	return state, area, true
}
