// Package triage classifies inbound chat messages with keyword matching.
//
// Every function in this package is pure: it maps message text to an Outcome
// without touching session state, the hospital directory or the network.
package triage

import (
	"strings"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

// Phrase lists are matched as lowercase substrings. Pidgin triggers are
// evaluated before English ones, so a message naming both selects Pidgin.
var (
	pidginTriggers = []string{
		"pidgin",
		"abeg talk pidgin",
		"talk pidgin",
		"pidgin mode",
		"use pidgin",
	}

	englishTriggers = []string{
		"english mode",
		"switch to english",
		"talk english",
		"english",
	}

	emergencyKeywords = []string{
		// chest and breathing
		"chest pain",
		"chest dey pain",
		"pain for my chest",
		"difficulty breathing",
		"hard to breathe",
		"can't breathe",
		"cannot breathe",
		"no fit breathe",
		"shortness of breath",
		"choking",
		// neurological
		"seizure",
		"convulsion",
		"having a fit",
		"having fits",
		"dey fitting",
		"is fitting",
		"started fitting",
		"stroke",
		"face drooping",
		"slurred speech",
		"one side weak",
		"unconscious",
		"passed out",
		"not waking up",
		"no dey wake",
		"collapsed",
		// bleeding
		"heavy bleeding",
		"bleeding heavily",
		"bleeding wey no stop",
		"bleeding in pregnancy",
		"pregnant and bleeding",
		"pregnancy bleeding",
		"vomiting blood",
		"vomit blood",
		"coughing blood",
		// injuries
		"severe burn",
		"serious burn",
		"poison",
		"snake bite",
		"snakebite",
		"suicide",
		"kill myself",
		// children
		"baby not breathing",
		"child not breathing",
		"baby no dey breathe",
		"pikin no fit breathe",
		"child can't breathe",
		"baby breathing fast",
	}
)

// containsAny reports whether any of the phrases occurs in text.
// text must already be lowercased.
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// DetectLanguageSwitch returns the language the user asked to switch to, if any.
func DetectLanguageSwitch(text string) (models.Language, bool) {
	lower := strings.ToLower(text)
	if containsAny(lower, pidginTriggers) {
		return models.LanguagePidgin, true
	}
	if containsAny(lower, englishTriggers) {
		return models.LanguageEnglish, true
	}
	return "", false
}

// IsEmergency reports whether text mentions any emergency keyword.
// False negatives are expected: this is keyword matching, not understanding.
func IsEmergency(text string) bool {
	return containsAny(strings.ToLower(text), emergencyKeywords)
}
