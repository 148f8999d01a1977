// Package replies holds the fixed bilingual message templates sent by NaijaCare.
//
// Render is a pure function of (template, language); nothing here reads or
// writes session state.
package replies

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

// ID names a template.
type ID string

const (
	Welcome          ID = "welcome"
	Menu             ID = "menu"
	LanguageSwitched ID = "language_switched"
	Emergency        ID = "emergency"
	Option1          ID = "option_1"
	Option2          ID = "option_2"
	Option3          ID = "option_3"
	Option4          ID = "option_4"
	Option5          ID = "option_5"
	Option6          ID = "option_6"
	Failure          ID = "failure"
	NotConnected     ID = "not_connected"
	HistoryCleared   ID = "history_cleared"
	HospitalsHeader  ID = "hospitals_header"
)

// bilingual holds the English and Pidgin variants of a template. A template
// with an empty Pidgin variant reads the same in both modes.
type bilingual struct {
	english string
	pidgin  string
}

var templates = map[ID]bilingual{
	Welcome: {
		english: "👋 Hello! I am NaijaCare AI, your health guide.\n" +
			"Tell me how you feel, send a number from the menu, or type \"pidgin\" to talk Pidgin.\n\n" +
			"⚠️ I am not a doctor. For emergencies go to the nearest hospital or call 112.",
		pidgin: "👋 How far! Na NaijaCare AI be this, your health padi.\n" +
			"Tell me how your body dey, send number from the menu, or type \"english\" make we talk English.\n\n" +
			"⚠️ I no be doctor. If na emergency, rush go hospital wey near you or call 112.",
	},
	Menu: {
		english: "📋 *Menu* (reply with a number)\n" +
			"1️⃣ Check my symptoms\n" +
			"2️⃣ Malaria prevention tips\n" +
			"3️⃣ Fever first aid\n" +
			"4️⃣ Pregnancy and child health\n" +
			"5️⃣ Find a hospital near me\n" +
			"6️⃣ Language settings",
		pidgin: "📋 *Menu* (reply with number)\n" +
			"1️⃣ Check wetin dey do me\n" +
			"2️⃣ How to prevent malaria\n" +
			"3️⃣ Wetin to do for fever\n" +
			"4️⃣ Belle and pikin health\n" +
			"5️⃣ Find hospital wey near me\n" +
			"6️⃣ Change language",
	},
	LanguageSwitched: {
		english: "✅ Okay! I will reply in English from now on.",
		pidgin:  "✅ No wahala! I go dey reply you for Pidgin from now.",
	},
	Emergency: {
		english: "🚨 *This sounds like an emergency.*\n" +
			"Please go to the nearest hospital NOW or call 112 (national emergency line).\n" +
			"Do not wait for a chat reply. If someone is with you, ask them to help you get there.",
		pidgin: "🚨 *E be like say na emergency.*\n" +
			"Abeg rush go hospital wey near you NOW or call 112.\n" +
			"No wait for chat reply. If person dey with you, make dem help carry you go.",
	},
	Option1: {
		english: "🩺 Tell me your symptoms in one message: what you feel, when it started, and how strong it is.\n" +
			"Example: \"I have had a headache and fever since yesterday\".",
	},
	Option2: {
		english: "🦟 *Malaria prevention*\n" +
			"• Sleep under an insecticide-treated net every night.\n" +
			"• Clear stagnant water around your home.\n" +
			"• Use insect repellent in the evening.\n" +
			"• Get tested early if you have fever, chills or body pain.",
	},
	Option3: {
		english: "🌡️ *Fever first aid*\n" +
			"• Drink plenty of clean water.\n" +
			"• Rest and wear light clothing.\n" +
			"• Use a cool damp cloth on the forehead.\n" +
			"• See a health worker if the fever lasts more than 2 days, or at once for a baby under 3 months.",
	},
	Option4: {
		english: "🤰 *Pregnancy and child health*\n" +
			"• Register for antenatal care early and attend every visit.\n" +
			"• Exclusive breastfeeding for the first 6 months.\n" +
			"• Keep your child's immunisation card up to date.\n" +
			"• Bleeding in pregnancy or a child struggling to breathe is an emergency.",
	},
	Option5: {
		english: "🏥 To find a hospital, send your state and area separated by a comma.\n" +
			"Example: Lagos, Ikeja",
	},
	Option6: {
		english: "🌐 You are chatting in English.\nType \"pidgin\" to switch to Pidgin, or \"english\" to stay in English.",
		pidgin:  "🌐 Na Pidgin we dey use now.\nType \"english\" make we change to English, or \"pidgin\" make we continue like this.",
	},
	Failure: {
		english: "😔 Sorry, I could not answer right now. Please try again in a moment.",
		pidgin:  "😔 Sorry o, I no fit answer now. Abeg try again small time.",
	},
	NotConnected: {
		english: "🔌 My health assistant is not yet connected. You can still use the menu, or type 5 to find a hospital.",
		pidgin:  "🔌 My health assistant never connect yet. You fit still use the menu, or type 5 to find hospital.",
	},
	HistoryCleared: {
		english: "🧹 Our conversation has been cleared. Tell me how you feel.",
		pidgin:  "🧹 I don clear our gist. Tell me how your body dey.",
	},
	HospitalsHeader: {
		english: "🏥 Hospitals in %s, %s:",
		pidgin:  "🏥 Hospital wey dey %s, %s:",
	},
}

var optionIDs = [...]ID{Option1, Option2, Option3, Option4, Option5, Option6}

// OptionID returns the template for menu option n (1-based).
func OptionID(n int) (ID, bool) {
	if n < 1 || n > len(optionIDs) {
		return "", false
	}
	return optionIDs[n-1], true
}

// Render returns the template text in the requested language. Unknown
// templates render as an empty string.
func Render(id ID, lang models.Language) string {
	t, ok := templates[id]
	if !ok {
		return ""
	}
	if lang == models.LanguagePidgin && t.pidgin != "" {
		return t.pidgin
	}
	return t.english
}

// Hospitals renders the first limit matches of a state/area query and notes
// how many were left out.
func Hospitals(lang models.Language, state, area string, records []models.HospitalRecord, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, Render(HospitalsHeader, lang), titleCase(state), titleCase(area))

	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, r := range shown {
		fmt.Fprintf(&b, "\n\n%d. *%s*\n📍 %s", i+1, r.Name, r.Address)
		if r.Phone != "" {
			fmt.Fprintf(&b, "\n📞 %s", r.Phone)
		}
	}
	if len(records) > len(shown) {
		if lang == models.LanguagePidgin {
			fmt.Fprintf(&b, "\n\n…and %d more. Add more details for the area make e short.", len(records)-len(shown))
		} else {
			fmt.Fprintf(&b, "\n\n…and %d more. Add more of the area name to narrow the list.", len(records)-len(shown))
		}
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
