package replies

import (
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

func TestEveryTemplateRendersInBothLanguages(t *testing.T) {
	for id := range templates {
		for _, lang := range []models.Language{models.LanguageEnglish, models.LanguagePidgin} {
			if Render(id, lang) == "" {
				t.Errorf("template %s renders empty for %s", id, lang)
			}
		}
	}
}

func TestLanguageDependentTemplates(t *testing.T) {
	for _, id := range []ID{Welcome, Menu, LanguageSwitched, Emergency, Option6, Failure, NotConnected, HistoryCleared} {
		if Render(id, models.LanguageEnglish) == Render(id, models.LanguagePidgin) {
			t.Errorf("template %s should differ between English and Pidgin", id)
		}
	}
}

func TestFixedOptionsIgnoreLanguage(t *testing.T) {
	for n := 1; n <= 5; n++ {
		id, ok := OptionID(n)
		if !ok {
			t.Fatalf("OptionID(%d) not found", n)
		}
		if Render(id, models.LanguageEnglish) != Render(id, models.LanguagePidgin) {
			t.Errorf("option %d should read the same in both modes", n)
		}
	}
}

func TestOptionIDBounds(t *testing.T) {
	if _, ok := OptionID(0); ok {
		t.Error("OptionID(0) should not exist")
	}
	if _, ok := OptionID(7); ok {
		t.Error("OptionID(7) should not exist")
	}
	if id, _ := OptionID(6); id != Option6 {
		t.Errorf("OptionID(6) = %s", id)
	}
}

func TestRenderUnknown(t *testing.T) {
	if got := Render(ID("nope"), models.LanguageEnglish); got != "" {
		t.Errorf("expected empty render for unknown template, got %q", got)
	}
}

func TestHospitalsCapsResults(t *testing.T) {
	var records []models.HospitalRecord
	for i := 0; i < 7; i++ {
		records = append(records, models.HospitalRecord{
			State: "Lagos", Area: "ikeja", Name: fmt.Sprintf("Hospital %d", i), Address: "addr", Phone: "080",
		})
	}

	out := Hospitals(models.LanguageEnglish, "lagos", "ikeja gra", records, 5)
	if !strings.HasPrefix(out, "🏥 Hospitals in Lagos, Ikeja Gra:") {
		t.Errorf("unexpected header: %q", strings.SplitN(out, "\n", 2)[0])
	}
	if !strings.Contains(out, "Hospital 4") || strings.Contains(out, "Hospital 5") {
		t.Errorf("expected exactly the first five hospitals, got:\n%s", out)
	}
	if !strings.Contains(out, "and 2 more") {
		t.Errorf("expected overflow note, got:\n%s", out)
	}

	pidgin := Hospitals(models.LanguagePidgin, "lagos", "ikeja", records[:1], 5)
	if !strings.HasPrefix(pidgin, "🏥 Hospital wey dey Lagos, Ikeja:") || strings.Contains(pidgin, "more") {
		t.Errorf("unexpected pidgin rendering:\n%s", pidgin)
	}
}

func TestHospitalsOmitsMissingPhone(t *testing.T) {
	records := []models.HospitalRecord{
		{State: "Oyo", Area: "Ibadan", Name: "UCH", Address: "Queen Elizabeth Road"},
		{State: "Oyo", Area: "Ibadan", Name: "Adeoyo", Address: "Ring Road", Phone: "02-2312345"},
	}
	out := Hospitals(models.LanguageEnglish, "oyo", "ibadan", records, 5)
	if strings.Count(out, "📞") != 1 || !strings.Contains(out, "📞 02-2312345") {
		t.Errorf("phone line should appear only when known:\n%s", out)
	}
}
