package personinfo

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractPersonName(t *testing.T) {
	cases := map[string]string{
		"Уинстон Черчилль (премьер-министр)": "Уинстон Черчилль",
		"Николай II (второй)":                "Николай II",
		"  **Пётр   Первый**  ":              "Пётр Первый",
		"Napoleon":                           "Napoleon",
	}
	for in, want := range cases {
		if got := ExtractPersonName(in); got != want {
			t.Errorf("ExtractPersonName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdditionalInfo(t *testing.T) {
	if got := ExtractAdditionalInfo("Николай II (второй) (император)"); got != "второй, император" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractAdditionalInfo("Napoleon"); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := FullNameForGeneration("Николай  II (второй)"); got != "Николай II (второй)" {
		t.Fatalf("got %q", got)
	}
}

func TestValidatePersonName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{in: "  Napoleon Bonaparte ", want: "Napoleon Bonaparte"},
		{in: "**Пётр 1**", err: ErrNameCharacters},
		{in: "**Пётр Первый**", want: "Пётр Первый"},
		{in: "Жан-Поль Марат (журналист)", want: "Жан-Поль Марат (журналист)"},
		{in: "a", err: ErrNameTooShort},
		{in: "**a**", err: ErrNameTooShort},
		{in: strings.Repeat("я", 201), err: ErrNameTooLong},
		{in: "<script>", err: ErrNameCharacters},
	}
	for _, tt := range tests {
		got, err := ValidatePersonName(tt.in)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("ValidatePersonName(%q) err = %v, want %v", tt.in, err, tt.err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ValidatePersonName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestValidateSearchQuery(t *testing.T) {
	if err := ValidateSearchQuery("Наполеон"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := ValidateSearchQuery("x"); !errors.Is(err, ErrQueryTooShort) {
		t.Fatalf("got %v", err)
	}
	if err := ValidateSearchQuery("drop(table)"); !errors.Is(err, ErrQueryChars) {
		t.Fatalf("got %v", err)
	}
}

func TestIndicatesNotFound(t *testing.T) {
	if !IndicatesNotFound("I could not find... this person is Not Found in records") {
		t.Fatal("expected not found")
	}
	if !IndicatesNotFound("This is not a known historical figure.") {
		t.Fatal("expected not found for historical figure phrase")
	}
	if IndicatesNotFound("Napoleon was a French emperor.") {
		t.Fatal("unexpected not found")
	}
}

const napoleon = `Napoleon Bonaparte was a French military commander and emperor who rose to prominence during the French Revolution. ` +
	`He was born in 1769 in Corsica and died in 1821 on Saint Helena. He led successful campaigns across Europe in the 19th century. ` +
	`His appearance is often depicted in portraits with a bicorne hat. In 1815 he was defeated at Waterloo.`

func TestParse(t *testing.T) {
	info := Parse("Napoleon", napoleon)
	if info.Name != "Napoleon" {
		t.Fatalf("name = %q", info.Name)
	}
	if info.Era != "19th Century" {
		t.Fatalf("era = %q", info.Era)
	}
	if info.Country != "France" {
		t.Fatalf("country = %q", info.Country)
	}
	if info.BirthYear == nil || *info.BirthYear != 1769 || info.DeathYear == nil || *info.DeathYear != 1821 {
		t.Fatalf("years = %v %v", info.BirthYear, info.DeathYear)
	}
	if !strings.HasSuffix(info.Description, ".") || len([]rune(info.Description)) > 500 {
		t.Fatalf("description = %q", info.Description)
	}
	if info.Appearance == "Historical figure" {
		t.Fatal("expected appearance snippet")
	}
	if Category(info) != "Politician" {
		t.Fatalf("category = %q", Category(info))
	}
}

func TestParseAppearanceAfterNonASCIIUppercase(t *testing.T) {
	content := "İZMİR İNÖNÜ İSTANBUL ÇANAKKALE. His Portrait shows a tall man with a dark moustache and a uniform."
	info := Parse("İnönü", content)
	if !strings.HasPrefix(info.Appearance, "Portrait shows a tall man") {
		t.Fatalf("appearance = %q", info.Appearance)
	}
	if !utf8.ValidString(info.Appearance) {
		t.Fatal("appearance is not valid UTF-8")
	}
}

func TestIndexFold(t *testing.T) {
	cases := []struct {
		s, sub string
		want   int
	}{
		{"PORTRAIT", "portrait", 0},
		{"İİ looked like", "looked like", 5},
		{"no match", "portrait", -1},
		{"", "x", -1},
	}
	for _, c := range cases {
		if got := indexFold(c.s, c.sub); got != c.want {
			t.Errorf("indexFold(%q, %q) = %d, want %d", c.s, c.sub, got, c.want)
		}
	}
}

func TestParseYearsNarrowing(t *testing.T) {
	info := Parse("X", "Mentioned in 1066 chronicles. Lived 1412 to 1431.")
	if *info.BirthYear != 1412 || *info.DeathYear != 1431 {
		t.Fatalf("years = %d %d", *info.BirthYear, *info.DeathYear)
	}
	single := Parse("X", "Born in 1452.")
	if single.BirthYear == nil || *single.BirthYear != 1452 || single.DeathYear != nil {
		t.Fatalf("single = %v %v", single.BirthYear, single.DeathYear)
	}
	none := Parse("X", "No dates here.")
	if none.BirthYear != nil || none.Era != UnknownEra {
		t.Fatalf("none = %+v", none)
	}
}

func TestCategory(t *testing.T) {
	cases := map[string]string{
		"a famous painter":         "Artist",
		"theoretical physicist":    "Scientist",
		"a Roman general":          "Military",
		"an ordinary merchant man": "",
	}
	for desc, want := range cases {
		if got := Category(Info{Description: desc}); got != want {
			t.Errorf("Category(%q) = %q, want %q", desc, got, want)
		}
	}
}

func TestParseSuggestions(t *testing.T) {
	content := "Here are some people:\n" +
		"- **Николай II** (второй) - 19th-20th Century, Russia\n" +
		"- Николай I (первый) - 19th Century, Russia\n" +
		"- Пётр I - 18th Century, Russia\n" +
		"• Николай Кондратьев"
	got := ParseSuggestions(content, "николай")
	if len(got) != 3 {
		t.Fatalf("got %d suggestions: %+v", len(got), got)
	}
	if got[0].Name != "Николай II" || got[0].DisplayName != "Николай II (второй)" || got[0].Era != "19th-20th Century" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[2].Name != "Николай Кондратьев" || got[2].Source != SourceInternet {
		t.Fatalf("last = %+v", got[2])
	}
}

func TestMergeSuggestions(t *testing.T) {
	db := []Suggestion{{Name: "Napoleon", Source: SourceDatabase}}
	net := []Suggestion{{Name: "napoleon"}, {Name: "Napoleon III"}, {Name: "Nero"}}
	got := MergeSuggestions(2, db, net)
	if len(got) != 2 || got[0].Source != SourceDatabase || got[1].Name != "Napoleon III" {
		t.Fatalf("got %+v", got)
	}
}

func TestDisplayNameAndPrompts(t *testing.T) {
	if DisplayName("Николай 2", "19th Century") != "Николай 2 (19th Century)" {
		t.Fatal("expected era suffix")
	}
	if DisplayName("Napoleon", "19th Century") != "Napoleon" {
		t.Fatal("unexpected suffix")
	}
	info := Info{Name: "Napoleon", Era: "19th Century", Country: "France"}
	if !strings.Contains(PromptRequest(info, "artistic"), "Country: France") {
		t.Fatal("prompt request missing country")
	}
	if !strings.HasSuffix(WithQualitySuffix(" portrait "), QualitySuffix) {
		t.Fatal("missing suffix")
	}
	if !strings.Contains(FallbackPrompt(info), "Napoleon") {
		t.Fatal("fallback missing name")
	}
}

func TestClientIP(t *testing.T) {
	if got := ClientIP("1.2.3.4, 5.6.7.8", "9.9.9.9"); got != "1.2.3.4" {
		t.Fatalf("got %q", got)
	}
	if got := ClientIP("", "9.9.9.9"); got != "9.9.9.9" {
		t.Fatalf("got %q", got)
	}
	if got := ClientIP("", ""); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}
