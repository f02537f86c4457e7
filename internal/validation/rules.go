package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/pkg/imageref"
)

const (
	titleMin       = 10
	titleShort     = 20
	titleMax       = 100
	descriptionMin = 20
	descShort      = 50
	descriptionMax = 1000
	maxPhotos      = 5
	phoneMinDigits = 7
	phoneMaxDigits = 15
)

func errorf(code string, penalty int, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: KindError, Code: code, Message: fmt.Sprintf(format, args...), Penalty: penalty}
}

func warning(code string, penalty int, msg string) Diagnostic {
	return Diagnostic{Kind: KindWarning, Code: code, Message: msg, Penalty: penalty}
}

func suggestion(code string, penalty int, msg string) Diagnostic {
	return Diagnostic{Kind: KindSuggestion, Code: code, Message: msg, Penalty: penalty}
}

// ── Basic fields ──────────────────────────────────────────────────────────────

func ruleBasicFields(in input) []Diagnostic {
	d := in.draft
	var out []Diagnostic

	title := strings.TrimSpace(d.Title)
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		out = append(out, errorf("title_required", 20, "title is required"))
	case n < titleMin:
		out = append(out, errorf("title_too_short", 15, "title must be at least %d characters", titleMin))
	case n > titleMax:
		out = append(out, errorf("title_too_long", 10, "title must be at most %d characters", titleMax))
	case n < titleShort:
		out = append(out, warning("title_short", 5, "title is short; a more descriptive title helps crews triage"))
	}
	if title != "" {
		if !hasLetter(title) {
			out = append(out, errorf("title_no_letters", 15, "title must contain letters"))
		}
		out = append(out, styleChecks("title", title)...)
	}

	desc := strings.TrimSpace(d.Description)
	switch n := utf8.RuneCountInString(desc); {
	case n == 0:
		out = append(out, errorf("description_required", 25, "description is required"))
	case n < descriptionMin:
		out = append(out, errorf("description_too_short", 15, "description must be at least %d characters", descriptionMin))
	case n > descriptionMax:
		out = append(out, errorf("description_too_long", 10, "description must be at most %d characters", descriptionMax))
	case n < descShort:
		out = append(out, warning("description_short", 5, "description is short; add details such as size, duration or risk"))
	}
	if desc != "" {
		out = append(out, styleChecks("description", desc)...)
	}

	if d.CategoryID == 0 {
		out = append(out, errorf("category_required", 20, "category is required"))
	}
	if d.Priority != "" && !d.Priority.Valid() {
		out = append(out, errorf("priority_invalid", 10, "priority must be one of low, medium, high or critical"))
	}
	return out
}

// styleChecks flags shouting and keyboard mashing.
func styleChecks(field, s string) []Diagnostic {
	var out []Diagnostic
	if allCaps(s) {
		out = append(out, warning(field+"_all_caps", 15, field+" is written in capital letters only"))
	}
	if lowVariety(s) {
		out = append(out, warning(field+"_low_variety", 10, field+" repeats too few distinct letters to be meaningful"))
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// allCaps reports whether s has at least five cased letters and none of them
// is lowercase.
func allCaps(s string) bool {
	upper := 0
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return upper >= 5
}

// lowVariety reports whether s has at least ten letters drawn from fewer
// than four distinct ones.
func lowVariety(s string) bool {
	distinct := make(map[rune]bool)
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			distinct[unicode.ToLower(r)] = true
		}
	}
	return letters >= 10 && len(distinct) < 4
}

// ── Category ──────────────────────────────────────────────────────────────────

func ruleCategory(in input) []Diagnostic {
	d := in.draft
	if d.CategoryID == 0 {
		return nil
	}
	cat := in.category
	if cat == nil || cat.ID != d.CategoryID {
		return []Diagnostic{errorf("category_not_found", 20, "selected category does not exist")}
	}
	if !cat.Active {
		return []Diagnostic{errorf("category_inactive", 20, "selected category is no longer available")}
	}

	var out []Diagnostic
	for _, f := range cat.CustomFields {
		if !f.Required || strings.TrimSpace(d.CustomFields[f.Key]) != "" {
			continue
		}
		label := f.Label
		if label == "" {
			label = f.Key
		}
		out = append(out, errorf("custom_field_required", 10, "%s is required for this category", label))
	}
	if cat.RequiresLocation && d.Location == nil {
		out = append(out, errorf("location_required", 15, "this category requires a location"))
	}
	if cat.RequiresPhoto && len(d.AllPhotos()) == 0 {
		out = append(out, errorf("photo_required", 15, "this category requires at least one photo"))
	}

	priority := cat.Priority
	if d.Priority.Valid() {
		priority = d.Priority
	}
	switch priority {
	case model.PriorityCritical:
		out = append(out, warning("priority_critical", 0,
			"critical issue: if anyone is in immediate danger, call the emergency line first"))
	case model.PriorityHigh:
		out = append(out, warning("priority_high", 0,
			"high-priority issue: reports in this category are reviewed first"))
	case model.PriorityMedium:
		if cat.ExpectedResponseTime != nil {
			out = append(out, warning("priority_medium", 0,
				fmt.Sprintf("expected response time: %dh", *cat.ExpectedResponseTime)))
		}
	}
	return out
}

// ── Content ───────────────────────────────────────────────────────────────────

var defaultDenylist = []string{
	"idiota", "estúpido", "estupido", "imbécil", "imbecil", "mierda", "malparido",
	"idiot", "stupid", "moron", "crap",
}

var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(algo|cosa|cosas|something|stuff|things?)\b`),
	regexp.MustCompile(`(?i)\b(not sure|no estoy seguro|whatever|etc)\b`),
	regexp.MustCompile(`(?i)^\s*(help|ayuda|problem|problema)\s*[.!]*\s*$`),
}

type contentRules struct {
	denylist map[string]bool
}

func normalizeTerms(terms []string) map[string]bool {
	out := make(map[string]bool, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out[t] = true
		}
	}
	return out
}

func (c contentRules) check(in input) []Diagnostic {
	title := strings.TrimSpace(in.draft.Title)
	desc := strings.TrimSpace(in.draft.Description)
	words := tokenize(title + " " + desc)

	var out []Diagnostic
	for _, w := range words {
		if c.denylist[w] {
			out = append(out, warning("inappropriate_language", 10, "text contains inappropriate language"))
			break
		}
	}

	counts := make(map[string]int)
	for _, w := range words {
		if utf8.RuneCountInString(w) >= 3 {
			counts[w]++
		}
	}
	for _, w := range words {
		if counts[w] > 3 {
			out = append(out, warning("word_repetition", 5, "text repeats the same words many times"))
			break
		}
	}

	for _, p := range vaguePatterns {
		if p.MatchString(title) || p.MatchString(desc) {
			out = append(out, suggestion("vague_wording", 5, "describe the problem more specifically"))
			break
		}
	}
	return out
}

// tokenize lowercases s and splits it into letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ── Location ──────────────────────────────────────────────────────────────────

func ruleLocation(in input) []Diagnostic {
	loc := in.draft.Location
	if loc == nil {
		return []Diagnostic{suggestion("location_missing", 5, "add a location so crews can find the problem")}
	}

	var out []Diagnostic
	if !finite(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		out = append(out, errorf("latitude_range", 20, "latitude must be between -90 and 90"))
	}
	if !finite(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		out = append(out, errorf("longitude_range", 20, "longitude must be between -180 and 180"))
	}
	if len(out) == 0 && loc.Latitude == 0 && loc.Longitude == 0 {
		out = append(out, warning("location_null_island", 10, "coordinates appear to be 0,0"))
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ── Photos ────────────────────────────────────────────────────────────────────

func rulePhotos(in input) []Diagnostic {
	photos := in.draft.AllPhotos()
	if len(photos) == 0 {
		return []Diagnostic{suggestion("photo_missing", 5, "add a photo to help crews assess the problem")}
	}

	var out []Diagnostic
	if len(photos) > maxPhotos {
		out = append(out, errorf("too_many_photos", 15, "no more than %d photos are allowed", maxPhotos))
	}
	for i, p := range photos {
		if !imageref.Valid(p) {
			out = append(out, errorf("photo_invalid", 10, "photo %d is not a valid image reference", i+1))
		}
	}
	if len(photos) == 1 {
		out = append(out, suggestion("photo_single", 0, "add photos from more angles"))
	}
	return out
}

// ── Contact ───────────────────────────────────────────────────────────────────

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ruleContact(in input) []Diagnostic {
	d := in.draft
	var phone, email string
	if d.Contact != nil {
		phone = strings.TrimSpace(d.Contact.Phone)
		email = strings.TrimSpace(d.Contact.Email)
	}
	phoneBad := phone != "" && !validPhone(phone)
	emailBad := email != "" && !emailPattern.MatchString(email)

	if d.Anonymous() {
		out := []Diagnostic{warning("anonymous", 0, "anonymous reports cannot receive follow-up updates")}
		if phoneBad || emailBad {
			out = append(out, warning("contact_ignored", 0, "contact details look invalid and will be ignored"))
		}
		return out
	}

	if phone == "" && email == "" {
		return []Diagnostic{suggestion("contact_missing", 0, "add a phone number or email for follow-up")}
	}
	var out []Diagnostic
	if phoneBad {
		out = append(out, errorf("phone_invalid", 10, "phone number must have between %d and %d digits", phoneMinDigits, phoneMaxDigits))
	}
	if emailBad {
		out = append(out, errorf("email_invalid", 10, "email address is not valid"))
	}
	return out
}

func validPhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" +-().", r):
		default:
			return false
		}
	}
	return digits >= phoneMinDigits && digits <= phoneMaxDigits
}
