package category

import (
	"sort"
	"strings"

	"github.com/jmerrifield20/civicsync/internal/model"
)

// GenericIcon is shown for categories no keyword matches.
const GenericIcon = "📍"

type iconRule struct {
	keyword string
	icon    string
}

// iconRules maps keywords found in a category's name or icon identifier to a
// display icon. Spanish and English keywords are both listed because the
// backend serves Spanish names while older clients send English icon names.
var iconRules = []iconRule{
	{"bache", "🚧"},
	{"vía", "🚧"},
	{"pothole", "🚧"},
	{"road", "🚧"},
	{"alumbrado", "💡"},
	{"luz", "💡"},
	{"light", "💡"},
	{"lamp", "💡"},
	{"basura", "🗑️"},
	{"residuo", "🗑️"},
	{"trash", "🗑️"},
	{"garbage", "🗑️"},
	{"alcantarillado", "🕳️"},
	{"sewer", "🕳️"},
	{"agua", "💧"},
	{"water", "💧"},
	{"fuga", "💧"},
	{"seguridad", "🚨"},
	{"security", "🚨"},
	{"safety", "🚨"},
	{"árbol", "🌳"},
	{"arbol", "🌳"},
	{"tree", "🌳"},
	{"parque", "🌳"},
	{"park", "🌳"},
	{"semáforo", "🚦"},
	{"semaforo", "🚦"},
	{"traffic", "🚦"},
	{"tránsito", "🚦"},
	{"ruido", "🔊"},
	{"noise", "🔊"},
	{"grafiti", "🎨"},
	{"graffiti", "🎨"},
	{"animal", "🐕"},
}

// sortedIconRules is iconRules ordered by keyword length, longest first.
// The stable sort keeps declared order among keywords of equal length.
var sortedIconRules = func() []iconRule {
	out := append([]iconRule(nil), iconRules...)
	sort.SliceStable(out, func(i, j int) bool {
		return len([]rune(out[i].keyword)) > len([]rune(out[j].keyword))
	})
	return out
}()

// IconFor returns the display icon for the given text. The longest keyword
// contained in text wins.
func IconFor(text string) string {
	lower := strings.ToLower(text)
	for _, r := range sortedIconRules {
		if strings.Contains(lower, r.keyword) {
			return r.icon
		}
	}
	return GenericIcon
}

// enrich sets the display icon of every category in place.
func enrich(cats []model.Category) {
	for i := range cats {
		cats[i].Icon = IconFor(cats[i].Name + " " + cats[i].Icon)
	}
}
