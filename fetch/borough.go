package fetch

import "strings"

// boroughAliases maps upstream spelling variants to the canonical borough
// name. The portal mixes em-dashes, en-dashes and dropped articles across
// datasets and vintages.
//
// Dash variants are folded to plain hyphens before lookup, which already
// lands most names on their canonical form; the table covers the rest.
var boroughAliases = map[string]string{
	"Plateau-Mont-Royal": "Le Plateau-Mont-Royal",
	"Plateau Mont-Royal": "Le Plateau-Mont-Royal",
	"Sud-Ouest":          "Le Sud-Ouest",
	"Montreal-Nord":      "Montréal-Nord",
	"Saint-Leonard":      "Saint-Léonard",
}

// NormalizeBorough returns the canonical form of a borough name.
func NormalizeBorough(name string) string {
	if name == "" {
		return ""
	}
	cleaned := strings.TrimSpace(name)
	cleaned = strings.ReplaceAll(cleaned, "—", "-") // em dash
	cleaned = strings.ReplaceAll(cleaned, "–", "-") // en dash
	if canonical, ok := boroughAliases[cleaned]; ok {
		return canonical
	}
	return cleaned
}
