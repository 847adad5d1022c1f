package requirements

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Modality is the enrollment track family.
type Modality string

const (
	ModalityPresencial     Modality = "presencial"
	ModalitySemipresencial Modality = "semipresencial"
)

// PlanKey is the canonical study level within a modality: "1".."6" for
// presencial years, "A".."C" for semipresencial plans.
type PlanKey string

var modalityAliases = map[string]Modality{
	"presencial":      ModalityPresencial,
	"in person":       ModalityPresencial,
	"in-person":       ModalityPresencial,
	"on site":         ModalityPresencial,
	"p":               ModalityPresencial,
	"semipresencial":  ModalitySemipresencial,
	"semi presencial": ModalitySemipresencial,
	"semi-presencial": ModalitySemipresencial,
	"blended":         ModalitySemipresencial,
	"hybrid":          ModalitySemipresencial,
	"sp":              ModalitySemipresencial,
}

var ordinalWords = map[string]int{
	"primero": 1, "primer": 1, "primera": 1, "first": 1,
	"segundo": 2, "segunda": 2, "second": 2,
	"tercero": 3, "tercer": 3, "tercera": 3, "third": 3,
	"cuarto": 4, "cuarta": 4, "fourth": 4,
	"quinto": 5, "quinta": 5, "fifth": 5,
	"sexto": 6, "sexta": 6, "sixth": 6,
}

var fillerWords = map[string]bool{
	"plan": true, "ano": true, "anio": true, "year": true, "grado": true,
	"curso": true, "nivel": true, "level": true, "modulo": true, "module": true,
}

var (
	leadingNumber = regexp.MustCompile(`^(\d+)`)
	tokenSplit    = regexp.MustCompile(`[^a-z0-9]+`)
)

// fold lowercases, strips diacritics and ordinal indicators, and trims.
func fold(s string) string {
	s = strings.NewReplacer("º", "", "ª", "", "°", "").Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseModality normalizes display labels and codes to a Modality.
func ParseModality(raw string) (Modality, bool) {
	s := fold(raw)
	if s == "" {
		return "", false
	}
	m, ok := modalityAliases[s]
	return m, ok
}

// ParsePlan normalizes a plan or year label for the given modality.
// "2", "2nd year", "2do año" and "Segundo" all yield "2" for presencial;
// "Plan B", "b" and "2" yield "B" for semipresencial.
func ParsePlan(m Modality, raw string) (PlanKey, bool) {
	s := fold(raw)
	if s == "" {
		return "", false
	}

	n := 0
	letter := ""
	if match := leadingNumber.FindStringSubmatch(s); match != nil {
		n, _ = strconv.Atoi(match[1])
	} else {
		for _, tok := range tokenSplit.Split(s, -1) {
			if tok == "" || fillerWords[tok] {
				continue
			}
			if v, ok := ordinalWords[tok]; ok {
				n = v
				break
			}
			if match := leadingNumber.FindStringSubmatch(tok); match != nil {
				n, _ = strconv.Atoi(match[1])
				break
			}
			if len(tok) == 1 && tok >= "a" && tok <= "z" {
				letter = tok
				break
			}
		}
	}

	switch m {
	case ModalityPresencial:
		if n >= 1 && n <= 6 {
			return PlanKey(strconv.Itoa(n)), true
		}
	case ModalitySemipresencial:
		if letter == "" && n >= 1 && n <= 3 {
			letter = string(rune('a' + n - 1))
		}
		if letter >= "a" && letter <= "c" {
			return PlanKey(strings.ToUpper(letter)), true
		}
	}
	return "", false
}

// normalizeModule trims and uppercases a module code; "" means no module.
func normalizeModule(raw string) string {
	return strings.ToUpper(fold(raw))
}
