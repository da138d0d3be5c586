package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	fillerPrefixRes = compileAll(
		`^¡?hola!?\s+`,
		`^entiendo que\s+`,
		`^entiendo(?:[,.!]\s*|\s+)`,
		`^comprendo que\s+`,
		`^comprendo(?:[,.!]\s*|\s+)`,
		`^claro que\s+`,
		`^claro(?:[,.!]\s*|\s+)`,
		`^por supuesto que\s+`,
		`^por supuesto(?:[,.!]\s*|\s+)`,
		`^desde luego(?:[,.!]\s*|\s+)`,
		`^efectivamente(?:[,.!]\s*|\s+)`,
		`^sin duda(?:[,.!]\s*|\s+)`,
		`^ciertamente(?:[,.!]\s*|\s+)`,
		`^te informo que\s+`,
		`^me complace informarte que\s+`,
		`^permíteme decirte que\s+`,
		`^déjame decirte que\s+`,
		`^con gusto te informo que\s+`,
	)

	connectorRes = compileAll(
		`^en relación a tu consulta(?:[,.!]\s*|\s+)`,
		`^respecto a tu pregunta(?:[,.!]\s*|\s+)`,
		`^para responder a tu consulta(?:[,.!]\s*|\s+)`,
		`^con respecto a lo que preguntas(?:[,.!]\s*|\s+)`,
		`^en cuanto a lo que solicitas(?:[,.!]\s*|\s+)`,
	)

	leadingQueRe   = regexp.MustCompile(`(?i)^que\s+`)
	leadingPunctRe = regexp.MustCompile(`^[,!.]\s*`)
	whitespaceRe   = regexp.MustCompile(`\s+`)

	shortReplyEmoji = []struct {
		keywords []string
		emoji    string
	}{
		{[]string{"horario"}, "🕒"},
		{[]string{"envío", "envio"}, "📦"},
		{[]string{"pago"}, "💳"},
		{[]string{"ubicac", "direcc"}, "📍"},
		{[]string{"camiseta", "producto"}, "👕"},
	}
)

const (
	shortReplyMin = 5
	shortReplyMax = 15

	// cleanerMaxPasses bounds the iterative prefix stripping
	cleanerMaxPasses = 8
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// CleanResponse strips robotic openers and verbose connectors from AI text.
// It returns the original text if cleaning would leave nothing.
func CleanResponse(text string) string {
	original := text
	cleaned := strings.TrimSpace(text)

	for pass := 0; pass < cleanerMaxPasses; pass++ {
		before := cleaned
		for _, re := range fillerPrefixRes {
			cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
		}
		for _, re := range connectorRes {
			cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
		}
		cleaned = strings.TrimSpace(leadingQueRe.ReplaceAllString(cleaned, ""))
		cleaned = strings.TrimSpace(leadingPunctRe.ReplaceAllString(cleaned, ""))
		if cleaned == before {
			break
		}
	}

	cleaned = capitalizeFirst(cleaned)
	cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))

	if n := utf8.RuneCountInString(cleaned); n > shortReplyMin && n < shortReplyMax {
		lower := strings.ToLower(original)
		for _, e := range shortReplyEmoji {
			if containsAny(lower, e.keywords) {
				cleaned = e.emoji + " " + cleaned
				break
			}
		}
	}

	if cleaned == "" {
		return original
	}
	return cleaned
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
