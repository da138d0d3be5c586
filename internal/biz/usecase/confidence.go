package usecase

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

// Confidence weights and caps. Additive terms accumulate into the score;
// caps are collected and the result is min(score, caps...).
const (
	confBaseline = 0.5

	confPerKeyword      = 0.12
	confKeywordBonusMax = 0.45
	confNoEvidenceCap   = 0.65

	confFinancialNoEvidenceCap = 0.2
	confFinancialResponseCap   = 0.7

	confBuyingBonus    = 0.08
	confBuyingMinScore = 0.5

	confFillerPenalty      = 0.35
	confFillerWindow       = 3
	confUncertaintyPenalty = 0.13
	confGoodIndicatorBonus = 0.03

	confConciseMin    = 50
	confConciseMax    = 300
	confConciseBonus  = 0.06
	confTooShort      = 20
	confTooLong       = 500
	confLengthPenalty = 0.18

	confUnansweredPenalty     = 0.18
	confCriticalNoEvidenceCap = 0.45

	// Exclusive ceiling for answers with no keyword and no token overlap.
	confLowOverlap    = 0.05
	confLowOverlapCap = 0.39

	confTimeBoost       = 0.45
	confSentenceBoost   = 0.35
	confMinSentenceLen  = 15
	confStockBoost      = 0.25
	confStockMinHits    = 2
	confPhoneBoost      = 0.25
	confStrongKeywords  = 3
	confStrongOverlap   = 0.18
	confUnprovenCeiling = 0.92

	minKeywordRunes = 3
)

var (
	stopwords = map[string]bool{
		"el": true, "la": true, "los": true, "las": true, "un": true, "una": true,
		"y": true, "o": true, "en": true, "de": true, "del": true, "con": true,
		"por": true, "para": true, "que": true, "se": true, "su": true, "sus": true,
		"al": true, "es": true, "a": true,
	}

	financialKeywords = []string{
		"crédito", "credito", "financiamiento", "financiar", "cuotas", "pago a plazos",
		"pagar después", "fiar", "fiado", "tarjeta de crédito", "préstamo", "prestamo",
		"abono", "abonar", "plan de pago", "plan de financiamiento",
	}
	financialResponseRe = regexp.MustCompile(`cuotas|financiamiento|pago a plazos|pagar después|fiar|fiado|tarjeta de crédito|préstamo|prestamo|abono|abonar|plan de pago|plan de financiamiento`)

	buyingEvidence = []string{"catálogo", "camisetas", "modelos"}

	fillerOpeners = []string{
		"entiendo", "comprendo", "claro", "por supuesto", "perfecto", "muy bien",
		"excelente", "desde luego", "efectivamente", "correcto", "sin duda",
		"absolutamente", "ciertamente", "naturalmente",
	}

	uncertaintyPhrases = []string{
		"no tengo información", "no estoy seguro", "no puedo confirmar", "no dispongo de",
		"no conozco", "no sé", "habla con un asesor", "contacta con", "necesitas hablar",
		"deriva", "derivar", "no puedo ayudar", "no tengo acceso", "consulta con",
	}

	goodIndicators = []string{
		"enviamos", "entregamos", "costo de envío", "métodos de pago", "aceptamos",
		"estamos en", "tel:", "email:",
	}

	specificQueryKeywords = []string{
		"precio", "costo", "cuánto", "disponibilidad", "stock", "existencia",
		"comprar", "pedido", "orden", "catálogo específico",
	}

	criticalKeywords = []string{
		"precio", "costo", "cuánto", "disponibilidad", "stock", "talla", "tallas",
		"modelo", "modelos", "medida", "existencia",
	}

	stockKeywords = []string{"talla", "tallas", "stock", "disponible", "disponibilidad", "existencia"}

	timeRe        = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	priceRe       = regexp.MustCompile(`\$\s?\d+(?:[.,]\d+)?`)
	strongPriceRe = regexp.MustCompile(`\$\s?\d+`)
	sentenceSepRe = regexp.MustCompile(`[.\n!?]+`)
	phoneRe       = regexp.MustCompile(`\+?\d{2,3}[\s-]?\(?\d{2,3}\)?[\s-]?\d{3,4}`)
	corpusPhoneRe = regexp.MustCompile(`tel|telefono|tel:|\+\d{1,3}`)
)

// Corpus is the known business text used as ground truth for scoring
type Corpus struct {
	keywords  []string
	text      string
	words     map[string]struct{}
	sentences []string
	times     map[string]struct{}
}

// BuildCorpus extracts the scoring corpus from the config.
// Keywords come from content sections and static menu responses; the
// overlap vocabulary also includes menu labels and the store name.
func BuildCorpus(cfg *domain.BotConfig) *Corpus {
	var content []string
	var overlap []string
	if cfg != nil {
		content = collectStrings(cfg.Content, nil)
		for _, op := range cfg.Menu.Options {
			if op.Response != "" {
				content = append(content, op.Response)
			}
			overlap = append(overlap, op.Label)
		}
		overlap = append(overlap, cfg.StoreName)
	}
	return NewCorpus(content, overlap)
}

// NewCorpus builds a corpus from keyword-bearing texts plus extra overlap-only texts
func NewCorpus(content []string, overlapOnly []string) *Corpus {
	contentText := strings.ToLower(strings.Join(content, " "))
	fullText := strings.TrimSpace(contentText + " " + strings.ToLower(strings.Join(overlapOnly, " ")))

	c := &Corpus{
		text:  fullText,
		words: make(map[string]struct{}),
		times: make(map[string]struct{}),
	}

	seen := make(map[string]bool)
	add := func(kw string) {
		if kw != "" && !seen[kw] {
			seen[kw] = true
			c.keywords = append(c.keywords, kw)
		}
	}
	for _, tok := range tokenize(contentText) {
		if stopwords[tok] || utf8.RuneCountInString(tok) < minKeywordRunes {
			continue
		}
		add(tok)
	}
	for _, m := range timeRe.FindAllString(contentText, -1) {
		add(m)
		c.times[m] = struct{}{}
	}
	for _, m := range priceRe.FindAllString(contentText, -1) {
		add(m)
	}

	for _, tok := range tokenize(fullText) {
		c.words[tok] = struct{}{}
	}
	for _, s := range sentenceSepRe.Split(strings.Join(append(content, overlapOnly...), "\n"), -1) {
		s = strings.ToLower(strings.TrimSpace(s))
		if utf8.RuneCountInString(s) > confMinSentenceLen {
			c.sentences = append(c.sentences, s)
		}
	}
	return c
}

// Keywords returns the distinct corpus keywords
func (c *Corpus) Keywords() []string {
	return c.keywords
}

// ScoreConfidence scores how trustworthy a raw AI response is against the
// known corpus and the user's message. The result is deterministic and in [0, 1].
func ScoreConfidence(raw, userMessage string, intent domain.Intent, corpus *Corpus) float64 {
	if corpus == nil {
		corpus = NewCorpus(nil, nil)
	}
	resp := strings.ToLower(raw)
	user := strings.ToLower(userMessage)

	score := confBaseline
	var caps []float64

	matches := 0
	for _, kw := range corpus.keywords {
		if strings.Contains(resp, kw) {
			matches++
		}
	}
	score += math.Min(float64(matches)*confPerKeyword, confKeywordBonusMax)
	if matches == 0 {
		caps = append(caps, confNoEvidenceCap)
	}

	if containsAny(user, financialKeywords) && matches == 0 {
		caps = append(caps, confFinancialNoEvidenceCap)
	} else if financialResponseRe.MatchString(resp) {
		caps = append(caps, confFinancialResponseCap)
	}

	if intent.Category == domain.IntentBuying && intent.BuyingScore > confBuyingMinScore && containsAny(resp, buyingEvidence) {
		score += confBuyingBonus
	}

	opening := firstWords(resp, confFillerWindow)
	for _, f := range fillerOpeners {
		if strings.Contains(opening, f) {
			score -= confFillerPenalty
		}
	}
	for _, p := range uncertaintyPhrases {
		if strings.Contains(resp, p) {
			score -= confUncertaintyPenalty
		}
	}
	for _, g := range goodIndicators {
		if strings.Contains(resp, g) {
			score += confGoodIndicatorBonus
		}
	}

	length := utf8.RuneCountInString(raw)
	if length > confConciseMin && length < confConciseMax {
		score += confConciseBonus
	}
	if length > confTooLong || length < confTooShort {
		score -= confLengthPenalty
	}

	if containsAny(user, specificQueryKeywords) && !strings.Contains(resp, "$") && !strings.Contains(resp, "precio") {
		score -= confUnansweredPenalty
	}
	if containsAny(user, criticalKeywords) && matches == 0 {
		caps = append(caps, confCriticalNoEvidenceCap)
	}

	overlap := corpus.overlapRatio(resp)
	if overlap < confLowOverlap && matches == 0 {
		caps = append(caps, confLowOverlapCap)
	}

	if corpus.sharesTime(resp) {
		score += confTimeBoost
	}
	if corpus.containsSentenceOf(resp) {
		score += confSentenceBoost
	}
	respStock := countContained(resp, stockKeywords)
	corpusStock := countContained(corpus.text, stockKeywords)
	if respStock > 0 && corpusStock > 0 && respStock+corpusStock >= confStockMinHits {
		score += confStockBoost
	}
	if (strings.Contains(resp, "tel") || phoneRe.MatchString(resp)) && corpusPhoneRe.MatchString(corpus.text) {
		score += confPhoneBoost
	}

	final := score
	for _, c := range caps {
		final = math.Min(final, c)
	}
	final = math.Max(0, math.Min(1, final))

	strong := matches >= confStrongKeywords ||
		strongPriceRe.MatchString(resp) ||
		timeRe.MatchString(resp) ||
		overlap >= confStrongOverlap
	// Without strong evidence nothing scores above the ceiling, so gaining a
	// keyword can never push a response over the near-certain line and down.
	if !strong && final > confUnprovenCeiling {
		final = confUnprovenCeiling
	}
	return final
}

func (c *Corpus) overlapRatio(resp string) float64 {
	respWords := make(map[string]struct{})
	for _, tok := range tokenize(resp) {
		respWords[tok] = struct{}{}
	}
	if len(respWords) == 0 || len(c.words) == 0 {
		return 0
	}
	common := 0
	for w := range respWords {
		if _, ok := c.words[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(respWords))
}

func (c *Corpus) sharesTime(resp string) bool {
	for _, m := range timeRe.FindAllString(resp, -1) {
		if _, ok := c.times[m]; ok {
			return true
		}
	}
	return false
}

func (c *Corpus) containsSentenceOf(resp string) bool {
	for _, s := range c.sentences {
		if strings.Contains(resp, s) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func firstWords(text string, n int) string {
	words := strings.Split(text, " ")
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func containsAny(text string, list []string) bool {
	for _, s := range list {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// collectStrings walks arbitrary JSON-decoded content and returns its string leaves
func collectStrings(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			out = collectStrings(t[k], out)
		}
	case []any:
		for _, item := range t {
			out = collectStrings(item, out)
		}
	}
	return out
}
