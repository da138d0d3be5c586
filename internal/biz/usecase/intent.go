package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

var (
	buyingKeywords = []string{
		"comprar", "precio", "cuesta", "vale", "camisetas", "modelos", "disponible",
		"stock", "catálogo", "productos", "tallas", "colores", "diseños",
		"ofertas", "promociones", "descuento",
	}

	infoKeywords = []string{
		"horario", "hora", "abrir", "cerrar", "ubicación", "dirección", "dónde",
		"contacto", "teléfono", "email", "envío", "delivery", "nombre", "llaman",
		"tienda", "empresa", "negocio",
	}

	firstTimeKeywords = []string{"primera vez", "nuevo", "conocer", "información", "qué venden"}

	urgencyRe = regexp.MustCompile(`(?i)urgente|rápido|ya|ahora|hoy`)
)

const buyingWeight = 0.3

// ClassifyIntent maps raw text to a coarse intent via keyword matching
func ClassifyIntent(text string) domain.Intent {
	lower := strings.ToLower(text)

	buying := countContained(lower, buyingKeywords)
	info := countContained(lower, infoKeywords)

	intent := domain.Intent{
		Category:    domain.IntentGeneral,
		BuyingScore: math.Min(float64(buying)*buyingWeight, 1),
		IsFirstTime: countContained(lower, firstTimeKeywords) > 0,
		IsUrgent:    urgencyRe.MatchString(lower),
	}

	switch {
	case buying > 0:
		intent.Category = domain.IntentBuying
	case info > 0:
		intent.Category = domain.IntentInfo
	}
	return intent
}

func countContained(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
