package usecase

import (
	"strings"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

// Messages contains every user-facing text the core produces.
// Templates support {{store_name}}.
type Messages struct {
	Welcome       string
	AssistWelcome string
	HandoffNotice string
	Fallback      string
	InvalidOption string
	ErrorNotice   string

	// Hand-off replies chosen by intent when an AI answer is not sent
	HandoffBuying    string
	HandoffInfo      string
	HandoffFirstTime string
	HandoffDefault   string

	AdminPrompt       string
	AdminPassPrompt   string
	AdminSuccess      string
	AdminInvalid      string
	AdminLogout       string
	AdminMenu         string
	AdminSaveFailed   string
	AdminNoCommands   string
	AdminUnknownCmd   string
	AdminCommandsHead string
	AdminDelUsage     string
	AdminConfigHead   string

	// System prompt pieces; SystemPrompt supports {{store_name}}, {{description}},
	// {{strategy}}, {{content}} and {{instructions}}
	SystemPrompt        string
	StrategyBuying      string
	StrategyInfo        string
	StrategyFirstTime   string
	DefaultInstructions string
	DefaultDescription  string
	HistoryHeader       string
	CurrentMarker       string
	AnswerMarker        string
	NoContent           string
}

// DefaultMessages contains the built-in texts
var DefaultMessages = Messages{
	Welcome: "¡Hola! 👋 Bienvenido a {{store_name}}.\n" +
		"Para empezar:\n" +
		"- Envía 1 para ver el menú de opciones\n" +
		"- Envía 4 para hablar con nuestro asistente",
	AssistWelcome: "🤖 Estás hablando con el asistente virtual de {{store_name}}. Escribe tu consulta y te respondo enseguida.\n" +
		"Envía *menu* para volver al menú o *asesor* para hablar con una persona.",
	HandoffNotice: "👩‍💼 Un asesor de {{store_name}} te atenderá en breve.\n" +
		"Escribe *menu* para volver al menú o *bot* para volver al asistente.",
	Fallback:      "No te entendí. Envía 1 para ver el menú.",
	InvalidOption: "Opción no válida. Envía 1 para ver el menú.",
	ErrorNotice:   "⚠️ Tuvimos un problema procesando tu mensaje. Un asesor humano continuará la conversación.",

	HandoffBuying:    "¡Genial que te interesen nuestras camisetas! 👕✨\nUn asesor te mostrará todos los modelos y precios súper rápido 😊",
	HandoffInfo:      "¡Te ayudo al toque! Un asesor te pasará la info actualizada en breve.",
	HandoffFirstTime: "¡Bienvenido! 👋 Somos expertos en camisetas\nUn asesor te contará todo en un momento 😊",
	HandoffDefault:   "¡Te conectamos con alguien que te ayude al instante! 👩‍💼\nUn asesor continuará la conversación.",

	AdminPrompt:     "🔐 Acceso administrativo. Escribe: user TU_USUARIO",
	AdminPassPrompt: "Usuario recibido. Ahora escribe: pass TU_PASSWORD",
	AdminSuccess:    "✅ Autenticación correcta. Modo admin activo en este chat.",
	AdminInvalid:    "❌ Credenciales inválidas.",
	AdminLogout:     "🔒 Sesión admin cerrada.",
	AdminMenu: strings.Join([]string{
		"🛠️ Panel de administración",
		"",
		"Editar contenidos:",
		"- nombre: Nuevo Nombre de Tienda",
		"- horario: Texto de horarios",
		"- envio: Texto de envíos",
		"- pago: Texto de formas de pago",
		"",
		"Comandos personalizados:",
		"- cmd:add palabra: respuesta  → crea/actualiza",
		"- cmd:del palabra            → elimina",
		"- cmd:list                   → listar",
		"",
		"Otros:",
		"- config?     → ver configuración actual",
		"- cerrarsesion (o logout) → salir del modo admin",
	}, "\n"),
	AdminSaveFailed:   "❌ No se pudo guardar la configuración.",
	AdminNoCommands:   "No hay comandos personalizados definidos.",
	AdminUnknownCmd:   "Ese comando no existe.",
	AdminCommandsHead: "📋 Comandos personalizados:",
	AdminDelUsage:     "Formato inválido. Usa: cmd:del palabra",
	AdminConfigHead:   "⚙️ Config actual:",

	SystemPrompt: `Eres un asistente súper amigable de "{{store_name}}" - {{description}}.
{{strategy}}

INFORMACIÓN BÁSICA:
• Nombre de la tienda: {{store_name}}
• Tipo de negocio: {{description}}

CONTEXTO PERSONALIZADO (desde configuración):
{{content}}

ESTILO DE COMUNICACIÓN:
{{instructions}}

REGLAS CRÍTICAS:
1. 🚫 NUNCA uses "Entiendo", "Comprendo", "Claro", "Por supuesto"
2. ⚡ MÁXIMO 2-3 líneas por respuesta, sé súper conciso
3. 😊 Habla como un amigo cercano, no como robot formal
4. 🎯 Ve directo al punto con calidez humana
5. Si no sabes algo específico o falta contexto, sugiere escribir *asesor*
6. 🎈 Usa 1-2 emojis que aporten, no decoren
7. 🚫 SOLO puedes responder usando la información de este contexto. No inventes respuestas ni respondas temas fuera de la tienda.`,
	StrategyBuying: `
ESTRATEGIA COMERCIAL ACTIVA (Cliente con intención de compra detectada):
• 🎯 Genera expectativa antes de derivar al asesor
• 💫 Menciona brevemente lo atractivo de los productos
• 📞 Deriva con mensaje específico para ventas`,
	StrategyInfo: `
ESTRATEGIA INFORMATIVA (Cliente busca info rápida):
• ⚡ Respuesta directa y concisa
• 📋 Solo la información solicitada`,
	StrategyFirstTime: `
ESTRATEGIA DE BIENVENIDA (Cliente nuevo):
• 🤗 Tono más acogedor y explicativo
• 🏪 Incluye una breve presentación del negocio`,
	DefaultInstructions: "Responde de manera amigable, directa y profesional",
	DefaultDescription:  "tienda de camisetas",
	HistoryHeader:       "HISTORIAL DE CONVERSACIÓN:",
	CurrentMarker:       "NUEVO MENSAJE DEL CLIENTE:",
	AnswerMarker:        "RESPUESTA:",
	NoContent:           "• (Sin contenido personalizado)",
}

// WithDefaults returns m with empty fields filled from DefaultMessages
func (m Messages) WithDefaults() Messages {
	d := DefaultMessages
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&m.Welcome, d.Welcome)
	fill(&m.AssistWelcome, d.AssistWelcome)
	fill(&m.HandoffNotice, d.HandoffNotice)
	fill(&m.Fallback, d.Fallback)
	fill(&m.InvalidOption, d.InvalidOption)
	fill(&m.ErrorNotice, d.ErrorNotice)
	fill(&m.HandoffBuying, d.HandoffBuying)
	fill(&m.HandoffInfo, d.HandoffInfo)
	fill(&m.HandoffFirstTime, d.HandoffFirstTime)
	fill(&m.HandoffDefault, d.HandoffDefault)
	fill(&m.AdminPrompt, d.AdminPrompt)
	fill(&m.AdminPassPrompt, d.AdminPassPrompt)
	fill(&m.AdminSuccess, d.AdminSuccess)
	fill(&m.AdminInvalid, d.AdminInvalid)
	fill(&m.AdminLogout, d.AdminLogout)
	fill(&m.AdminMenu, d.AdminMenu)
	fill(&m.AdminSaveFailed, d.AdminSaveFailed)
	fill(&m.AdminNoCommands, d.AdminNoCommands)
	fill(&m.AdminUnknownCmd, d.AdminUnknownCmd)
	fill(&m.AdminCommandsHead, d.AdminCommandsHead)
	fill(&m.AdminDelUsage, d.AdminDelUsage)
	fill(&m.AdminConfigHead, d.AdminConfigHead)
	fill(&m.SystemPrompt, d.SystemPrompt)
	fill(&m.StrategyBuying, d.StrategyBuying)
	fill(&m.StrategyInfo, d.StrategyInfo)
	fill(&m.StrategyFirstTime, d.StrategyFirstTime)
	fill(&m.DefaultInstructions, d.DefaultInstructions)
	fill(&m.DefaultDescription, d.DefaultDescription)
	fill(&m.HistoryHeader, d.HistoryHeader)
	fill(&m.CurrentMarker, d.CurrentMarker)
	fill(&m.AnswerMarker, d.AnswerMarker)
	fill(&m.NoContent, d.NoContent)
	return m
}

// Format substitutes {{store_name}} in a template
func Format(template string, cfg *domain.BotConfig) string {
	name := "nuestra tienda"
	if cfg != nil && strings.TrimSpace(cfg.StoreName) != "" {
		name = cfg.StoreName
	}
	return strings.ReplaceAll(template, "{{store_name}}", name)
}

// HandoffFor picks the hand-off reply for an intent
func (m Messages) HandoffFor(intent domain.Intent) string {
	switch {
	case intent.Category == domain.IntentBuying && intent.BuyingScore > 0.3:
		return m.HandoffBuying
	case intent.Category == domain.IntentInfo:
		return m.HandoffInfo
	case intent.IsFirstTime:
		return m.HandoffFirstTime
	default:
		return m.HandoffDefault
	}
}

// RenderMenu renders the configured numeric menu
func RenderMenu(cfg *domain.BotConfig) string {
	var sb strings.Builder
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━\n")
	sb.WriteString("🤖 " + Format("{{store_name}}", cfg) + "\n")
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━\n")
	if cfg.Menu.Greeting != "" {
		sb.WriteString(cfg.Menu.Greeting + "\n")
	}
	sb.WriteString("\n")
	if cfg.Menu.Title != "" {
		sb.WriteString(cfg.Menu.Title + "\n")
	}
	for _, op := range cfg.Menu.Options {
		label := op.Label
		switch op.Number {
		case domain.OptionShowMenu:
			label = domain.ShowMenuLabel
		case domain.OptionAssist:
			label = domain.AssistLabel
		}
		if op.Emoji != "" {
			label = op.Emoji + " " + label
		}
		sb.WriteString(op.Number + ") " + label + "\n")
	}
	if cfg.Menu.Footer != "" {
		sb.WriteString("\n" + cfg.Menu.Footer + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
