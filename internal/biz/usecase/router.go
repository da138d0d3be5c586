package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

// Reserved end-user keywords, compared after domain.FoldCommand
const (
	KeywordMenu  = "menu"
	KeywordHuman = "asesor"
	KeywordBot   = "bot"
)

var resumeKeywords = map[string]bool{
	KeywordBot:        true,
	"salir asesor":    true,
	"cancelar asesor": true,
	"reanudar":        true,
}

var (
	adminUserRe    = regexp.MustCompile(`(?i)^user\s+(.+)`)
	adminPassRe    = regexp.MustCompile(`(?i)^pass\s+(.+)`)
	adminNameRe    = regexp.MustCompile(`(?i)^nombre\s*:`)
	adminHoursRe   = regexp.MustCompile(`(?i)^horario\s*:`)
	adminShipRe    = regexp.MustCompile(`(?i)^envio\s*:`)
	adminPayRe     = regexp.MustCompile(`(?i)^pago\s*:`)
	adminConfigRe  = regexp.MustCompile(`(?i)^config\s*\?`)
	adminLogoutRe  = regexp.MustCompile(`(?i)^(logout|cerrarsesion)$`)
	adminCmdAddRe  = regexp.MustCompile(`(?i)^cmd:add\s+([^:]+):(.*)$`)
	adminCmdDelRe  = regexp.MustCompile(`(?i)^cmd:del(?:\s+(.*))?$`)
	adminCmdListRe = regexp.MustCompile(`(?i)^cmd:list$`)
	singleDigitRe  = regexp.MustCompile(`^[0-9]$`)
)

// Content sections editable from the admin chat
const (
	SectionHours    = "horario"
	SectionShipping = "envio"
	SectionPayment  = "pago"
)

// EffectKind enumerates router side effects
type EffectKind int

const (
	// EffectReply sends Text to the chat
	EffectReply EffectKind = iota
	// EffectBufferPush appends Text to the chat's debounce buffer
	EffectBufferPush
	// EffectBufferCancel discards the chat's pending buffer and timer
	EffectBufferCancel
	// EffectConfigUpdate applies Edit through the config provider
	EffectConfigUpdate
)

func (k EffectKind) String() string {
	switch k {
	case EffectReply:
		return "reply"
	case EffectBufferPush:
		return "buffer_push"
	case EffectBufferCancel:
		return "buffer_cancel"
	case EffectConfigUpdate:
		return "config_update"
	default:
		return "unknown"
	}
}

// Effect is one side effect produced by the router
type Effect struct {
	Kind EffectKind
	Text string
	Edit *ConfigEdit
}

// ConfigOp enumerates admin chat edits
type ConfigOp int

const (
	OpSetStoreName ConfigOp = iota
	OpSetSection
	OpAddCommand
	OpDeleteCommand
)

// ConfigEdit is a config mutation requested from the admin chat
type ConfigEdit struct {
	Op    ConfigOp
	Key   string
	Value string
}

// Apply mutates cfg according to the edit
func (e ConfigEdit) Apply(cfg *domain.BotConfig) error {
	switch e.Op {
	case OpSetStoreName:
		cfg.StoreName = e.Value
	case OpSetSection:
		return cfg.SetContent(e.Key, e.Value)
	case OpAddCommand:
		if cfg.CustomCommands == nil {
			cfg.CustomCommands = make(map[string]string)
		}
		cfg.CustomCommands[e.Key] = e.Value
	case OpDeleteCommand:
		delete(cfg.CustomCommands, e.Key)
	default:
		return fmt.Errorf("unknown config op %d", e.Op)
	}
	return nil
}

// Decision is the router's output for one inbound message
type Decision struct {
	Next    *domain.ChatState
	Effects []Effect
	Handler string
}

// Replies returns the texts of all reply effects
func (d *Decision) Replies() []string {
	var out []string
	for _, e := range d.Effects {
		if e.Kind == EffectReply {
			out = append(out, e.Text)
		}
	}
	return out
}

func (d *Decision) reply(text string) {
	d.Effects = append(d.Effects, Effect{Kind: EffectReply, Text: text})
}

func (d *Decision) emit(kind EffectKind) {
	d.Effects = append(d.Effects, Effect{Kind: kind})
}

func (d *Decision) edit(e ConfigEdit) {
	d.Effects = append(d.Effects, Effect{Kind: EffectConfigUpdate, Edit: &e})
}

// AdminCredentials guards the chat admin panel
type AdminCredentials struct {
	Trigger  string
	Username string
	Password string
}

// Router is the per-chat conversation state machine. It performs no I/O:
// every outcome is described by the returned Decision.
type Router struct {
	messages Messages
	admin    AdminCredentials
}

// NewRouter creates a new router
func NewRouter(messages Messages, admin AdminCredentials) *Router {
	return &Router{
		messages: messages.WithDefaults(),
		admin:    admin,
	}
}

// Messages returns the texts used by the router
func (r *Router) Messages() Messages {
	return r.messages
}

// Route decides the next state and effects for one inbound text.
// state is not modified.
func (r *Router) Route(state *domain.ChatState, text string, cfg *domain.BotConfig, now time.Time) *Decision {
	next := state.Clone()
	if next == nil {
		next = domain.NewChatState("", now)
	}
	if !next.Mode.Valid() {
		next.SetMode(domain.ModeMenu)
	}
	d := &Decision{Next: next}

	raw := strings.TrimSpace(text)
	folded := domain.FoldCommand(raw)

	if r.routeAuth(d, raw, folded) {
		return d
	}
	if next.Admin.IsAdmin {
		r.routeAdmin(d, raw, cfg)
		return d
	}

	switch next.Mode {
	case domain.ModeHumanHandoff:
		r.routeHandoff(d, folded, cfg)
	case domain.ModeAIAssist:
		r.routeAssist(d, raw, folded, cfg)
	default:
		r.routeMenu(d, raw, folded, cfg, now)
	}
	return d
}

// routeAuth handles the trigger phrase and the two-step login
func (r *Router) routeAuth(d *Decision, raw, folded string) bool {
	s := d.Next
	if trigger := domain.FoldCommand(r.admin.Trigger); trigger != "" && folded == trigger {
		s.Admin.AwaitingUsername = true
		d.Handler = "admin_trigger"
		d.reply(r.messages.AdminPrompt)
		return true
	}

	if m := adminUserRe.FindStringSubmatch(raw); m != nil && !s.Admin.IsAdmin {
		s.Admin.PendingUsername = strings.TrimSpace(m[1])
		s.Admin.AwaitingUsername = false
		d.Handler = "admin_user"
		d.reply(r.messages.AdminPassPrompt)
		return true
	}

	if m := adminPassRe.FindStringSubmatch(raw); m != nil {
		pass := strings.TrimSpace(m[1])
		ok := r.admin.Username != "" &&
			s.Admin.PendingUsername == r.admin.Username &&
			pass == r.admin.Password
		s.Admin.PendingUsername = ""
		s.Admin.AwaitingUsername = false
		s.Admin.IsAdmin = ok
		d.Handler = "admin_pass"
		if ok {
			d.reply(r.messages.AdminSuccess + "\n\n" + r.messages.AdminMenu)
		} else {
			d.reply(r.messages.AdminInvalid)
		}
		return true
	}
	return false
}

// routeAdmin handles authenticated admin commands; anything else is dropped
func (r *Router) routeAdmin(d *Decision, raw string, cfg *domain.BotConfig) {
	d.Handler = "admin"
	switch {
	case adminNameRe.MatchString(raw):
		name := afterColon(raw)
		if name == "" {
			name = cfg.StoreName
		} else {
			d.edit(ConfigEdit{Op: OpSetStoreName, Value: name})
		}
		d.reply("✔️ Nombre actualizado: " + name)

	case adminHoursRe.MatchString(raw):
		r.editSection(d, SectionHours, afterColon(raw), "✔️ Horario actualizado.")
	case adminShipRe.MatchString(raw):
		r.editSection(d, SectionShipping, afterColon(raw), "✔️ Envío actualizado.")
	case adminPayRe.MatchString(raw):
		r.editSection(d, SectionPayment, afterColon(raw), "✔️ Pago actualizado.")

	case adminConfigRe.MatchString(raw):
		d.reply(strings.Join([]string{
			r.messages.AdminConfigHead,
			"- nombre: " + cfg.StoreName,
			"- horario: " + cfg.ContentString(SectionHours),
			"- envio: " + cfg.ContentString(SectionShipping),
			"- pago: " + cfg.ContentString(SectionPayment),
			fmt.Sprintf("- comandos: %d definidos", len(cfg.CustomCommands)),
		}, "\n"))

	case adminLogoutRe.MatchString(raw):
		d.Next.Admin.IsAdmin = false
		d.reply(r.messages.AdminLogout)

	case adminCmdAddRe.MatchString(raw):
		m := adminCmdAddRe.FindStringSubmatch(raw)
		word := strings.ToLower(strings.TrimSpace(m[1]))
		reply := strings.TrimSpace(m[2])
		if word == "" || reply == "" {
			return
		}
		d.edit(ConfigEdit{Op: OpAddCommand, Key: word, Value: reply})
		d.reply(fmt.Sprintf("✔️ Comando %q guardado.", word))

	case adminCmdDelRe.MatchString(raw):
		m := adminCmdDelRe.FindStringSubmatch(raw)
		word := strings.ToLower(strings.TrimSpace(m[1]))
		if word == "" {
			d.reply(r.messages.AdminDelUsage)
			return
		}
		if _, ok := cfg.CustomCommands[word]; !ok {
			d.reply(r.messages.AdminUnknownCmd)
			return
		}
		d.edit(ConfigEdit{Op: OpDeleteCommand, Key: word})
		d.reply(fmt.Sprintf("🗑️ Comando %q eliminado.", word))

	case adminCmdListRe.MatchString(raw):
		if len(cfg.CustomCommands) == 0 {
			d.reply(r.messages.AdminNoCommands)
			return
		}
		words := make([]string, 0, len(cfg.CustomCommands))
		for w := range cfg.CustomCommands {
			words = append(words, w)
		}
		sort.Strings(words)
		lines := []string{r.messages.AdminCommandsHead}
		for _, w := range words {
			lines = append(lines, "- "+w+": "+cfg.CustomCommands[w])
		}
		d.reply(strings.Join(lines, "\n"))

	case singleDigitRe.MatchString(raw):
		d.reply(r.messages.AdminMenu)

	default:
		d.Handler = "admin_ignored"
	}
}

func (r *Router) editSection(d *Decision, section, value, ack string) {
	if value != "" {
		d.edit(ConfigEdit{Op: OpSetSection, Key: section, Value: value})
	}
	d.reply(ack)
}

// routeHandoff only reacts to the return commands
func (r *Router) routeHandoff(d *Decision, folded string, cfg *domain.BotConfig) {
	switch {
	case folded == KeywordMenu:
		r.toMenu(d, cfg)
	case resumeKeywords[folded]:
		d.emit(EffectBufferCancel)
		d.Next.SetMode(domain.ModeAIAssist)
		d.Handler = "resume_bot"
		d.reply(Format(r.messages.AssistWelcome, cfg))
	default:
		d.Handler = "handoff_ignored"
	}
}

// routeAssist buffers free text for the AI pipeline
func (r *Router) routeAssist(d *Decision, raw, folded string, cfg *domain.BotConfig) {
	if r.routeReserved(d, raw, folded, cfg) {
		return
	}
	if raw == "" {
		d.Handler = "empty"
		return
	}
	d.Handler = "buffer"
	d.Effects = append(d.Effects, Effect{Kind: EffectBufferPush, Text: raw})
}

// routeMenu resolves numeric options, custom commands and the daily welcome
func (r *Router) routeMenu(d *Decision, raw, folded string, cfg *domain.BotConfig, now time.Time) {
	if r.routeReserved(d, raw, folded, cfg) {
		return
	}

	if singleDigitRe.MatchString(raw) {
		if raw == domain.OptionShowMenu {
			d.Handler = "menu_option"
			d.reply(RenderMenu(cfg))
			return
		}
		op, ok := cfg.Option(raw)
		switch {
		case !ok:
			d.Handler = "invalid_option"
			d.reply(Format(r.messages.InvalidOption, cfg))
		case strings.TrimSpace(op.Response) != "":
			d.Handler = "menu_option"
			d.reply(Format(op.Response, cfg))
		default:
			r.toHuman(d, cfg)
		}
		return
	}

	if reply, ok := cfg.CustomCommands[strings.ToLower(raw)]; ok && reply != "" {
		d.Handler = "custom_command"
		d.reply(reply)
		return
	}

	if d.Next.WelcomeDue(now) {
		d.Next.MarkWelcomed(now)
		d.Handler = "welcome"
		d.reply(Format(r.messages.Welcome, cfg) + "\n\n" + RenderMenu(cfg))
		return
	}

	d.Handler = "fallback"
	d.reply(Format(r.messages.Fallback, cfg))
}

// routeReserved handles the keywords and option shared by MENU and AI_ASSIST
func (r *Router) routeReserved(d *Decision, raw, folded string, cfg *domain.BotConfig) bool {
	switch {
	case folded == KeywordMenu:
		r.toMenu(d, cfg)
	case folded == KeywordHuman:
		r.toHuman(d, cfg)
	case raw == domain.OptionAssist:
		d.emit(EffectBufferCancel)
		if d.Next.Mode == domain.ModeAIAssist {
			// restarting the assist flow drops any reply still in flight
			d.Next.Epoch++
		}
		d.Next.SetMode(domain.ModeAIAssist)
		d.Handler = "assist"
		d.reply(Format(r.messages.AssistWelcome, cfg))
	default:
		return false
	}
	return true
}

func (r *Router) toMenu(d *Decision, cfg *domain.BotConfig) {
	d.emit(EffectBufferCancel)
	d.Next.SetMode(domain.ModeMenu)
	d.Handler = "menu"
	d.reply(RenderMenu(cfg))
}

func (r *Router) toHuman(d *Decision, cfg *domain.BotConfig) {
	d.emit(EffectBufferCancel)
	d.Next.SetMode(domain.ModeHumanHandoff)
	d.Handler = "handoff"
	d.reply(Format(r.messages.HandoffNotice, cfg))
}

func afterColon(s string) string {
	i := strings.Index(s, ":")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(s[i+1:])
}
