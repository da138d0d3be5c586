package usecase

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

const (
	sectionSummaryMax = 300
	summaryListMax    = 5
)

var summaryFields = []string{"title", "description", "message", "details", "value", "content"}

// PromptBuilder assembles the single system prompt sent to the AI backend
type PromptBuilder struct {
	messages Messages
}

// NewPromptBuilder creates a new prompt builder
func NewPromptBuilder(messages Messages) *PromptBuilder {
	return &PromptBuilder{messages: messages.WithDefaults()}
}

// SystemPrompt embeds store identity, content summaries and intent strategy
func (b *PromptBuilder) SystemPrompt(cfg *domain.BotConfig, intent domain.Intent) string {
	m := b.messages

	strategy := ""
	switch {
	case intent.Category == domain.IntentBuying && intent.BuyingScore > confBuyingMinScore:
		strategy = m.StrategyBuying
	case intent.Category == domain.IntentInfo:
		strategy = m.StrategyInfo
	case intent.IsFirstTime:
		strategy = m.StrategyFirstTime
	}

	description := strings.TrimSpace(cfg.Description)
	if description == "" {
		description = m.DefaultDescription
	}
	instructions := strings.TrimSpace(cfg.AI.Instructions)
	if instructions == "" {
		instructions = m.DefaultInstructions
	}

	content := m.NoContent
	if len(cfg.Content) > 0 {
		lines := make([]string, 0, len(cfg.Content))
		for _, k := range sortedKeys(cfg.Content) {
			lines = append(lines, "• "+k+": "+summarize(cfg.Content[k]))
		}
		content = strings.Join(lines, "\n")
	}

	prompt := Format(m.SystemPrompt, cfg)
	prompt = strings.ReplaceAll(prompt, "{{description}}", description)
	prompt = strings.ReplaceAll(prompt, "{{strategy}}", strategy)
	prompt = strings.ReplaceAll(prompt, "{{content}}", content)
	prompt = strings.ReplaceAll(prompt, "{{instructions}}", instructions)
	return prompt
}

// Build returns the full prompt: system part, recent history and the new message
func (b *PromptBuilder) Build(cfg *domain.BotConfig, intent domain.Intent, history []domain.HistoryEntry, message string) string {
	var sb strings.Builder
	sb.WriteString(b.SystemPrompt(cfg, intent))
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString(b.messages.HistoryHeader + "\n")
		for _, h := range history {
			role := "Cliente"
			if h.IsFromBot {
				role = "Asistente"
			}
			sb.WriteString(role + ": " + h.Text + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(b.messages.CurrentMarker + " " + message + "\n\n" + b.messages.AnswerMarker)
	return sb.String()
}

// summarize renders one content section, capped in length
func summarize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return truncateRunes(t, sectionSummaryMax)
	case []any:
		if len(t) > summaryListMax {
			t = t[:summaryListMax]
		}
		return truncateRunes(joinSummaries(t), sectionSummaryMax)
	case map[string]any:
		for _, f := range summaryFields {
			fv, ok := t[f]
			if !ok {
				continue
			}
			switch ft := fv.(type) {
			case []any:
				return truncateRunes(joinSummaries(ft), sectionSummaryMax)
			case string:
				return truncateRunes(ft, sectionSummaryMax)
			}
		}
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return truncateRunes(string(data), sectionSummaryMax)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return truncateRunes(string(data), sectionSummaryMax)
	}
}

func joinSummaries(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := summarize(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
