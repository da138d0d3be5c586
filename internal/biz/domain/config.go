package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Reserved menu options. They cannot be redefined by configuration.
const (
	OptionShowMenu = "1"
	OptionAssist   = "4"

	ShowMenuLabel = "Ver este menú"
	AssistLabel   = "Hablar con el asistente"
)

var (
	optionNumberRe = regexp.MustCompile(`^[0-9]$`)
	sectionNameRe  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,40}$`)
)

// BotConfig is the business-editable configuration
type BotConfig struct {
	StoreName      string            `json:"storeName"`
	Description    string            `json:"description,omitempty"`
	Menu           MenuConfig        `json:"menu"`
	Content        map[string]any    `json:"content"`
	AI             AIConfig          `json:"ai"`
	CustomCommands map[string]string `json:"customCommands,omitempty"`
}

// MenuConfig describes the rendered numeric menu
type MenuConfig struct {
	Title    string       `json:"title,omitempty"`
	Greeting string       `json:"greeting,omitempty"`
	Options  []MenuOption `json:"options"`
	Footer   string       `json:"footer,omitempty"`
}

// MenuOption is one numeric menu entry
type MenuOption struct {
	Number   string `json:"number"`
	Label    string `json:"text"`
	Emoji    string `json:"emoji,omitempty"`
	Response string `json:"response,omitempty"`
}

// AIConfig holds the AI settings editable from the panel
type AIConfig struct {
	Enabled             bool    `json:"enabled"`
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
	Instructions        string  `json:"instructions,omitempty"`
	GroqModel           string  `json:"groqModel,omitempty"`
}

// DefaultBotConfig returns the configuration used when no file exists
func DefaultBotConfig(storeName string) *BotConfig {
	cfg := &BotConfig{
		StoreName: storeName,
		Menu: MenuConfig{
			Title: "🧭 Menú principal (elige un número):",
		},
		Content: map[string]any{},
	}
	cfg.Sanitize()
	return cfg
}

// Clone returns a deep copy
func (c *BotConfig) Clone() *BotConfig {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	var out BotConfig
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *c
		return &cp
	}
	if out.Content == nil {
		out.Content = map[string]any{}
	}
	return &out
}

// Option resolves a menu option by number
func (c *BotConfig) Option(number string) (MenuOption, bool) {
	for _, op := range c.Menu.Options {
		if op.Number == number {
			return op, true
		}
	}
	return MenuOption{}, false
}

// ContentString returns a content section rendered as plain text
func (c *BotConfig) ContentString(section string) string {
	v, ok := c.Content[section]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["value"].(string); ok {
			return s
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// SetContent stores a content section, validating its name
func (c *BotConfig) SetContent(section string, value any) error {
	if !sectionNameRe.MatchString(section) {
		return &ValidationError{Field: "content", Message: fmt.Sprintf("nombre de sección inválido: %q", section), Err: ErrInvalidSection}
	}
	if c.Content == nil {
		c.Content = map[string]any{}
	}
	c.Content[section] = value
	return nil
}

// DeleteContent removes a content section
func (c *BotConfig) DeleteContent(section string) error {
	if _, ok := c.Content[section]; !ok {
		return &ValidationError{Field: "content", Message: fmt.Sprintf("sección %q no existe", section), Err: ErrSectionNotFound}
	}
	delete(c.Content, section)
	return nil
}

// Validate checks write-boundary invariants
func (c *BotConfig) Validate() error {
	if err := ValidateMenuOptions(c.Menu.Options); err != nil {
		return err
	}
	for section := range c.Content {
		if !sectionNameRe.MatchString(section) {
			return &ValidationError{Field: "content", Message: fmt.Sprintf("nombre de sección inválido: %q", section), Err: ErrInvalidSection}
		}
	}
	if t := c.AI.ConfidenceThreshold; t < 0 || t > 1 {
		return &ValidationError{Field: "ai.confidenceThreshold", Message: "debe estar entre 0 y 1", Err: ErrInvalidConfig}
	}
	return nil
}

// ValidateMenuOptions rejects duplicate and non single-digit numbers
func ValidateMenuOptions(options []MenuOption) error {
	seen := make(map[string]bool, len(options))
	var dups []string
	for _, op := range options {
		n := strings.TrimSpace(op.Number)
		if n == "" {
			continue
		}
		if !optionNumberRe.MatchString(n) {
			return &ValidationError{Field: "menu.options", Message: fmt.Sprintf("número de opción inválido: %q", n), Err: ErrInvalidMenuOption}
		}
		if seen[n] && !contains(dups, n) {
			dups = append(dups, n)
		}
		seen[n] = true
	}
	if len(dups) > 0 {
		return &ValidationError{
			Field:   "menu.options",
			Message: "Números de opciones repetidos: " + strings.Join(dups, ", "),
			Err:     ErrDuplicateMenuOption,
		}
	}
	return nil
}

// Sanitize normalizes the menu and fills required fields. Reserved options
// "1" and "4" are forced to their fixed labels and empty responses.
func (c *BotConfig) Sanitize() {
	if c.Content == nil {
		c.Content = map[string]any{}
	}

	options := make([]MenuOption, 0, len(c.Menu.Options)+2)
	for _, op := range c.Menu.Options {
		op.Number = strings.TrimSpace(op.Number)
		op.Label = strings.TrimSpace(op.Label)
		op.Emoji = strings.TrimSpace(op.Emoji)
		if op.Number == "" || (op.Label == "" && !isReserved(op.Number)) {
			continue
		}
		options = append(options, op)
	}

	options = forceReserved(options, OptionShowMenu, ShowMenuLabel)
	options = forceReserved(options, OptionAssist, AssistLabel)

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Number < options[j].Number
	})
	c.Menu.Options = options

	if len(c.CustomCommands) == 0 {
		c.CustomCommands = nil
	}
}

func forceReserved(options []MenuOption, number, label string) []MenuOption {
	for i := range options {
		if options[i].Number == number {
			options[i].Label = label
			options[i].Response = ""
			return options
		}
	}
	return append(options, MenuOption{Number: number, Label: label})
}

func isReserved(number string) bool {
	return number == OptionShowMenu || number == OptionAssist
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
