package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMenuOptions_RejectsDuplicates(t *testing.T) {
	err := ValidateMenuOptions([]MenuOption{
		{Number: "4", Label: "Asesor"},
		{Number: " 4", Label: "Otro"},
	})
	if err == nil {
		t.Fatal("Expected duplicate numbers to be rejected")
	}
	if !errors.Is(err, ErrDuplicateMenuOption) {
		t.Errorf("Expected ErrDuplicateMenuOption, got %v", err)
	}
	if !strings.Contains(err.Error(), "Números de opciones repetidos: 4") {
		t.Errorf("Unexpected message: %v", err)
	}
}

func TestValidateMenuOptions_RejectsMultiDigit(t *testing.T) {
	err := ValidateMenuOptions([]MenuOption{{Number: "12", Label: "x"}})
	if !errors.Is(err, ErrInvalidMenuOption) {
		t.Errorf("Expected ErrInvalidMenuOption, got %v", err)
	}
}

func TestSanitize_ForcesReservedOptions(t *testing.T) {
	cfg := &BotConfig{
		StoreName: "Tienda",
		Menu: MenuConfig{Options: []MenuOption{
			{Number: "3", Label: " Horarios ", Response: "9 a 18"},
			{Number: "1", Label: "Ofertas", Response: "ignored"},
			{Number: "7", Label: ""},
		}},
	}
	cfg.Sanitize()

	if len(cfg.Menu.Options) != 3 {
		t.Fatalf("Expected 3 options (1, 3, 4), got %+v", cfg.Menu.Options)
	}

	one, _ := cfg.Option("1")
	if one.Label != ShowMenuLabel || one.Response != "" {
		t.Errorf("Option 1 should be forced to %q, got %+v", ShowMenuLabel, one)
	}
	four, ok := cfg.Option("4")
	if !ok || four.Label != AssistLabel {
		t.Errorf("Option 4 should be inserted, got %+v", four)
	}
	three, _ := cfg.Option("3")
	if three.Label != "Horarios" {
		t.Errorf("Expected trimmed label, got %q", three.Label)
	}
	if _, ok := cfg.Option("7"); ok {
		t.Error("Option without label should be dropped")
	}
}

func TestSetContent_RejectsMalformedSection(t *testing.T) {
	cfg := DefaultBotConfig("Tienda")
	if err := cfg.SetContent("../etc", "x"); !errors.Is(err, ErrInvalidSection) {
		t.Errorf("Expected ErrInvalidSection, got %v", err)
	}
	if err := cfg.SetContent("horario", "9 a 18"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ContentString("horario") != "9 a 18" {
		t.Error("Expected section to be stored")
	}
}

func TestClone_Deep(t *testing.T) {
	cfg := DefaultBotConfig("Tienda")
	cfg.Content["envio"] = map[string]any{"value": "gratis"}

	c := cfg.Clone()
	c.Content["envio"].(map[string]any)["value"] = "pago"
	c.Menu.Options[0].Label = "x"

	if cfg.ContentString("envio") != "gratis" {
		t.Error("Clone should not share nested content")
	}
	if cfg.Menu.Options[0].Label != ShowMenuLabel {
		t.Error("Clone should not share options")
	}
}
