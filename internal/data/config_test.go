package data

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

func newTestConfigRepo(t *testing.T) (*ConfigRepo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	r, err := NewConfigRepo(path, "Tienda Demo", logger.Nop())
	if err != nil {
		t.Fatalf("NewConfigRepo error: %v", err)
	}
	return r, path
}

func TestConfigRepo_CreatesDefault(t *testing.T) {
	r, path := newTestConfigRepo(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected config file to be created: %v", err)
	}
	cfg := r.Get()
	if cfg.StoreName != "Tienda Demo" {
		t.Errorf("Expected default store name, got %q", cfg.StoreName)
	}
	if op, ok := cfg.Option("1"); !ok || op.Label != domain.ShowMenuLabel {
		t.Errorf("Expected reserved option 1, got %+v", op)
	}
	if _, ok := cfg.Option("4"); !ok {
		t.Error("Expected reserved option 4")
	}
}

func TestConfigRepo_SaveMergesAndPersists(t *testing.T) {
	r, path := newTestConfigRepo(t)
	ctx := context.Background()

	err := r.Save(ctx, map[string]any{
		"storeName": "Camisetas Sur",
		"menu": map[string]any{
			"options": []any{
				map[string]any{"number": 1, "text": "Otra cosa", "response": "ignorado"},
				map[string]any{"number": 2, "text": " Horarios ", "response": "9 a 18"},
			},
		},
		"ai": map[string]any{"enabled": true},
	})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := r.Save(ctx, map[string]any{"ai": map[string]any{"confidenceThreshold": 0.8}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	cfg := r.Get()
	if cfg.StoreName != "Camisetas Sur" {
		t.Errorf("Expected merged store name, got %q", cfg.StoreName)
	}
	if !cfg.AI.Enabled || cfg.AI.ConfidenceThreshold != 0.8 {
		t.Errorf("Expected nested ai fields merged, got %+v", cfg.AI)
	}
	op1, _ := cfg.Option("1")
	if op1.Label != domain.ShowMenuLabel || op1.Response != "" {
		t.Errorf("Option 1 must stay reserved, got %+v", op1)
	}
	op2, ok := cfg.Option("2")
	if !ok || op2.Label != "Horarios" {
		t.Errorf("Expected trimmed option 2, got %+v", op2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk domain.BotConfig
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("Persisted file is not valid JSON: %v", err)
	}
	if onDisk.StoreName != "Camisetas Sur" {
		t.Errorf("Expected persisted store name, got %q", onDisk.StoreName)
	}
}

func TestConfigRepo_RejectsDuplicateOptions(t *testing.T) {
	r, _ := newTestConfigRepo(t)
	before := r.Get()

	err := r.Save(context.Background(), map[string]any{
		"storeName": "No debería guardarse",
		"menu": map[string]any{
			"options": []any{
				map[string]any{"number": "4", "text": "A"},
				map[string]any{"number": "4", "text": "B"},
			},
		},
	})
	if !errors.Is(err, domain.ErrDuplicateMenuOption) {
		t.Fatalf("Expected duplicate option error, got %v", err)
	}
	if err.Error() != "menu.options: Números de opciones repetidos: 4" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
	if r.Get().StoreName != before.StoreName {
		t.Error("In-memory config must be unchanged on validation failure")
	}
}

func TestConfigRepo_Update(t *testing.T) {
	r, _ := newTestConfigRepo(t)
	ctx := context.Background()

	err := r.Update(ctx, func(cfg *domain.BotConfig) error {
		return cfg.SetContent("horario", "Lunes a viernes")
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got := r.Get().ContentString("horario"); got != "Lunes a viernes" {
		t.Errorf("Expected section saved, got %q", got)
	}

	err = r.Update(ctx, func(cfg *domain.BotConfig) error {
		return cfg.SetContent("no válido", "x")
	})
	if !errors.Is(err, domain.ErrInvalidSection) {
		t.Errorf("Expected invalid section error, got %v", err)
	}
}

func TestConfigRepo_Reload(t *testing.T) {
	r, path := newTestConfigRepo(t)

	doc := `{"storeName":"Editada a mano","menu":{"options":[]},"content":{"pago":"Efectivo"}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := r.Get()
	if cfg.StoreName != "Editada a mano" || cfg.ContentString("pago") != "Efectivo" {
		t.Errorf("Unexpected reloaded config: %+v", cfg)
	}
	if _, ok := cfg.Option("4"); !ok {
		t.Error("Expected sanitize to restore reserved option 4")
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background()); err == nil {
		t.Error("Expected reload error for invalid JSON")
	}
	if r.Get().StoreName != "Editada a mano" {
		t.Error("Failed reload must keep the previous config")
	}
}

func TestConfigRepo_WatchReloadsExternalEdits(t *testing.T) {
	r, path := newTestConfigRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Watch(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	doc := `{"storeName":"Desde el disco","menu":{"options":[]}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.Get().StoreName == "Desde el disco" {
			cancel()
			<-done
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("Expected watcher to reload the external edit")
}

func TestMergeDeep(t *testing.T) {
	dst := map[string]any{
		"a": map[string]any{"x": 1.0, "y": 2.0},
		"b": []any{1.0, 2.0},
	}
	src := map[string]any{
		"a": map[string]any{"y": 3.0},
		"b": []any{9.0},
		"c": "new",
	}
	got := mergeDeep(dst, src)

	a := got["a"].(map[string]any)
	if a["x"] != 1.0 || a["y"] != 3.0 {
		t.Errorf("Expected recursive merge, got %v", a)
	}
	if b := got["b"].([]any); len(b) != 1 {
		t.Errorf("Expected arrays to replace, got %v", b)
	}
	if got["c"] != "new" {
		t.Error("Expected new key")
	}
}
