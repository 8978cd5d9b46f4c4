package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/cache-info/internal/digestindex"
)

func getJSON(t *testing.T, app *fiber.App, path string, out any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("invalid json from %s: %v (%s)", path, err, body)
	}
}

func TestHealthz(t *testing.T) {
	app := fiber.New()
	RegisterDiagnostics(app, nil)

	var payload map[string]string
	getJSON(t, app, "/-/healthz", &payload)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["version"] == "" {
		t.Fatalf("version should be reported")
	}
}

func TestIndexWithoutDigestIndex(t *testing.T) {
	app := fiber.New()
	RegisterDiagnostics(app, nil)

	var payload indexPayload
	getJSON(t, app, "/-/index", &payload)
	if payload.Loaded || payload.Stats != nil {
		t.Fatalf("expected unloaded index, got %+v", payload)
	}
}

func TestIndexReportsStatsAndCollisions(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.elf", "b.elf", "c.elf"} {
		content := []byte("same")
		if name == "c.elf" {
			content = []byte("different")
		}
		if err := os.WriteFile(filepath.Join(root, name), content, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	idx, err := digestindex.Build(context.Background(), root, digestindex.Options{Logger: logger})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	app := fiber.New()
	RegisterDiagnostics(app, idx)

	var payload indexPayload
	getJSON(t, app, "/-/index", &payload)
	if !payload.Loaded || payload.Stats == nil {
		t.Fatalf("expected loaded index, got %+v", payload)
	}
	if payload.Stats.Indexed != 2 || payload.Stats.Candidates != 3 {
		t.Fatalf("unexpected stats: %+v", payload.Stats)
	}
	if len(payload.Collisions) != 1 {
		t.Fatalf("expected one collision, got %+v", payload.Collisions)
	}
	if payload.Collisions[0].Kept != filepath.Join(root, "b.elf") {
		t.Fatalf("later file should win, got %+v", payload.Collisions[0])
	}
}

func TestVendorsListed(t *testing.T) {
	app := fiber.New()
	RegisterDiagnostics(app, nil)

	var payload struct {
		Vendors []struct {
			ID       uint32 `json:"id"`
			Name     string `json:"name"`
			Parsable bool   `json:"parsable"`
		} `json:"vendors"`
	}
	getJSON(t, app, "/-/vendors", &payload)
	found := false
	for _, v := range payload.Vendors {
		if v.ID == 0x1002 {
			found = v.Parsable && v.Name == "AMD"
		}
	}
	if !found {
		t.Fatalf("AMD should be listed as parsable: %+v", payload.Vendors)
	}
}
