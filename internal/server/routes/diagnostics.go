package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/digestindex"
	"github.com/any-hub/cache-info/internal/vendors"
	"github.com/any-hub/cache-info/internal/version"
)

// RegisterDiagnostics 暴露 /-/healthz、/-/index 与 /-/vendors 诊断接口。
// idx 可以为 nil，此时 /-/index 报告未加载。
func RegisterDiagnostics(app *fiber.App, idx *digestindex.Index) {
	if app == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})

	app.Get("/-/index", func(c fiber.Ctx) error {
		return c.JSON(encodeIndex(idx))
	})

	app.Get("/-/vendors", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"vendors": vendors.List()})
	})
}

type indexPayload struct {
	Loaded     bool               `json:"loaded"`
	Stats      *digestindex.Stats `json:"stats,omitempty"`
	Collisions []collisionPayload `json:"collisions,omitempty"`
}

type collisionPayload struct {
	MD5      string `json:"md5"`
	Kept     string `json:"kept"`
	Replaced string `json:"replaced"`
}

func encodeIndex(idx *digestindex.Index) indexPayload {
	if idx == nil {
		return indexPayload{}
	}
	stats := idx.Stats()
	payload := indexPayload{Loaded: true, Stats: &stats}
	for _, col := range idx.Collisions() {
		payload.Collisions = append(payload.Collisions, encodeCollision(col.Digest, col.Kept, col.Replaced))
	}
	return payload
}

func encodeCollision(d blobfmt.Digest, kept, replaced string) collisionPayload {
	return collisionPayload{MD5: d.String(), Kept: kept, Replaced: replaced}
}
