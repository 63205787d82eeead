package api

import (
	"bytes"
	"image/png"
	"log"
	"net/http"

	"github.com/fogleman/gg"
	"github.com/go-chi/chi/v5"

	"arena/internal/game"
)

// previewScale shrinks world units to preview pixels.
const previewScale = 0.5

var powerUpColors = map[game.PowerUpType][3]float64{
	game.PowerUpSpeedBoost:  {0.30, 0.75, 1.00},
	game.PowerUpDamageBoost: {1.00, 0.45, 0.25},
	game.PowerUpHealthPack:  {0.35, 0.90, 0.45},
	game.PowerUpShield:      {0.80, 0.80, 0.30},
	game.PowerUpRapidFire:   {0.85, 0.40, 0.90},
}

// handlePreview renders the current match state as a PNG still, for the
// match browser and link unfurls.
func (h *handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "match_not_found")
		return
	}
	snap, live := m.Match.SnapshotNow()
	if !live {
		writeError(w, http.StatusGone, "match_finished")
		return
	}

	img := renderPreview(snap)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image()); err != nil {
		log.Printf("api: encode preview for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "render_failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func renderPreview(snap game.Snapshot) *gg.Context {
	// Arena extent comes from entity positions being pre-clamped, so the
	// canvas uses a fixed 1280x720 world shrunk by previewScale.
	width := int(1280 * previewScale)
	height := int(720 * previewScale)
	dc := gg.NewContext(width, height)

	// backdrop
	dc.SetRGB(0.08, 0.09, 0.12)
	dc.Clear()

	// arena border
	dc.SetRGB(0.25, 0.28, 0.35)
	dc.SetLineWidth(2)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Stroke()

	for _, pu := range snap.PowerUps {
		if !pu.Active {
			continue
		}
		c, ok := powerUpColors[pu.Type]
		if !ok {
			c = [3]float64{0.6, 0.6, 0.6}
		}
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(pu.Pos.X*previewScale, pu.Pos.Y*previewScale, pu.Radius*previewScale)
		dc.Fill()
	}

	for _, pr := range snap.Projectiles {
		dc.SetRGB(1.0, 0.85, 0.4)
		dc.DrawCircle(pr.Pos.X*previewScale, pr.Pos.Y*previewScale, pr.Size*previewScale)
		dc.Fill()
	}

	for _, p := range snap.Players {
		x := p.Pos.X * previewScale
		y := p.Pos.Y * previewScale
		r := p.Radius * previewScale

		if p.Alive {
			dc.SetRGB(0.35, 0.65, 1.0)
		} else {
			dc.SetRGB(0.4, 0.4, 0.45)
		}
		dc.DrawCircle(x, y, r)
		dc.Fill()

		if p.Alive && p.MaxHealth > 0 {
			frac := float64(p.Health) / float64(p.MaxHealth)
			dc.SetRGB(0.2, 0.2, 0.2)
			dc.DrawRectangle(x-r, y-r-6, 2*r, 3)
			dc.Fill()
			dc.SetRGB(1-frac, frac, 0.2)
			dc.DrawRectangle(x-r, y-r-6, 2*r*frac, 3)
			dc.Fill()
		}

		dc.SetRGB(0.9, 0.9, 0.9)
		dc.DrawStringAnchored(p.ID, x, y-r-12, 0.5, 0.5)
	}

	// status line
	dc.SetRGB(0.7, 0.7, 0.75)
	dc.DrawStringAnchored(string(snap.Status), 8, 10, 0, 0.5)

	return dc
}
