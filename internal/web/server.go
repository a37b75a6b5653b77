package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/google/uuid"

	"speedo/internal/notify"
	"speedo/internal/permission"
	"speedo/internal/session"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Deps collects the collaborators the HTTP surface exposes. Broker may be nil
// when a static permission gate is configured; the permission endpoints then
// report 404.
type Deps struct {
	Status  *Status
	Ctrl    *session.Controller
	Board   *notify.Board
	Stream  *SpeedStream
	Broker  *permission.Broker
	Targets []string
}

func Handler(d Deps) http.Handler {
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		// Should never happen; keep server functional with API only.
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := d.Status.Snapshot(time.Now().UTC(), d.Ctrl.Snapshot())
		writeJSON(w, snap)
	})

	mux.HandleFunc("/api/session/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := d.Ctrl.Start(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, d.Ctrl.Snapshot())
	})

	mux.HandleFunc("/api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		d.Ctrl.Stop()
		writeJSON(w, d.Ctrl.Snapshot())
	})

	mux.HandleFunc("/api/share", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Target string `json:"target"`
		}
		if r.Body != nil {
			// An empty body means the default target.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		err := d.Ctrl.Share(r.Context(), req.Target)
		switch {
		case err == nil:
			writeJSON(w, map[string]bool{"shared": true})
		case errors.Is(err, session.ErrInactive), errors.Is(err, session.ErrNoSpeed):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	})

	mux.HandleFunc("/api/share/targets", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		targets := d.Targets
		if targets == nil {
			targets = []string{}
		}
		writeJSON(w, map[string]any{"targets": targets})
	})

	mux.HandleFunc("/api/notices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		notices, dropped := d.Board.Recent(20)
		writeJSON(w, map[string]any{
			"now_utc": time.Now().UTC().Format(time.RFC3339),
			"dropped": dropped,
			"notices": notices,
		})
	})

	mux.HandleFunc("/api/permission/pending", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.Broker == nil {
			http.Error(w, "permission broker unavailable", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"granted": d.Broker.Granted(),
			"pending": d.Broker.Pending(),
		})
	})

	mux.HandleFunc("/api/permission/decide", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.Broker == nil {
			http.Error(w, "permission broker unavailable", http.StatusNotFound)
			return
		}
		var req struct {
			ID    string `json:"id"`
			Grant bool   `json:"grant"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		id, err := uuid.Parse(req.ID)
		if err != nil {
			http.Error(w, "bad request id", http.StatusBadRequest)
			return
		}
		decision := permission.Denied
		if req.Grant {
			decision = permission.Granted
		}
		if err := d.Broker.Resolve(id, decision); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	if d.Stream != nil {
		mux.HandleFunc("/ws", d.Stream.Serve)
	}

	if assetsFS != nil {
		mux.Handle("/", http.FileServer(http.FS(assetsFS)))
	}

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
