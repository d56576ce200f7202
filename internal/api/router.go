package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/report"
	"github.com/starford/editor-server/internal/workspace"
)

// Deps are the collaborators of the editor API.
type Deps struct {
	Connector  connector.Connector
	Workspaces *workspace.Service
	Devices    []models.DeviceData
	Reporter   report.Reporter
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
	Logger *slog.Logger
}

// NewRouter creates a chi router with all editor routes mounted. Every
// editor operation is a POST with a JSON body.
func NewRouter(deps Deps) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()

	r.Post("/devices.get", handle(h, "/devices.get", h.getDevices))
	r.Post("/file.copy", handle(h, "/file.copy", h.conn.CopyFile))
	r.Post("/file.create", handle(h, "/file.create", h.conn.CreateFile))
	r.Post("/file.delete", handle(h, "/file.delete", h.deleteFile))
	r.Post("/file.get", handle(h, "/file.get", h.conn.GetFile))
	r.Post("/file.save", handle(h, "/file.save", h.conn.SaveFile))
	r.Post("/file.upload", h.UploadFile)
	r.Post("/files.get", handle(h, "/files.get", h.conn.GetFiles))
	r.Post("/project.get", handle(h, "/project.get", h.conn.GetProject))
	r.Post("/publish.start", handle(h, "/publish.start", h.workspaces.Publish))
	r.Post("/workspace.create", handle(h, "/workspace.create", h.workspaces.Create))
	r.Post("/workspace.get", handle(h, "/workspace.get", h.getWorkspace))
	r.Post("/workspaces.get", handle(h, "/workspaces.get", h.getWorkspaces))

	// Format specific routes.
	if pl, ok := deps.Connector.(connector.PartialsLister); ok {
		r.Route("/grow", func(r chi.Router) {
			r.Post("/partials.get", handle(h, "/grow/partials.get", pl.GetPartials))
		})
	}

	if deps.Events != nil {
		r.Get("/events", deps.Events.ServeHTTP)
	}

	return r
}
