package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/report"
	"github.com/starford/editor-server/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	conn       connector.Connector
	workspaces *workspace.Service
	devices    []models.DeviceData
	reporter   report.Reporter
	log        *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		conn:       deps.Connector,
		workspaces: deps.Workspaces,
		devices:    deps.Devices,
		reporter:   deps.Reporter,
		log:        deps.Logger,
	}
	if h.workspaces == nil {
		h.workspaces = workspace.NewService("main", nil)
	}
	if h.devices == nil {
		h.devices = []models.DeviceData{}
	}
	if h.reporter == nil {
		h.reporter = report.Discard{}
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// handle adapts an editor operation into a POST handler: decode the JSON
// request, run op, encode the response or the error shape.
func handle[Req, Resp any](h *Handler, route string, op func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decodeBody(w, r, &req); err != nil {
			h.fail(w, r, route, err)
			return
		}
		resp, err := op(r.Context(), req)
		if err != nil {
			h.fail(w, r, route, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// fail reports err and writes it in the editor error shape.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, route string, err error) {
	status := statusFor(err)
	h.reporter.Report(r.Context(), err, slog.String("route", route), slog.Int("status", status))
	if status >= http.StatusInternalServerError {
		h.log.Error("api request failed", slog.String("route", route), slog.String("error", err.Error()))
	} else {
		h.log.Debug("api request rejected", slog.String("route", route), slog.String("error", err.Error()))
	}
	writeJSON(w, status, apperr.Coerce(err))
}

func (h *Handler) getDevices(_ context.Context, _ models.GetDevicesRequest) ([]models.DeviceData, error) {
	return h.devices, nil
}

func (h *Handler) deleteFile(ctx context.Context, req models.DeleteFileRequest) (models.EmptyData, error) {
	return models.EmptyData{}, h.conn.DeleteFile(ctx, req)
}

func (h *Handler) getWorkspace(ctx context.Context, _ models.GetWorkspaceRequest) (*models.WorkspaceData, error) {
	return h.workspaces.Current(ctx)
}

func (h *Handler) getWorkspaces(ctx context.Context, _ models.GetWorkspacesRequest) ([]models.WorkspaceData, error) {
	return h.workspaces.List(ctx)
}
