package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/orchestrator"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
	"git.home.luguber.info/inful/projectbuilder/internal/server/responses"
)

// ProjectService is the part of the orchestrator the API exposes.
type ProjectService interface {
	Create(ctx context.Context, spec project.Spec) (*project.Project, error)
	Get(ctx context.Context, projectID string) (*project.Project, error)
	List(ctx context.Context, filter project.Filter, page project.Page) (project.PageResult, error)
	Select(ctx context.Context) ([]project.Summary, error)
	Delete(ctx context.Context, projectID string) error
	Build(ctx context.Context, projectID string) (project.BuildRun, error)
	Cancel(ctx context.Context, projectID string) (bool, error)
	Running(projectID string) (project.BuildRun, bool)
	Filelist(ctx context.Context, projectID string) ([]project.ArtifactEntry, error)
	Runs(ctx context.Context, projectID string, limit int) ([]project.BuildRun, error)
	Log(ctx context.Context, projectID string, seq int64) (io.ReadCloser, error)
	Events(ctx context.Context, projectID string, seq int64) ([]eventstore.Event, error)
	ProjectEvents(ctx context.Context, projectID string, limit int) ([]eventstore.Event, error)
}

// ProjectHandlers serves /api/projects.
type ProjectHandlers struct {
	svc          ProjectService
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewProjectHandlers creates the project handlers.
func NewProjectHandlers(svc ProjectService) *ProjectHandlers {
	return &ProjectHandlers{svc: svc, errorAdapter: ferrors.NewHTTPErrorAdapter(slog.Default())}
}

func (h *ProjectHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.errorAdapter.WriteErrorResponse(w, r, err)
}

func (h *ProjectHandlers) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSONPretty(w, r, status, v); err != nil {
		h.fail(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write response").Build())
	}
}

// HandleCreate handles POST /api/projects.
func (h *ProjectHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var spec project.Spec
	if err := decodeJSON(r, &spec); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Create(r.Context(), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/projects/"+p.ID)
	h.respond(w, r, http.StatusCreated, p.Public())
}

// HandleList handles GET /api/projects?name=&status=&page=&size=.
func (h *ProjectHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := project.Filter{Name: q.Get("name")}
	if raw := q.Get("status"); raw != "" {
		filter.Status = project.ParseStatus(raw)
		if filter.Status == "" {
			h.fail(w, r, ferrors.ValidationError("unknown build status").WithContext("status", raw).Build())
			return
		}
	}
	number, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := queryInt(r, "size")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.List(r.Context(), filter, project.Page{Number: number, Size: size})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i, p := range res.Items {
		res.Items[i] = p.Public()
	}
	h.respond(w, r, http.StatusOK, res)
}

// HandleSelect handles GET /api/projects/select.
func (h *ProjectHandlers) HandleSelect(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Select(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, summaries)
}

// HandleGet handles GET /api/projects/{id}.
func (h *ProjectHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, p.Public())
}

// HandleDelete handles DELETE /api/projects/{id}.
func (h *ProjectHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, responses.DeleteResponse{ProjectID: id, Deleted: true})
}

// HandleBuild handles POST /api/projects/{id}/build. It returns when the build
// is terminal. A client disconnect does not cancel the build; use the cancel
// endpoint for that.
func (h *ProjectHandlers) HandleBuild(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := orchestrator.WithTrigger(context.WithoutCancel(r.Context()), orchestrator.TriggerAPI)

	run, err := h.svc.Build(ctx, id)
	if err != nil && run.Seq == 0 {
		// rejected before a run existed: not found or already in progress
		h.fail(w, r, err)
		return
	}
	resp := responses.BuildResponse{Run: run}
	status := http.StatusOK
	if err != nil {
		status = h.errorAdapter.StatusCodeFor(err)
		formatted := h.errorAdapter.FormatErrorResponse(err)
		resp.Error = formatted.Error
		resp.Code = formatted.Code
		slog.Warn("Build ended with a fault", logfields.ProjectID(id), logfields.BuildSeq(run.Seq), logfields.Error(err))
	}
	h.respond(w, r, status, resp)
}

// HandleCancel handles POST /api/projects/{id}/cancel.
func (h *ProjectHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancelled, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if !cancelled {
		status = http.StatusOK
	}
	h.respond(w, r, status, responses.CancelResponse{ProjectID: id, Cancelled: cancelled})
}

// HandleFiles handles GET /api/projects/{id}/files.
func (h *ProjectHandlers) HandleFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	files, err := h.svc.Filelist(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, responses.FilesResponse{ProjectID: id, Files: files})
}

// HandleRuns handles GET /api/projects/{id}/runs?limit=.
func (h *ProjectHandlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	runs, err := h.svc.Runs(r.Context(), id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := responses.RunsResponse{ProjectID: id, Runs: runs}
	if running, ok := h.svc.Running(id); ok {
		resp.Running = &running
	}
	h.respond(w, r, http.StatusOK, resp)
}

// HandleLog handles GET /api/projects/{id}/runs/{seq}/log and streams the log as text.
func (h *ProjectHandlers) HandleLog(w http.ResponseWriter, r *http.Request) {
	seq, err := pathSeq(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rc, err := h.svc.Log(r.Context(), r.PathValue("id"), seq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Streaming build log failed", logfields.Error(err))
	}
}

// HandleEvents handles GET /api/projects/{id}/runs/{seq}/events.
func (h *ProjectHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	seq, err := pathSeq(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	evs, err := h.svc.Events(r.Context(), id, seq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := responses.EventsResponse{BuildID: project.RunID(id, seq), Events: eventResponses(evs)}
	h.respond(w, r, http.StatusOK, resp)
}

// HandleProjectEvents handles GET /api/projects/{id}/events?limit= and lists
// the newest events across all runs of a project.
func (h *ProjectHandlers) HandleProjectEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	evs, err := h.svc.ProjectEvents(r.Context(), id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, responses.ProjectEventsResponse{ProjectID: id, Events: eventResponses(evs)})
}

func eventResponses(evs []eventstore.Event) []responses.EventResponse {
	out := make([]responses.EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, responses.EventResponse{
			Type:      ev.Type(),
			BuildID:   ev.BuildID(),
			Timestamp: ev.Timestamp(),
			Metadata:  ev.Metadata(),
			Payload:   ev.Payload(),
		})
	}
	return out
}
