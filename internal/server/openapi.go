package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/handler/health"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type sessionPath struct {
	SessionID string `path:"sessionID"`
}

type operation struct {
	method, path  string
	summary, desc string
	req           []any
	resp          any
	status        int
	errors        []int
	contentType   string
}

var sessionCommandErrors = []int{
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusServiceUnavailable,
}

func operations() []operation {
	return []operation{
		{
			method: http.MethodGet, path: "/healthz",
			summary: "Health check",
			desc:    "Returns the health status of backend dependencies.",
			resp:    health.Report{}, status: http.StatusOK,
		},
		{
			method: http.MethodPost, path: "/api/sessions",
			summary: "Create session",
			desc:    "Creates a draft tasting moderated by the caller. Anonymous callers get a new identity; the returned token authenticates the moderator.",
			req:     []any{CreateSessionRequest{}},
			resp:    SessionResponse{}, status: http.StatusCreated,
			errors: []int{http.StatusBadRequest},
		},
		{
			method: http.MethodPost, path: "/api/join",
			summary: "Join a session",
			desc:    "Joins the lobby the invite code resolves to. Returns a token bound to the new participant.",
			req:     []any{JoinRequest{}},
			resp:    JoinResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusTooManyRequests},
		},
		{
			method: http.MethodGet, path: "/api/sessions/{sessionID}/state",
			summary: "Get session state",
			desc:    "Returns the snapshot visible to the caller. Requires Bearer token.",
			req:     []any{sessionPath{}},
			resp:    coordinator.Snapshot{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
		},
		{
			method: http.MethodGet, path: "/api/sessions/{sessionID}/results",
			summary: "Get results",
			desc:    "Returns rankings and every locked score once the session is revealed.",
			req:     []any{sessionPath{}},
			resp:    coordinator.Results{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodGet, path: "/api/sessions/{sessionID}/events",
			summary:     "SSE event stream",
			desc:        "Server-Sent Events stream. Starts with a session:snapshot event followed by deltas in commit order. Pass token as query parameter.",
			req:         []any{sessionPath{}},
			status:      http.StatusOK,
			contentType: "text/event-stream",
		},
		{
			method: http.MethodGet, path: "/api/sessions/{sessionID}/ws",
			summary:     "Session socket",
			desc:        "Upgrades to a WebSocket carrying the event stream plus command requests and their replies.",
			req:         []any{sessionPath{}},
			status:      http.StatusSwitchingProtocols,
			contentType: "application/json",
		},
		{
			method: http.MethodPost, path: "/api/sessions/{sessionID}/whiskeys",
			summary: "Add whiskey",
			desc:    "Appends a whiskey to the lineup of a draft session. Moderator only.",
			req:     []any{sessionPath{}, AddWhiskeyRequest{}},
			resp:    coordinator.Result{}, status: http.StatusCreated,
			errors: append([]int{http.StatusBadRequest}, sessionCommandErrors...),
		},
		moderatorCommand("/open", "Open lobby", "Opens the lobby for joining."),
		moderatorCommand("/start", "Start tasting", "Starts the first whiskey."),
		{
			method: http.MethodPost, path: "/api/sessions/{sessionID}/advance",
			summary: "Advance phase",
			desc:    "Moves to the next phase. The epoch is required; a stale epoch is acknowledged with applied=false.",
			req:     []any{sessionPath{}, AdvanceRequest{}},
			resp:    coordinator.Result{}, status: http.StatusOK,
			errors: sessionCommandErrors,
		},
		moderatorCommand("/end-reveal", "End reveal", "Closes the reveal and completes the session."),
		moderatorCommand("/cancel", "Cancel session", "Ends the session early."),
		{
			method: http.MethodPost, path: "/api/sessions/{sessionID}/ready",
			summary: "Set ready",
			desc:    "Marks the caller ready or not ready in the lobby.",
			req:     []any{sessionPath{}, ReadyRequest{}},
			resp:    coordinator.Result{}, status: http.StatusOK,
			errors: sessionCommandErrors,
		},
		{
			method: http.MethodPost, path: "/api/sessions/{sessionID}/leave",
			summary: "Leave session",
			desc:    "Marks the caller as departed. Locked scores are kept.",
			req:     []any{sessionPath{}},
			resp:    coordinator.Result{}, status: http.StatusOK,
			errors: sessionCommandErrors,
		},
		{
			method: http.MethodPost, path: "/api/sessions/{sessionID}/scores",
			summary: "Submit score",
			desc:    "Locks the caller's score for the current whiskey. A score cannot be changed once locked.",
			req:     []any{sessionPath{}, ScoreRequest{}},
			resp:    coordinator.Result{}, status: http.StatusCreated,
			errors: append([]int{http.StatusBadRequest, http.StatusUnprocessableEntity}, sessionCommandErrors...),
		},
	}
}

func moderatorCommand(suffix, summary, desc string) operation {
	return operation{
		method:  http.MethodPost,
		path:    "/api/sessions/{sessionID}" + suffix,
		summary: summary,
		desc:    desc + " Moderator only.",
		req:     []any{sessionPath{}},
		resp:    coordinator.Result{},
		status:  http.StatusOK,
		errors:  sessionCommandErrors,
	}
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Tasting API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Coordinator API for blind whiskey tastings.")

	for _, op := range operations() {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.desc)
		for _, req := range op.req {
			oc.AddReqStructure(req)
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(op.status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		}
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
