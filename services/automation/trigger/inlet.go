package trigger

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trackerflow/automation-engine/infrastructure/httputil"
	"github.com/trackerflow/automation-engine/services/automation/audit"
	"github.com/trackerflow/automation-engine/services/automation/webhook"
)

// InletSecrets resolves the shared secret configured for a webhook inlet,
// used to verify incoming deliveries before they reach HandleWebhook.
type InletSecrets interface {
	SecretFor(inletID string) (string, bool)
}

// InletServer exposes one HTTP route per registered inlet id via
// gorilla/mux, the teacher's own router choice for this service, plus one
// shared route relaying the tracker's own native issue-change
// notifications (ISSUE_CREATED/ISSUE_UPDATED/... triggers) into
// Manager.HandleEvent — the WEBHOOK trigger's per-rule inlets only cover
// the WEBHOOK trigger type, not the event-subscription trigger types.
type InletServer struct {
	manager      *Manager
	secrets      InletSecrets
	router       *mux.Router
	audit        *audit.Sink
	eventsSecret string
}

func NewInletServer(manager *Manager, secrets InletSecrets) *InletServer {
	s := &InletServer{manager: manager, secrets: secrets, router: mux.NewRouter()}
	s.router.HandleFunc("/webhooks/{inletId}", s.handleInbound).Methods(http.MethodPost)
	s.router.HandleFunc("/events", s.handleEvent).Methods(http.MethodPost)
	return s
}

// WithAudit attaches an audit sink so rejected deliveries (bad signature,
// malformed body) are recorded with the caller's source IP, not just
// rejected silently. Optional: a server with no sink attached just skips
// the record call.
func (s *InletServer) WithAudit(sink *audit.Sink) *InletServer {
	s.audit = sink
	return s
}

// WithEventsSecret arms the /events relay's signature check. An empty
// secret leaves that route unauthenticated (no header to verify against).
func (s *InletServer) WithEventsSecret(secret string) *InletServer {
	s.eventsSecret = secret
	return s
}

func (s *InletServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *InletServer) handleInbound(w http.ResponseWriter, r *http.Request) {
	inletID := mux.Vars(r)["inletId"]

	body, truncated, err := httputil.ReadAllWithLimit(r.Body, httputil.ResolveMaxBodyBytes(0, 1<<20))
	if err != nil {
		httputil.BadRequest(w, "failed to read request body")
		return
	}
	if truncated {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body exceeds the inlet's size limit")
		return
	}

	if secret, ok := s.secrets.SecretFor(inletID); ok && secret != "" {
		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" || !webhook.Verify(body, sig, secret) {
			s.recordRejection(inletID, r)
			httputil.Unauthorized(w, "invalid signature")
			return
		}
	}

	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
	}

	s.manager.HandleWebhook(r.Context(), inletID, payload)
	w.WriteHeader(http.StatusAccepted)
}

// issueEventPayload is the shape of a tracker-native issue-change
// notification relayed into Manager.HandleEvent. Kind must match one of
// eventTypeForKind's keys (e.g. "issue-created", "field-changed").
type issueEventPayload struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

func (s *InletServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, truncated, err := httputil.ReadAllWithLimit(r.Body, httputil.ResolveMaxBodyBytes(0, 1<<20))
	if err != nil {
		httputil.BadRequest(w, "failed to read request body")
		return
	}
	if truncated {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body exceeds the event relay's size limit")
		return
	}

	if s.eventsSecret != "" {
		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" || !webhook.Verify(body, sig, s.eventsSecret) {
			s.recordRejection("events", r)
			httputil.Unauthorized(w, "invalid signature")
			return
		}
	}

	var evt issueEventPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &evt); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
	}
	if evt.Kind == "" {
		httputil.BadRequest(w, "kind is required")
		return
	}

	s.manager.HandleEvent(r.Context(), evt.Kind, evt.Payload)
	w.WriteHeader(http.StatusAccepted)
}

// recordRejection audits a rejected delivery, keyed by the caller's
// apparent source IP rather than a principal (inbound webhook callers
// aren't authenticated principals).
func (s *InletServer) recordRejection(inletID string, r *http.Request) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.KindAuthFailure, audit.OutcomeBlocked, "", "webhook_inlet_delivery", inletID, "",
		map[string]any{"source_ip": httputil.ClientIP(r)})
}
