package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/handlers"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/logging"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable kind and code of a failure.
type ErrorDetail struct {
	Kind    gameerr.Kind `json:"kind"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message"`
}

// Server exposes the dispatcher over HTTP.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	identities identity.Provider
	logger     *slog.Logger
	mux        *http.ServeMux
}

// NewServer builds the route table.
func NewServer(d *dispatcher.Dispatcher, ids identity.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dispatcher: d, identities: ids, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.healthz)

	s.handle("POST /api/location", handlers.CmdReportLocation)
	s.handle("GET /api/me", handlers.CmdPlayer)
	s.handle("GET /api/inventory", handlers.CmdInventory)
	s.handle("GET /api/events", handlers.CmdEvents)
	s.handle("POST /api/player/death", handlers.CmdReportDeath)
	s.handle("POST /api/player/loot", handlers.CmdLootPlayer)

	s.handle("POST /api/artifacts/{id}/extraction", handlers.CmdStartExtraction)
	s.handle("POST /api/artifacts/{id}/extraction/complete", handlers.CmdCompleteExtraction)
	s.handle("DELETE /api/artifacts/{id}/extraction", handlers.CmdCancelExtraction)
	s.handle("POST /api/artifacts/{id}/drop", handlers.CmdDropArtifact)

	s.handle("GET /api/quests", handlers.CmdQuests)
	s.handle("POST /api/quests/{id}/accept", handlers.CmdAcceptQuest)
	s.handle("POST /api/quests/{id}/cancel", handlers.CmdCancelQuest)
	s.handle("POST /api/quests/{id}/claim", handlers.CmdClaimQuest)
	s.handle("POST /api/quests/{id}/deliver", handlers.CmdDeliverQuest)
	s.handle("POST /api/quests/{id}/confirm", handlers.CmdConfirmQuest)

	s.handle("POST /api/traders/{id}/sessions", handlers.CmdStartTrade)
	s.handle("GET /api/trade/sessions/{id}/catalog", handlers.CmdCatalog)
	s.handle("POST /api/trade/sessions/{id}/settle", handlers.CmdSettleTrade)

	s.handle("POST /api/inventory/{itemId}/use", handlers.CmdUseItem)
	s.handle("POST /api/inventory/{itemId}/equip", handlers.CmdEquipItem)
	s.handle("POST /api/inventory/{itemId}/unequip", handlers.CmdUnequipItem)
	s.handle("POST /api/inventory/{itemId}/redeem", handlers.CmdRedeemItem)

	s.handle("POST /api/admin/players", handlers.CmdRegisterPlayer)
	s.handle("POST /api/admin/zones", handlers.CmdUpsertZone)
	s.handle("POST /api/admin/artifacts", handlers.CmdSpawnArtifact)
	s.handle("POST /api/admin/items", handlers.CmdUpsertItem)
	s.handle("POST /api/admin/traders", handlers.CmdUpsertTrader)
	s.handle("POST /api/admin/inventories", handlers.CmdStockInventory)
	s.handle("POST /api/admin/quests", handlers.CmdPublishQuest)
	s.handle("POST /api/admin/kills", handlers.CmdRecordKill)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathParams lists the wildcards of pattern.
func pathParams(pattern string) []string {
	var names []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, strings.Trim(seg, "{}"))
		}
	}
	return names
}

func (s *Server) handle(pattern, command string) {
	params := pathParams(pattern)
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(),
			slog.String("requestId", uuid.NewString()),
			slog.String("command", command),
		)

		caller, err := s.identities.Resolve(ctx, bearer(r))
		if err != nil {
			s.writeError(ctx, w, err)
			return
		}
		ctx = identity.WithIdentity(ctx, caller)
		ctx = logging.WithAttrs(ctx, slog.String("player", caller.PlayerID))

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			s.writeError(ctx, w, gameerr.Validation(gameerr.CodeInvalidInput, "reading body: %v", err))
			return
		}
		if len(body) > maxBody {
			s.writeError(ctx, w, gameerr.Validation(gameerr.CodeInvalidInput, "request body exceeds %d bytes", maxBody))
			return
		}

		e := dispatcher.Event{
			Command: command,
			Caller:  caller,
			Body:    body,
			Params:  make(map[string]string, len(params)),
		}
		for _, name := range params {
			e.Params[name] = r.PathValue(name)
		}

		result, err := s.dispatcher.Dispatch(ctx, e)
		if err != nil {
			s.writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		s.logger.DebugContext(ctx, "request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch gameerr.KindOf(err) {
	case gameerr.KindValidation:
		return http.StatusBadRequest
	case gameerr.KindNotFound:
		return http.StatusNotFound
	case gameerr.KindForbidden:
		return http.StatusForbidden
	case gameerr.KindConflict:
		return http.StatusConflict
	case gameerr.KindPrecondition:
		return http.StatusPreconditionFailed
	case gameerr.KindExpired:
		return http.StatusGone
	case gameerr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusOf(err)
	detail := ErrorDetail{
		Kind:    gameerr.KindOf(err),
		Code:    gameerr.CodeOf(err),
		Message: err.Error(),
	}
	var ge *gameerr.Error
	if errors.As(err, &ge) && ge.Message != "" {
		detail.Message = ge.Message
	}
	switch status {
	case http.StatusUnauthorized:
		detail.Kind = gameerr.KindForbidden
		detail.Code = "UNAUTHENTICATED"
	case http.StatusServiceUnavailable:
		detail.Kind = gameerr.KindTransient
	case http.StatusInternalServerError:
		s.logger.ErrorContext(ctx, "request failed", "error", err)
		detail.Message = "internal error"
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
