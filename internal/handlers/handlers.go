package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/engine"
	"kick-haven/internal/forum"
	"kick-haven/internal/logging"
	"kick-haven/internal/middleware"
	"kick-haven/internal/utils"
	"kick-haven/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// Server holds all server dependencies
type Server struct {
	Service        *forum.Service
	Engine         *engine.Engine
	Store          database.Store
	Hub            *websocket.Hub
	Metrics        *utils.MetricsCollector
	Auth           *middleware.Authenticator
	RequestTimeout time.Duration
	AllowedOrigins []string
	VotesPerMinute int
	MetricsEnabled bool

	validate *validator.Validate
}

// NewServer creates a new Server instance with the given components
func NewServer(
	service *forum.Service,
	eng *engine.Engine,
	store database.Store,
	hub *websocket.Hub,
	metrics *utils.MetricsCollector,
	auth *middleware.Authenticator,
) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		Service:        service,
		Engine:         eng,
		Store:          store,
		Hub:            hub,
		Metrics:        metrics,
		Auth:           auth,
		RequestTimeout: 5 * time.Second, // Default timeout for requests
		AllowedOrigins: []string{"*"},
		MetricsEnabled: true,
		validate:       v,
	}
}

// Routes builds the chi router. Every endpoint has exactly one handler.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(s.AllowedOrigins)))
	r.Use(s.Auth.Identify)

	r.Get("/health", s.HandleHealth())
	if s.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	r.With(middleware.RequireAuth).Get("/ws", s.HandleWebSocket())

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.RequestTimeout))

		r.Route("/votes", func(r chi.Router) {
			r.With(middleware.RateLimitPerCaller(s.VotesPerMinute, time.Minute)).Post("/", s.HandleVote())
			r.Get("/{targetId}", s.HandleGetVoteStatus())
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.HandleListPosts())
			r.Post("/", s.HandleCreatePost())
			r.Get("/{id}", s.HandleGetPost())
			r.Put("/{id}", s.HandleEditPost())
			r.Delete("/{id}", s.HandleDeletePost())
			r.Put("/{id}/lock", s.HandleLockPost())
			r.Put("/{id}/sticky", s.HandleStickyPost())
		})

		r.Route("/comments/{parentId}", func(r chi.Router) {
			r.Get("/", s.HandleListComments())
			r.Post("/", s.HandleCreateComment())
			r.Put("/{commentId}", s.HandleEditComment())
			r.Delete("/{commentId}", s.HandleDeleteComment())
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.HandleRegisterUser())
			r.Put("/me/profile", s.HandleUpdateProfile())
			r.Put("/me/signature", s.HandleUpdateSignature())
			r.Put("/me/password", s.HandleChangePassword())
			r.Get("/{id}", s.HandleGetUser())
			r.Get("/{id}/posts", s.HandleListUserPosts())
		})

		r.With(middleware.RequireAuth).Post("/admin/reconcile/{id}", s.HandleReconcile())
	})

	return r
}

func caller(r *http.Request) forum.Identity {
	return middleware.IdentityFromContext(r.Context())
}

// writeJSON sends v with status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps err to its status and a client-safe message. The wrapped
// cause is logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := utils.AsAppError(err)
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	s.Metrics.IncrementErrors(appErr.Code)

	event := logging.Debug()
	switch {
	case status >= http.StatusInternalServerError:
		event = logging.Error()
	case utils.IsAuthError(appErr):
		// Repeated auth failures from one client are worth seeing.
		event = logging.Info()
	}
	event.Err(err).
		Str("code", appErr.Code).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Msg("request failed")

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": appErr.Message,
	})
}

// decodeJSON reads a JSON body into dst and runs struct validation.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return utils.NewInvalidArgumentError("Invalid request body")
	}
	return s.validateStruct(dst)
}

func (s *Server) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return utils.NewInvalidArgumentError("Invalid request body")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return utils.NewInvalidArgumentError("All fields are required.")
	case "email":
		return utils.NewInvalidArgumentError("Invalid email address.")
	case "min":
		return utils.NewInvalidArgumentError(fmt.Sprintf("%s must be at least %s characters.", fe.Field(), fe.Param()))
	case "max":
		return utils.NewInvalidArgumentError(fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param()))
	default:
		return utils.NewInvalidArgumentError(fmt.Sprintf("Invalid value for %s.", fe.Field()))
	}
}

// queryInt reads a positive integer query parameter, or 0 when absent.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, utils.NewInvalidArgumentError(fmt.Sprintf("Invalid %s parameter", name))
	}
	return n, nil
}
