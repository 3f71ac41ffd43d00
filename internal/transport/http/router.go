package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/auth"
)

// RouterConfig collects the collaborators served by NewRouter. Tokens and
// Submissions are optional; without them the reference endpoints are not
// mounted.
type RouterConfig struct {
	Attempts       *app.AttemptController
	Identities     app.IdentityResolver
	Tokens         *auth.Tokens
	Submissions    SubmissionRecorder
	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter wires the attempt API, the countdown stream and the reference
// collaborator endpoints behind CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	if cfg.Tokens != nil || cfg.Submissions != nil {
		ref := NewReferenceHandler(cfg.Tokens, cfg.Submissions, log)
		if cfg.Tokens != nil {
			router.HandleFunc("/api/user", ref.User).Methods("GET", "OPTIONS")
		}
		if cfg.Submissions != nil {
			router.HandleFunc("/api/submit-quiz", ref.SubmitQuiz).Methods("POST", "OPTIONS")
		}
	}

	attempts := NewAttemptHandler(cfg.Attempts)
	api := router.PathPrefix("/api/quizzes/{quizId}").Subrouter()
	api.Use(requireIdentity(cfg.Identities))
	api.HandleFunc("/attempt", attempts.Enter).Methods("GET")
	api.HandleFunc("/attempt/start", attempts.Start).Methods("POST")
	api.HandleFunc("/attempt/cancel", attempts.Cancel).Methods("POST")
	api.HandleFunc("/attempt/confirm", attempts.Confirm).Methods("POST")
	api.HandleFunc("/attempt/answers/{questionId}", attempts.Answer).Methods("PUT")
	api.HandleFunc("/attempt/submit", attempts.Submit).Methods("POST")
	api.HandleFunc("/attempt/retry", attempts.Retry).Methods("POST")

	// Non-browser clients send no Origin header.
	checkOrigin := func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || corsMiddleware.OriginAllowed(r)
	}
	stream := NewStreamHandler(cfg.Attempts, log, checkOrigin)
	ws := router.PathPrefix("/ws/quizzes/{quizId}").Subrouter()
	ws.Use(requireIdentity(cfg.Identities))
	ws.HandleFunc("/attempt", stream.ServeWS)

	return corsMiddleware.Handler(router)
}
