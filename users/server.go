package users

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorResponse is the body of non-2xx replies
type ErrorResponse struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

// NewRouter serves dir read-only:
//
//	GET /users        all users
//	GET /users/{id}   one user, 404 when unknown
func NewRouter(dir Directory, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	dir = dir.Clone()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))

	r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
		users := dir.Users
		if users == nil {
			users = []User{}
		}
		render.JSON(w, r, users)
	})
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		u, ok := dir.Find(id)
		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, &ErrorResponse{
				ErrorType:    "User.NotFound",
				ErrorMessage: "no user with id " + id,
			})
			return
		}
		render.JSON(w, r, u)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, &ErrorResponse{
			ErrorType:    "Route.NotFound",
			ErrorMessage: r.Method + " " + r.URL.Path,
		})
	})

	return r
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
