package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

type RouterOptions struct {
	// RateLimitPerMinute applies per client IP to each analysis and model route.
	// Zero disables it.
	RateLimitPerMinute int
	CORSOrigins        []string
}

// Router returns the HTTP handler for every API route.
func (h *Handler) Router(opts RouterOptions) http.Handler {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(h.log, router, method, route, handle)
	}

	ratelimited := func(method, route string, handle httprouter.Handle) {
		if opts.RateLimitPerMinute <= 0 {
			www.Handle(h.log, router, method, route, handle)
			return
		}
		limited := httprate.Limit(opts.RateLimitPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(h.log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/", h.Root)
	handle("GET", "/health", h.Health)
	handle("GET", "/model-info", h.ModelInfo)
	handle("GET", "/sample-analysis", h.SampleAnalysis)
	ratelimited("POST", "/analyze-pothole", h.AnalyzePothole)
	ratelimited("POST", "/analyze-pothole-batch", h.AnalyzeBatch)
	ratelimited("POST", "/analyze-pixels", h.AnalyzePixels)
	ratelimited("POST", "/model/create", h.CreateModel)
	ratelimited("POST", "/model/load", h.LoadModel)
	ratelimited("POST", "/model/save", h.SaveModel)

	return cors(opts.CORSOrigins, router)
}

// cors answers preflight requests and sets CORS headers for allowed origins.
func cors(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && (slices.Contains(origins, "*") || slices.Contains(origins, origin))
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusForbidden)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}
