package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, verifier httpmw.AccessVerifier, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint authenticates its own handshake and must not be wrapped
	// by the timeout or the response writer of the access log.
	r.Get("/ws", wsHandler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.WithRequestLogger)
		pr.Use(httpmw.RequestLogger)
		pr.Use(httpmw.Auth(verifier))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/me", h.Me)
		pr.Patch("/me", h.UpdateMe)
		pr.Get("/users/lookup", h.LookupUser)

		pr.Route("/conversations", func(rc chi.Router) {
			rc.Get("/", h.ListConversations)
			rc.Post("/", h.CreateConversation)

			rc.Route("/{id}", func(rr chi.Router) {
				rr.Get("/participants", h.ListParticipants)
				rr.Post("/participants", h.AddParticipant)
				rr.Delete("/participants/{userId}", h.RemoveParticipant)
				rr.Get("/messages", h.ListMessages)
			})
		})

		pr.Route("/messages", func(rm chi.Router) {
			rm.Post("/", h.SendMessage)
			rm.Patch("/{id}", h.EditMessage)
			rm.Delete("/{id}", h.DeleteMessage)
		})
	})

	return r
}
