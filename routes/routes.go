package routes

import (
	"net/http"

	"github.com/Dosada05/bracket-engine/handlers"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Bracket    *handlers.BracketHandler
	Match      *handlers.MatchHandler
	Submission *handlers.SubmissionHandler
	Dispute    *handlers.DisputeHandler
	WebSocket  *handlers.WebSocketHandler
}

func InitRoutes(h Handlers) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Route("/brackets", func(r chi.Router) {
		r.Post("/", h.Bracket.Generate)
		r.Get("/{bracketID}", h.Bracket.GetSnapshot)
		r.Post("/{bracketID}/finalize", h.Bracket.Finalize)
		r.Post("/{bracketID}/cancel", h.Bracket.Cancel)
		r.Post("/{bracketID}/swiss/next-round", h.Bracket.NextSwissRound)
		r.Get("/{bracketID}/standings", h.Bracket.Standings)
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", h.Match.Get)
		r.Post("/{matchID}/check-in/open", h.Match.OpenCheckIn)
		r.Post("/{matchID}/check-in", h.Match.CheckIn)
		r.Post("/{matchID}/ready", h.Match.MarkReady)
		r.Post("/{matchID}/start", h.Match.Start)
		r.Post("/{matchID}/forfeit", h.Match.Forfeit)
		r.Post("/{matchID}/cancel", h.Match.Cancel)
		r.Post("/{matchID}/force-complete", h.Match.ForceComplete)
		r.Post("/{matchID}/reschedule", h.Match.Reschedule)

		r.Post("/{matchID}/result", h.Submission.Submit)
		r.Get("/{matchID}/result/pending", h.Submission.GetPendingForMatch)
		r.Post("/{matchID}/disputes", h.Dispute.Open)
		r.Post("/{matchID}/disputes/reopen", h.Dispute.ReopenCompleted)
	})

	router.Route("/submissions", func(r chi.Router) {
		r.Get("/{submissionID}", h.Submission.Get)
		r.Post("/{submissionID}/confirm", h.Submission.Confirm)
	})

	router.Route("/disputes", func(r chi.Router) {
		r.Get("/{disputeID}", h.Dispute.Get)
		r.Post("/{disputeID}/review", h.Dispute.Review)
		r.Post("/{disputeID}/escalate", h.Dispute.Escalate)
		r.Post("/{disputeID}/resolve", h.Dispute.Resolve)
		r.Post("/{disputeID}/withdraw", h.Dispute.Withdraw)
		r.Post("/{disputeID}/evidence", h.Dispute.AttachEvidence)
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	return router
}
