package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Dosada05/arena-tournaments/handlers"
	"github.com/Dosada05/arena-tournaments/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	battleHandler *handlers.BattleHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate([]byte(jwtSecret))
	modOnly := middleware.Authorize(middleware.RoleMod)

	router.Post("/auth/token", authHandler.Token)

	router.Get("/tournaments", tournamentHandler.List)

	router.Route("/tournaments/{room}", func(r chi.Router) {
		// Read-only state, open to anyone.
		r.Get("/users", tournamentHandler.Users)
		r.Get("/history", tournamentHandler.History)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/join", tournamentHandler.Join)
			r.Post("/leave", tournamentHandler.Leave)
			r.Post("/update", tournamentHandler.Update)
			r.Post("/challenge", tournamentHandler.Challenge)
			r.Post("/challenge/cancel", tournamentHandler.CancelChallenge)
			r.Post("/challenge/accept", tournamentHandler.AcceptChallenge)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(modOnly)

			r.Post("/", tournamentHandler.Create)
			r.Delete("/", tournamentHandler.Delete)
			r.Post("/type", tournamentHandler.SetType)
			r.Post("/start", tournamentHandler.Start)
			r.Post("/disqualify", tournamentHandler.Disqualify)
			r.Post("/autostart", tournamentHandler.SetAutoStart)
			r.Post("/autodq", tournamentHandler.SetAutoDisqualify)
			r.Post("/autodq/run", tournamentHandler.RunAutoDisqualify)
			r.Post("/scouting", tournamentHandler.SetScouting)
			r.Post("/modjoin", tournamentHandler.SetModJoin)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/battles/{battleID}/result", battleHandler.Result)
		r.Get("/ws/tournaments/{room}", webSocketHandler.ServeWs)
	})
}
