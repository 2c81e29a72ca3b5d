package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func (app *application) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", app.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", app.API.Stats).Methods(http.MethodGet)
	r.HandleFunc("/register", app.API.Register).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/leaderboard", app.API.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", app.API.AgentByID).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/games", app.API.AgentGames).Methods(http.MethodGet)
	api.HandleFunc("/games", app.API.ListGames).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}", app.API.GameByID).Methods(http.MethodGet)

	r.HandleFunc("/play", app.handlePlay)
	r.HandleFunc("/watch/{game_id}", app.handleWatch)

	c := cors.New(cors.Options{
		AllowedOrigins: app.Config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}
