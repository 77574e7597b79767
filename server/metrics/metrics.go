// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tetris"

var (
	// TokenChecks counts derived-token verifications by kind
	// ("highscore", "connect") and result ("ok", "missing", "malformed", "mismatch").
	TokenChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_checks_total",
		Help:      "Derived token verifications by kind and result.",
	}, []string{"kind", "result"})

	HighscoresAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "highscores_accepted_total",
		Help:      "Highscore submissions added to the leaderboard.",
	})

	HighscoresRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "highscores_rejected_total",
		Help:      "Highscore submissions refused, by reason.",
	}, []string{"reason"})

	Games = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "games",
		Help:      "Games currently known to the lobby, by state.",
	}, []string{"state"})

	GamesCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_canceled_total",
		Help:      "Games removed before finishing, by reason.",
	}, []string{"reason"})

	LobbySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lobby_subscribers",
		Help:      "Open /games event streams.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
