package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. HTTP traffic is instrumented separately by the
// middleware package; these cover the background and workflow paths that
// never surface as a request.
var (
	// EmbeddingFailures counts embedding calls that produced no vector, by
	// channel (text|image|multimodal).
	EmbeddingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrace_embedding_failures_total",
			Help: "Embedding requests that returned no vector.",
		},
		[]string{"channel"},
	)

	// MatchesReturned observes how many candidates a match query returned.
	MatchesReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campustrace_matches_returned",
			Help:    "Number of candidates returned per match query.",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	// ProactiveNotifications counts proactive match notifications by outcome
	// (sent|duplicate|failed).
	ProactiveNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrace_proactive_notifications_total",
			Help: "Proactive match notifications by outcome.",
		},
		[]string{"outcome"},
	)

	// ProactiveQueueDropped counts tasks rejected because the queue was full.
	ProactiveQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campustrace_proactive_queue_dropped_total",
			Help: "Proactive matching tasks dropped because the queue was full.",
		},
	)

	// ClaimTransitions counts claim state changes by target status.
	ClaimTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrace_claim_transitions_total",
			Help: "Claim status transitions by resulting status.",
		},
		[]string{"status"},
	)

	// BadgesAwarded counts newly awarded badges by name.
	BadgesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campustrace_badges_awarded_total",
			Help: "Badges newly awarded, by badge name.",
		},
		[]string{"badge"},
	)

	// PushFailures counts push deliveries that failed.
	PushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campustrace_push_failures_total",
			Help: "Push notification deliveries that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EmbeddingFailures,
		MatchesReturned,
		ProactiveNotifications,
		ProactiveQueueDropped,
		ClaimTransitions,
		BadgesAwarded,
		PushFailures,
	)
}
