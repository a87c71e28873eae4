// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "referralbot"

// RegistrationsTotal counts registration attempts.
// Label result: "created", "conflict" or "error".
// Label source: "telegram" or "http".
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Registration attempts by result and source.",
	},
	[]string{"result", "source"},
)

// RedemptionsTotal counts promo redemption outcomes
// ("accepted", "invalid_code", "already_used", "self_referral", "error").
var RedemptionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "promo_redemptions_total",
		Help:      "Promo redemption attempts by outcome.",
	},
	[]string{"outcome"},
)

// PromoCollisionsTotal counts generated promo codes that hit the uniqueness constraint.
var PromoCollisionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "promo_code_collisions_total",
		Help:      "Generated promo codes rejected by the uniqueness constraint.",
	},
)

// ReferralPaymentsTotal counts referral payment confirmations ("credited", "duplicate", "error").
var ReferralPaymentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_payments_total",
		Help:      "Referral payment confirmations by result.",
	},
	[]string{"result"},
)

// BroadcastDeliveriesTotal counts broadcast sends ("sent" or "failed").
var BroadcastDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_deliveries_total",
		Help:      "Broadcast message deliveries by result.",
	},
	[]string{"result"},
)

// ActiveSessions tracks users currently in the middle of a dialogue flow.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions currently waiting for the next step of a flow.",
	},
)

// UpdatesDedupTotal counts Telegram update de-duplication checks: "hit" for a
// repeat, "miss" for a fresh update, "error" when Redis could not answer.
var UpdatesDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_dedup_total",
		Help:      "Telegram update de-duplication checks by result.",
	},
	[]string{"result"},
)
