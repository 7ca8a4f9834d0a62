// Package metrics exposes the cart-service Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart store operations by name.",
	}, []string{"operation"})

	CouponApplications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_coupon_applications_total",
		Help: "Coupon apply attempts by result.",
	}, []string{"result"})

	PersistWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_writes_total",
		Help: "Persisted record writes by record and result (written, skipped, failed).",
	}, []string{"record", "result"})

	StalenessEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_staleness_evictions_total",
		Help: "Carts reset at hydration because the persisted record was stale.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_active_sessions",
		Help: "Cart sessions currently held in memory.",
	})

	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_notifications_published_total",
		Help: "Notifications sent to the message broker by result.",
	}, []string{"result"})
)
