package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons recorded on FramesRejected.
const (
	reasonMalformed     = "malformed"
	reasonUnknownType   = "unknown_type"
	reasonNotJoined     = "not_joined"
	reasonAlreadyJoined = "already_joined"
	reasonEmptyUsername = "empty_username"
	reasonRateLimited   = "rate_limited"
	reasonTooLarge      = "too_large"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linechat_connections_active",
		Help: "Connections currently held in the registry",
	})

	UsersJoined = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linechat_users_joined",
		Help: "Registered connections that have completed a join",
	})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linechat_frames_received_total",
		Help: "Decoded client frames by message type",
	}, []string{"type"})

	FramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linechat_frames_rejected_total",
		Help: "Client frames dropped without dispatch, by reason",
	}, []string{"reason"})

	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linechat_broadcasts_total",
		Help: "Server messages fanned out, by message type",
	}, []string{"type"})

	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linechat_deliveries_total",
		Help: "Frames queued for a recipient during broadcast",
	})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linechat_delivery_failures_total",
		Help: "Frames that could not be queued or written for a recipient",
	})

	Disconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linechat_disconnects_total",
		Help: "Connections torn down, by cause",
	}, []string{"cause"})

	ForcedCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linechat_forced_closes_total",
		Help: "Connections force-closed after the shutdown grace period",
	})
)
