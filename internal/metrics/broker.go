package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Broker-level Prometheus metrics. Defined in a standalone package so the
// broker does not import the HTTP layer.

var (
	ConnectionsEstablished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_connections_total",
		Help: "Connections established per tool",
	}, []string{"tool"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_token_refreshes_total",
		Help: "Token refresh attempts per tool and result",
	}, []string{"tool", "result"}) // result: ok|rejected|error

	ConnectionsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_connections_dropped_total",
		Help: "Connections invalidated per tool and cause",
	}, []string{"tool", "cause"}) // cause: refresh_rejected|decrypt_failed|no_refresh_token
)

// RegisterBroker registers the broker metrics on the given registry (or the
// default if nil), tolerating duplicate registration.
func RegisterBroker(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		ConnectionsEstablished, TokenRefreshes, ConnectionsDropped,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
