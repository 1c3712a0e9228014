package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_stats",
		Help: "Current state of the database connection pool.",
	},
	[]string{"state"}, // 'total', 'idle', 'in_use'
)

func SetDBPoolStats(s sql.DBStats) {
	dbPoolStats.WithLabelValues("total").Set(float64(s.OpenConnections))
	dbPoolStats.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(s.InUse))
}
