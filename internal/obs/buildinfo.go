package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// build_info: константа 1 с метками версии/коммита.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Staffroster API build information.",
		},
		[]string{"app", "version", "commit"},
	)

	readyOnce sync.Once
	ready     = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service can reach its store, 0 otherwise.",
	})
)

// InitBuildInfo registers build_info once and sets it for this binary.
func InitBuildInfo(app, version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(app, version, commit).Set(1)
}

// SetReady records the readiness probe outcome.
func SetReady(ok bool) {
	readyOnce.Do(func() {
		prometheus.MustRegister(ready)
	})
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}
