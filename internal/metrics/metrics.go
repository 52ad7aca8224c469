package metrics

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "auth_attempts_total",
		Help:      "Authentication attempts by outcome (success, failure, signaled).",
	}, []string{"result"})

	saverRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "saver_restarts_total",
		Help:      "Saver child restarts after an unexpected exit, per slot.",
	}, []string{"slot"})

	inputDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "auth_input_dropped_total",
		Help:      "Keystroke batches dropped on a full auth input pipe.",
	})

	sessionLocked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil",
		Name:      "session_locked",
		Help:      "Whether the session is currently locked (1) or unlocked (0).",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vigil",
		Name:      "build_info",
		Help:      "Build metadata for the running vigil binary.",
	}, []string{"go_version", "vcs_revision", "vcs_time"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(authAttempts, saverRestarts, inputDropped, sessionLocked, buildInfo)
}

// Registry returns the Prometheus registry containing all vigil metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Auth attempt outcomes.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultSignaled = "signaled"
)

// IncAuthAttempt records one finished authentication attempt.
func IncAuthAttempt(result string) {
	if result == "" {
		return
	}
	authAttempts.WithLabelValues(result).Inc()
}

// IncSaverRestart records one saver respawn after an unexpected exit.
func IncSaverRestart(slot int) {
	saverRestarts.WithLabelValues(strconv.Itoa(slot)).Inc()
}

// IncInputDropped records a keystroke batch lost to a full pipe.
func IncInputDropped() {
	inputDropped.Inc()
}

// SetLocked records the lock state of the session.
func SetLocked(locked bool) {
	value := 0.0
	if locked {
		value = 1.0
	}
	sessionLocked.Set(value)
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs_revision": "",
			"vcs_time":     "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
