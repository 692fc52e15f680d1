package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardioscore",
			Name:      "predictions_total",
			Help:      "Total number of scored predictions, partitioned by risk tier and label.",
		},
		[]string{"tier", "label"},
	)

	validationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardioscore",
			Name:      "validation_failures_total",
			Help:      "Prediction requests rejected by input validation.",
		},
	)

	contractViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardioscore",
			Name:      "probability_contract_violations_total",
			Help:      "Predictions whose class probabilities did not sum to 1.",
		},
	)

	predictionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cardioscore",
			Name:      "prediction_seconds",
			Help:      "Time spent scoring and assembling a prediction.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)
)

// Register attaches collectors to reg; already-registered collectors are skipped.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		predictionsTotal,
		validationFailuresTotal,
		contractViolationsTotal,
		predictionSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObservePrediction(duration time.Duration, tier string, label int) {
	predictionsTotal.WithLabelValues(tier, strconv.Itoa(label)).Inc()
	if duration < 0 {
		duration = 0
	}
	predictionSeconds.Observe(duration.Seconds())
}

func ObserveValidationFailure() {
	validationFailuresTotal.Inc()
}

func ObserveContractViolation() {
	contractViolationsTotal.Inc()
}
