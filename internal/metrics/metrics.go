package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// session lifecycle
	ScanResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_scan_results_total",
		Help: "Scans by outcome (found, duplicate, cancelled, timeout, error)",
	}, []string{"result"})

	ConnectResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_connect_results_total",
		Help: "Connection attempts by outcome (connected, timeout, no_gatt, rejected, error)",
	}, []string{"result"})

	PartialServiceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitlink_partial_service_failures_total",
		Help: "Attribute groups whose enumeration or setup failed while connecting",
	})

	SessionConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitlink_session_connected",
		Help: "1 while a peripheral session is connected",
	})

	// payloads
	PayloadsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_payloads_received_total",
		Help: "Characteristic payloads received, by attribute and source (read, notify)",
	}, []string{"attribute", "source"})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_decode_failures_total",
		Help: "Payloads that failed to decode, by attribute",
	}, []string{"attribute"})

	// snapshot values
	HeartRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitlink_heart_rate_bpm",
		Help: "Last decoded heart rate",
	})

	ElapsedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitlink_elapsed_seconds",
		Help: "Last decoded workout elapsed time",
	})

	CaloriesKcal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitlink_calories_kcal",
		Help: "Last decoded workout energy",
	})
)

// Server serves /metrics until ctx is done.
type Server struct {
	server *http.Server
	logger logrus.FieldLogger
}

func NewServer(addr string, logger logrus.FieldLogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run blocks until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Metrics: serving on http://%s/metrics", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
