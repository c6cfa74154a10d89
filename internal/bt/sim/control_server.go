package sim

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ControlServer exposes the simulated devices over HTTP so values can be
// changed and notifications triggered while a session is running.
//
//	GET  /api/devices
//	GET  /api/devices/{id}
//	POST /api/devices/{id}/set?heartRate=&elapsed=&calories=
//	POST /api/devices/{id}/push[?attribute=heart_rate|workout&hex=...]
//	POST /api/devices/{id}/drop
type ControlServer struct {
	server  *http.Server
	adapter *Adapter
	logger  logrus.FieldLogger
}

func NewControlServer(addr string, adapter *Adapter, logger logrus.FieldLogger) *ControlServer {
	router := mux.NewRouter()
	s := &ControlServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		adapter: adapter,
		logger:  logger,
	}

	router.Use(s.loggingMiddleware)
	router.HandleFunc("/api/devices", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{id}", s.handleGetState).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{id}/set", s.handleSet).Methods(http.MethodPost)
	router.HandleFunc("/api/devices/{id}/push", s.handlePush).Methods(http.MethodPost)
	router.HandleFunc("/api/devices/{id}/drop", s.handleDrop).Methods(http.MethodPost)
	return s
}

func (s *ControlServer) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is cancelled or the listener fails.
func (s *ControlServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Sim: control API on http://%s/api/devices", s.server.Addr)
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

func (s *ControlServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"query":    r.URL.RawQuery,
			"duration": time.Since(start),
		}).Debug("Sim: control request")
	})
}

func (s *ControlServer) device(w http.ResponseWriter, r *http.Request) (*Device, bool) {
	id := mux.Vars(r)["id"]
	d, ok := s.adapter.Device(id)
	if !ok {
		http.Error(w, "unknown device: "+id, http.StatusNotFound)
		return nil, false
	}
	return d, true
}

func (s *ControlServer) handleList(w http.ResponseWriter, r *http.Request) {
	devices := s.adapter.Devices()
	states := make([]DeviceState, 0, len(devices))
	for _, d := range devices {
		states = append(states, d.State())
	}
	s.writeJSON(w, states)
}

func (s *ControlServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, d.State())
}

func (s *ControlServer) handleSet(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	state := d.State()

	if v := q.Get("heartRate"); v != "" {
		bpm, err := strconv.Atoi(v)
		if err != nil || bpm < 0 || bpm > 0xffff {
			http.Error(w, "invalid heartRate", http.StatusBadRequest)
			return
		}
		d.SetHeartRate(bpm)
	}
	elapsed, calories := state.ElapsedSeconds, state.CaloriesKcal
	if v := q.Get("elapsed"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			http.Error(w, "invalid elapsed", http.StatusBadRequest)
			return
		}
		elapsed = uint32(n)
	}
	if v := q.Get("calories"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			http.Error(w, "invalid calories", http.StatusBadRequest)
			return
		}
		calories = f
	}
	d.SetWorkout(elapsed, calories)
	s.writeJSON(w, d.State())
}

func (s *ControlServer) handlePush(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var raw []byte
	if v := q.Get("hex"); v != "" {
		b, err := hex.DecodeString(v)
		if err != nil {
			http.Error(w, "invalid hex payload", http.StatusBadRequest)
			return
		}
		raw = b
	}

	var delivered bool
	switch q.Get("attribute") {
	case "":
		if raw != nil {
			http.Error(w, "attribute is required with hex", http.StatusBadRequest)
			return
		}
		hr := d.PushHeartRate()
		wk := d.PushWorkout()
		delivered = hr || wk
	case "heart_rate":
		delivered = s.push(d, bt.CharUUIDHeartRateMeasurement, raw)
	case "workout":
		delivered = s.push(d, bt.CharUUIDWorkoutData, raw)
	default:
		http.Error(w, "unknown attribute", http.StatusBadRequest)
		return
	}
	if !delivered {
		http.Error(w, "no subscriber", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ControlServer) push(d *Device, attrUUID string, raw []byte) bool {
	if raw == nil {
		raw = d.payload(attrUUID)
	}
	return d.Push(attrUUID, raw)
}

func (s *ControlServer) handleDrop(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	if !d.Drop() {
		http.Error(w, "device not connected", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ControlServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Sim: failed to encode response")
	}
}
