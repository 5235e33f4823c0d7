package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/logging"
)

// NewHandler returns the HTTP handler serving /metrics from gatherer and /status from status.
// status may be nil, in which case /status is not served.
func NewHandler(logger logging.Logger, gatherer prometheus.Gatherer, status *Status) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	if status != nil {
		r.HandleFunc("/status", handleStatus(logger, status)).Methods("GET")
	}
	return r
}

type statusResponse struct {
	consensus.Status
	SampledAt time.Time `json:"sampled_at"`
}

func handleStatus(logger logging.Logger, status *Status) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		s, at := status.Get()
		if at.IsZero() {
			http.Error(w, "no status sampled yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statusResponse{Status: s, SampledAt: at}); err != nil {
			logger.Warnf("Failed to encode status: %v", err)
		}
	}
}

// Serve serves handler on lis until ctx is canceled.
func Serve(ctx context.Context, logger logging.Logger, lis net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	stop := context.AfterFunc(ctx, func() {
		_ = srv.Close()
	})
	defer stop()

	logger.Infof("Serving metrics on http://%s/metrics", lis.Addr())
	err := srv.Serve(lis)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
