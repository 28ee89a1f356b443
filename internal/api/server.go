// Package api exposes the scheduler's HTTP surface (§4.7, §6): the
// placement endpoints a FaaS gateway calls into (/entry, /schedule),
// the operational endpoints an operator or sibling node polls
// (/load, /arch_metrics, /durations, /configuration), and the
// threshold/reload knobs used to retune a running node without a
// restart. Route-for-route this mirrors routes.py's Flask blueprint,
// including its exception-to-500 behavior and its particular 400 on a
// missing "architecture" field.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgefaas/scheduler/internal/config"
	"github.com/edgefaas/scheduler/internal/domain"
	"github.com/edgefaas/scheduler/internal/router"
	"github.com/edgefaas/scheduler/internal/trust"
	"github.com/edgefaas/scheduler/internal/zonepolicy"
)

// Forecaster answers a near-term demand forecast for one function
// (§12's supplemented forecast endpoint). It is optional: a Server with
// no Forecaster set responds 501 on GET /forecast/{fn_name}.
type Forecaster interface {
	Forecast(fnName string) (any, error)
}

// TrustScorer reports a peer's trust score, if one has been recorded.
// Optional: GET /peers reports nil scores when no TrustScorer is set.
type TrustScorer interface {
	Get(nodeID string) *trust.NodeTrust
}

// ZonePolicyStore exposes the zone data-sovereignty registry for
// inspection and configuration over HTTP (§12). Optional: with none
// set, the /zones/{zone} routes respond 501.
type ZonePolicyStore interface {
	Get(zone string) (zonepolicy.Policy, bool)
	Set(zone string, p zonepolicy.Policy)
}

// Server wires together everything an incoming HTTP request needs:
// the live config (for architecture defaulting and /configuration),
// the placement router, and the load probe.
type Server struct {
	cfg        *config.Config
	rtr        *router.Router
	load       domain.LoadSampler
	forecaster Forecaster
	trustScore TrustScorer
	zonePolicy ZonePolicyStore
	metrics    bool
	startedAt  time.Time
}

// NewServer builds a Server. metrics enables the /metrics Prometheus
// endpoint.
func NewServer(cfg *config.Config, rtr *router.Router, load domain.LoadSampler, metrics bool) *Server {
	return &Server{cfg: cfg, rtr: rtr, load: load, metrics: metrics, startedAt: time.Now()}
}

// SetForecaster enables GET /forecast/{fn_name}.
func (s *Server) SetForecaster(f Forecaster) { s.forecaster = f }

// SetTrustScorer enables trust scores on GET /peers.
func (s *Server) SetTrustScorer(t TrustScorer) { s.trustScore = t }

// SetZonePolicyStore enables GET/POST /zones/{zone}.
func (s *Server) SetZonePolicyStore(z ZonePolicyStore) { s.zonePolicy = z }

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Post("/entry", s.handleEntry)
	r.Post("/schedule", s.handleSchedule)
	r.Post("/reload", s.handleReload)
	r.Get("/load", s.handleLoad)
	r.Get("/arch_metrics", s.handleArchMetrics)
	r.Get("/durations", s.handleDurations)
	r.Post("/update_threshold", s.handleUpdateThreshold)
	r.Get("/configuration", s.handleConfiguration)

	// Supplemented beyond the original API surface (§12).
	r.Get("/peers", s.handlePeers)
	r.Get("/forecast/{fn_name}", s.handleForecast)
	r.Get("/zones/{zone}", s.handleGetZonePolicy)
	r.Post("/zones/{zone}", s.handleSetZonePolicy)

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// handleEntry is the ingress point a FaaS gateway calls to place and
// execute a function. A request that omits "arch" picks up the node's
// currently configured architecture.
func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Arch == "" {
		req.Arch = s.cfg.Architecture()
	}
	req.EnsureTag()

	result := s.rtr.HandleRequest(r.Context(), req)
	writeJSON(w, result.Status, result.Response)
}

// handleSchedule is called by a node that has already been selected as
// the execution point, rather than one deciding where to route a fresh
// request. Unlike /entry, it never defaults the architecture.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result := s.rtr.ScheduleFunction(r.Context(), req)
	writeJSON(w, result.Status, result.Response)
}

// handleReload swaps the running architecture without a restart. Both
// a missing "architecture" field and an unrecognized architecture
// value are client errors (400), not the blanket 500 every other
// handler falls back to on decode failure.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	archRaw, ok := body["architecture"]
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing 'architecture' field")
		return
	}
	archStr, _ := archRaw.(string)
	if err := s.cfg.SetArchitecture(domain.Arch(archStr)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Architecture reloaded",
		"current_arch": string(s.cfg.Architecture()),
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	reading := s.load.Sample()
	writeJSON(w, http.StatusOK, map[string]any{
		"load1":             reading.Load1,
		"cpu_percent":       reading.CPUPercent,
		"cpu_percent_human": humanize.FormatFloat("#,###.##", reading.CPUPercent) + "%",
	})
}

func (s *Server) handleArchMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rtr.GetArchitectureMetrics())
}

// handleDurations reports recent total-time samples, in seconds, for
// the reference function the router tracks (§4.7).
func (s *Server) handleDurations(w http.ResponseWriter, r *http.Request) {
	raw := s.rtr.RecentDurations()
	out := make(map[string][]float64, len(raw))
	for arch, durations := range raw {
		secs := make([]float64, len(durations))
		for i, d := range durations {
			secs[i] = d.Seconds()
		}
		out[arch] = secs
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var u router.ThresholdUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rtr.UpdateThresholds(u)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Thresholds updated"})
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	topo := s.cfg.Topology()
	writeJSON(w, http.StatusOK, map[string]any{
		"arch":       string(s.cfg.Architecture()),
		"self":       topo.Self(),
		"topology":   topo.All(),
		"started_at": humanize.Time(s.startedAt),
	})
}

// handlePeers lists every node in the topology other than self — not
// present in the original API, added so a sibling node or operator
// tool can discover the fabric without parsing architecture.yaml
// directly (§12).
type peerInfo struct {
	domain.Node
	TrustScore *float64 `json:"trust_score,omitempty"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	topo := s.cfg.Topology()
	self := topo.Self()
	peers := make([]peerInfo, 0, len(topo.Nodes))
	for _, n := range topo.All() {
		if n.ID == self.ID {
			continue
		}
		p := peerInfo{Node: n}
		if s.trustScore != nil {
			if nt := s.trustScore.Get(n.ID); nt != nil {
				score := nt.Overall()
				p.TrustScore = &score
			}
		}
		peers = append(peers, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"peers": peers})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.forecaster == nil {
		writeError(w, http.StatusNotImplemented, "forecasting not enabled on this node")
		return
	}
	fnName := chi.URLParam(r, "fn_name")
	result, err := s.forecaster.Forecast(fnName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetZonePolicy reports the offload policy registered for a
// zone. A zone with nothing registered is unrestricted by default
// (§12), which this reports explicitly rather than 404ing.
func (s *Server) handleGetZonePolicy(w http.ResponseWriter, r *http.Request) {
	if s.zonePolicy == nil {
		writeError(w, http.StatusNotImplemented, "zone policy not enabled on this node")
		return
	}
	zone := chi.URLParam(r, "zone")
	p, ok := s.zonePolicy.Get(zone)
	writeJSON(w, http.StatusOK, map[string]any{
		"zone":             zone,
		"registered":       ok,
		"data_sovereignty": p.DataSovereignty,
		"allowed_zones":    p.AllowedZones,
	})
}

// handleSetZonePolicy installs or replaces the offload policy for a
// zone (§12).
func (s *Server) handleSetZonePolicy(w http.ResponseWriter, r *http.Request) {
	if s.zonePolicy == nil {
		writeError(w, http.StatusNotImplemented, "zone policy not enabled on this node")
		return
	}
	var body struct {
		DataSovereignty bool     `json:"data_sovereignty"`
		AllowedZones    []string `json:"allowed_zones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	zone := chi.URLParam(r, "zone")
	s.zonePolicy.Set(zone, zonepolicy.Policy{DataSovereignty: body.DataSovereignty, AllowedZones: body.AllowedZones})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Zone policy updated", "zone": zone})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError matches jsonify({"error": str(e)}) — a flat "error"
// string, not a nested object — so clients written against the
// original API keep working.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
