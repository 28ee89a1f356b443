// Package forecast predicts near-term call-rate demand per function
// using exponential smoothing with an hour-of-day seasonal index — a
// simplified Holt-Winters model, adapted from the teacher's predictive
// auto-scaler to per-function demand instead of whole-fabric task
// arrival rate. It is advisory only (§12): nothing in internal/router
// or internal/scheduler consults it, it only answers GET
// /forecast/{fn_name}.
package forecast

import (
	"fmt"
	"sync"
	"time"
)

// Config tunes the smoothing model.
type Config struct {
	// Alpha is the smoothing factor for the demand level (0 < alpha <= 1).
	Alpha float64
	// SeasonalPeriod is the number of seasonal buckets; 24 means one
	// bucket per hour of day.
	SeasonalPeriod int
	// SeasonalAlpha is the learning rate for the seasonal indices.
	SeasonalAlpha float64
	// Now is an injectable clock for testing.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:          0.3,
		SeasonalPeriod: 24,
		SeasonalAlpha:  0.1,
		Now:            time.Now,
	}
}

func (c Config) withDefaults() Config {
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = 0.3
	}
	if c.SeasonalPeriod <= 0 {
		c.SeasonalPeriod = 24
	}
	if c.SeasonalAlpha <= 0 || c.SeasonalAlpha > 1 {
		c.SeasonalAlpha = 0.1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// series is the per-function smoothing state.
type series struct {
	smoothed         float64
	inited           bool
	seasonal         []float64
	observationCount int
	lastSeen         time.Time
}

func newSeries(period int) *series {
	s := &series{seasonal: make([]float64, period)}
	for i := range s.seasonal {
		s.seasonal[i] = 1.0
	}
	return s
}

// Forecaster tracks a demand-rate estimate per function name.
type Forecaster struct {
	mu     sync.RWMutex
	cfg    Config
	series map[string]*series
}

// New builds a Forecaster. A zero Config is replaced with DefaultConfig's values.
func New(cfg Config) *Forecaster {
	return &Forecaster{cfg: cfg.withDefaults(), series: make(map[string]*series)}
}

func (f *Forecaster) bucket(t time.Time) int {
	if f.cfg.SeasonalPeriod == 24 {
		return t.Hour()
	}
	minuteOfDay := t.Hour()*60 + t.Minute()
	bucketSize := (24 * 60) / f.cfg.SeasonalPeriod
	if bucketSize <= 0 {
		bucketSize = 1
	}
	b := minuteOfDay / bucketSize
	if b >= f.cfg.SeasonalPeriod {
		b = f.cfg.SeasonalPeriod - 1
	}
	return b
}

// Observe records one call to fnName at the current time, treated as a
// single demand unit for the active seasonal bucket. The router calls
// this once per request via its demand hook (§12).
func (f *Forecaster) Observe(fnName string) {
	f.RecordDemand(fnName, 1, f.cfg.Now())
}

// RecordDemand feeds one demand sample into fnName's smoothing model.
func (f *Forecaster) RecordDemand(fnName string, demand float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.series[fnName]
	if !ok {
		s = newSeries(f.cfg.SeasonalPeriod)
		f.series[fnName] = s
	}
	s.lastSeen = at

	bucket := f.bucket(at)
	if !s.inited {
		s.smoothed = demand
		s.inited = true
		s.observationCount++
		return
	}

	seasonalFactor := s.seasonal[bucket]
	if seasonalFactor <= 0 {
		seasonalFactor = 1.0
	}
	deseasonalized := demand / seasonalFactor
	s.smoothed = f.cfg.Alpha*deseasonalized + (1-f.cfg.Alpha)*s.smoothed

	if s.smoothed > 0 {
		observed := demand / s.smoothed
		s.seasonal[bucket] = f.cfg.SeasonalAlpha*observed + (1-f.cfg.SeasonalAlpha)*s.seasonal[bucket]
	}
	s.observationCount++
}

// Result is what GET /forecast/{fn_name} reports.
type Result struct {
	FnName           string  `json:"fn_name"`
	ForecastDemand   float64 `json:"forecast_demand"`
	Confidence       float64 `json:"confidence"`
	ObservationCount int     `json:"observation_count"`
}

// Forecast predicts fnName's near-term demand rate, satisfying
// internal/api's Forecaster interface.
func (f *Forecaster) Forecast(fnName string) (any, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.series[fnName]
	if !ok || !s.inited {
		return nil, fmt.Errorf("no demand history recorded for %q", fnName)
	}

	bucket := f.bucket(f.cfg.Now())
	confidence := float64(s.observationCount) / 48.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Result{
		FnName:           fnName,
		ForecastDemand:   s.smoothed * s.seasonal[bucket],
		Confidence:       confidence,
		ObservationCount: s.observationCount,
	}, nil
}
