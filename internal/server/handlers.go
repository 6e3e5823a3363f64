package server

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"tracktweak/internal/analysis"
	"tracktweak/internal/log"
	"tracktweak/internal/meter"
	"tracktweak/internal/transport"
)

type healthResponse struct {
	Status  string `json:"status"`
	MeterID string `json:"meterId"`
	Uptime  string `json:"uptime"`
}

type spectrumBin struct {
	Frequency float64 `json:"hz"`
	Value     float64 `json:"db"`
}

type spectrumResponse struct {
	MeterID    string        `json:"meterId"`
	SampleRate float64       `json:"sampleRate"`
	Bins       []spectrumBin `json:"bins"`
}

type statsResponse struct {
	MeterID           string `json:"meterId"`
	Blocks            uint64 `json:"blocks"`
	FramesCompleted   uint64 `json:"framesCompleted"`
	FramesDropped     uint64 `json:"framesDropped"`
	Transforms        uint64 `json:"transforms"`
	DeferredPublishes uint64 `json:"deferredPublishes"`
}

// health handles GET /healthz.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		MeterID: s.meter.ID(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

// snapshot handles GET /api/v1/snapshot with the same frame the websocket
// pushes.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	var snap meter.Snapshot
	s.meter.SnapshotInto(&snap)
	frame := transport.NewFrame(s.meter.ID(), s.sequence.Add(1), time.Now(), &snap)
	writeJSON(w, http.StatusOK, frame)
}

// spectrum handles GET /api/v1/spectrum, pairing each display bin with the
// frequency it samples.
func (s *Server) spectrum(w http.ResponseWriter, r *http.Request) {
	var snap meter.Snapshot
	s.meter.SnapshotInto(&snap)

	resp := spectrumResponse{
		MeterID:    s.meter.ID(),
		SampleRate: s.meter.SampleRate(),
		Bins:       make([]spectrumBin, len(snap.Spectrum)),
	}
	for i, v := range snap.Spectrum {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = analysis.SpectrumFloor
		}
		resp.Bins[i] = spectrumBin{Frequency: s.meter.FrequencyForDisplayBin(i), Value: v}
	}
	writeJSON(w, http.StatusOK, resp)
}

// stats handles GET /api/v1/stats.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st := s.meter.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		MeterID:           s.meter.ID(),
		Blocks:            st.Blocks,
		FramesCompleted:   st.FramesCompleted,
		FramesDropped:     st.FramesDropped,
		Transforms:        st.Transforms,
		DeferredPublishes: st.DeferredPublishes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("HTTP: encode response: %v", err)
	}
}
