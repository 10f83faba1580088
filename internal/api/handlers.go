package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"clawav/internal/detect"
	"clawav/internal/logger"
	"clawav/pkg/models"
)

const maxScanBody = 1 << 20

type statusResponse struct {
	AlertsTotal    int      `json:"alerts_total"`
	AlertsCritical int      `json:"alerts_critical"`
	AlertsWarning  int      `json:"alerts_warning"`
	AlertsInfo     int      `json:"alerts_info"`
	AlertsDropped  uint64   `json:"alerts_dropped"`
	Detectors      []string `json:"detectors"`
	Sources        []string `json:"sources"`
	DetectorCount  int      `json:"detector_count"`
	SourceCount    int      `json:"source_count"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Detectors map[string]detect.Health `json:"detectors"`
	Sources   map[string]detect.Health `json:"sources"`
	RSSBytes  uint64                   `json:"rss_bytes,omitempty"`
}

type scanRequest struct {
	Text string `json:"text"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Debugf("Writing response: %v", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	alerts := s.cfg.Store.Recent(limit)
	if alerts == nil {
		alerts = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		AlertsTotal:    s.cfg.Store.Len(),
		AlertsCritical: s.cfg.Store.CountBySeverity(models.Critical),
		AlertsWarning:  s.cfg.Store.CountBySeverity(models.Warning),
		AlertsInfo:     s.cfg.Store.CountBySeverity(models.Info),
		Detectors:      []string{},
		Sources:        []string{},
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
	}
	if s.cfg.Drops != nil {
		resp.AlertsDropped = s.cfg.Drops.Dropped()
	}
	if s.cfg.Registry != nil {
		resp.Detectors = s.cfg.Registry.DetectorIDs()
		resp.Sources = s.cfg.Registry.SourceIDs()
		resp.DetectorCount = s.cfg.Registry.DetectorCount()
		resp.SourceCount = s.cfg.Registry.SourceCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Detectors: map[string]detect.Health{},
		Sources:   map[string]detect.Health{},
	}
	if s.cfg.Registry != nil {
		resp.Detectors = s.cfg.Registry.DetectorHealth()
		resp.Sources = s.cfg.Registry.SourceHealth()
	}
	for _, group := range []map[string]detect.Health{resp.Detectors, resp.Sources} {
		for _, h := range group {
			if h != detect.Healthy {
				resp.Status = "degraded"
			}
		}
	}
	if rss, err := s.rss(); err == nil {
		resp.RSSBytes = rss
	} else {
		logger.Debugf("Reading process RSS: %v", err)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Firewall == nil {
		respondError(w, http.StatusNotFound, "prompt firewall disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxScanBody+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxScanBody {
		respondError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	var req scanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "body must be {\"text\": \"...\"}")
		return
	}

	res := s.cfg.Firewall.Scan(req.Text)
	if s.cfg.Observe != nil {
		s.cfg.Observe(res)
	}
	respondJSON(w, http.StatusOK, res)
}

func processRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}
