package alertclickhouse

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawav/pkg/models"
)

func TestWriterInsertsJSONEachRow(t *testing.T) {
	var query, user string
	var rows []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		user = r.Header.Get("X-ClickHouse-User")
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var m map[string]any
			if assert.NoError(t, json.Unmarshal(sc.Bytes(), &m)) {
				rows = append(rows, m)
			}
		}
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL + "/", Database: "sec", Username: "ingest"})
	require.NoError(t, err)
	defer w.Close()

	alert := models.Alert{
		Timestamp: time.Date(2026, 3, 1, 12, 30, 0, 5_000_000, time.UTC),
		Severity:  models.Critical,
		Source:    "firewall",
		Message:   "blocked",
	}
	require.NoError(t, w.WriteAlerts([]models.Alert{alert, models.NewAlert(models.Info, "network", "ok")}))

	assert.Equal(t, "INSERT INTO `sec`.`clawav_alerts` FORMAT JSONEachRow", query)
	assert.Equal(t, "ingest", user)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-01 12:30:00.005", rows[0]["timestamp"])
	assert.Equal(t, "CRIT", rows[0]["severity"])
	assert.Equal(t, float64(2), rows[0]["severity_level"])
	assert.Equal(t, "firewall", rows[0]["source"])
	assert.Equal(t, float64(0), rows[1]["severity_level"])
}

func TestWriterReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Code: 60. Table does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	err = w.WriteAlerts([]models.Alert{models.NewAlert(models.Warning, "x", "y")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Table does not exist")
}

func TestQuoteIdentStripsBackticks(t *testing.T) {
	assert.Equal(t, "`alerts`", quoteIdent("al`erts"))
	_, err := NewWriter(Config{})
	assert.Error(t, err)
}
