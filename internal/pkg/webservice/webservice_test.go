package webservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams"
	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"
	"gotest.tools/v3/assert"
)

func newResult(t *testing.T) results.Result {
	pid, err := uuid.NewUUID()
	assert.NilError(t, err)
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	return results.Result{
		PID:        pid,
		Status:     lp.Optimal,
		Objective:  880,
		Timestamps: []time.Time{start, start.Add(time.Hour)},
		Flows: map[energysystem.FlowKey]results.FlowResult{
			{From: "pp_oil", To: "b_el"}: {Sequence: []float64{20, 16}},
			{From: "b_el", To: "demand"}: {Sequence: []float64{20, 16}},
			{From: "oil", To: "pp_oil"}:  {Sequence: []float64{48.8, 39}},
		},
	}
}

// newServing returns a handler that has already consumed res.
func newServing(t *testing.T, res results.Result) *Handler {
	pid, _ := uuid.NewUUID()
	pub := msg.NewPublisher(pid)
	h, err := New("./testdata/webservice_config.json", pub)
	assert.NilError(t, err)

	pub.Publish(msg.Result, res)
	pub.Close()
	assert.NilError(t, h.Process())
	return h
}

func get(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://example.com"+path, nil)
	h.Router().ServeHTTP(w, r)
	assert.Equal(t, "application/json; charset=UTF-8", w.Header().Get("Content-Type"))
	return w
}

func TestGetConfig(t *testing.T) {
	pid, _ := uuid.NewUUID()
	h, err := New("./testdata/webservice_config.json", msg.NewPublisher(pid))
	assert.NilError(t, err)
	assert.Equal(t, h.Addr(), ":8090")
}

func TestRunsGet(t *testing.T) {
	res := newResult(t)
	h := newServing(t, res)

	w := get(t, h, "/runs")
	assert.Equal(t, http.StatusOK, w.Code)

	var summaries []datastreams.Summary
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	assert.Equal(t, len(summaries), 1)
	assert.Equal(t, summaries[0].RunID, res.PID.String())
	assert.Equal(t, summaries[0].Objective, 880.0)
	assert.Equal(t, summaries[0].Flows, 3)
}

func TestRunGet(t *testing.T) {
	res := newResult(t)
	h := newServing(t, res)

	w := get(t, h, "/runs/"+res.PID.String())
	assert.Equal(t, http.StatusOK, w.Code)

	s := datastreams.Summary{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, s.Status, "optimal")
	assert.Equal(t, s.Steps, 2)
}

func TestConfigGet(t *testing.T) {
	pid, _ := uuid.NewUUID()
	pub := msg.NewPublisher(pid)
	h, err := New("./testdata/webservice_config.json", pub)
	assert.NilError(t, err)

	w := get(t, h, "/config")
	assert.Equal(t, http.StatusNotFound, w.Code)

	pub.Publish(msg.Config, map[string]interface{}{"Solver": "cbc", "EmissionLimit": 75})
	pub.Close()
	assert.NilError(t, h.Process())

	w = get(t, h, "/config")
	assert.Equal(t, http.StatusOK, w.Code)
	run := struct {
		Solver        string
		EmissionLimit float64
	}{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, run.Solver, "cbc")
	assert.Equal(t, run.EmissionLimit, 75.0)
}

func TestRunGetErrors(t *testing.T) {
	h := newServing(t, newResult(t))

	w := get(t, h, "/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other, _ := uuid.NewUUID()
	w = get(t, h, "/runs/"+other.String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlowsGet(t *testing.T) {
	res := newResult(t)
	h := newServing(t, res)

	w := get(t, h, "/runs/"+res.PID.String()+"/flows")
	assert.Equal(t, http.StatusOK, w.Code)
	var series []datastreams.FlowSeries
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &series))
	assert.Equal(t, len(series), 3)

	w = get(t, h, "/runs/"+res.PID.String()+"/flows?node=pp_oil")
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &series))
	assert.Equal(t, len(series), 2)
	for _, fs := range series {
		assert.Assert(t, fs.From == "pp_oil" || fs.To == "pp_oil")
	}
}

func TestFlowGet(t *testing.T) {
	res := newResult(t)
	h := newServing(t, res)

	w := get(t, h, "/runs/"+res.PID.String()+"/flows/pp_oil/b_el")
	assert.Equal(t, http.StatusOK, w.Code)
	fs := datastreams.FlowSeries{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &fs))
	assert.DeepEqual(t, fs.Sequence, []float64{20, 16})

	w = get(t, h, "/runs/"+res.PID.String()+"/flows/b_el/pp_oil")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSocketBroadcast(t *testing.T) {
	pid, _ := uuid.NewUUID()
	h, err := New("./testdata/webservice_config.json", msg.NewPublisher(pid))
	assert.NilError(t, err)

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	assert.NilError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.clientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, h.clientCount(), 1)

	res := newResult(t)
	h.store(res)

	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	s := datastreams.Summary{}
	assert.NilError(t, conn.ReadJSON(&s))
	assert.Equal(t, s.RunID, res.PID.String())
}
