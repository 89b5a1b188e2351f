package datastreams

import (
	"testing"
	"time"

	"github.com/google/uuid"
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
		Objective:  12,
		Timestamps: []time.Time{start, start.Add(time.Hour)},
		Flows: map[energysystem.FlowKey]results.FlowResult{
			{From: "b", To: "c"}: {Sequence: []float64{5, 6}},
			{From: "a", To: "b"}: {
				Sequence:   []float64{1, 2},
				Attributes: map[string]energysystem.Value{"share": energysystem.Series(0.5, 1)},
			},
		},
	}
}

func TestRecords(t *testing.T) {
	r := newResult(t)
	records := Records(r)
	assert.Equal(t, len(records), 4)

	assert.Equal(t, records[0].From, "a")
	assert.Equal(t, records[0].Step, 0)
	assert.Equal(t, records[1].Value, 2.0)
	assert.Equal(t, records[1].Time, r.Timestamps[1])
	assert.Equal(t, records[3].To, "c")
	assert.Equal(t, records[3].RunID, r.PID.String())
}

func TestSeries(t *testing.T) {
	series := Series(newResult(t))
	assert.Equal(t, len(series), 2)
	assert.DeepEqual(t, series[0].Attributes, map[string][]float64{"share": {0.5, 1}})
	assert.Assert(t, series[1].Attributes == nil)
}

func TestSummarize(t *testing.T) {
	s := Summarize(newResult(t))
	assert.Equal(t, s.Status, "optimal")
	assert.Equal(t, s.Flows, 2)
	assert.Equal(t, s.Steps, 2)
}

func TestHandle(t *testing.T) {
	pids := make([]uuid.UUID, 2)
	for i := range pids {
		pids[i], _ = uuid.NewUUID()
	}
	pub := msg.NewPublisher(pids[0])
	in, err := Subscribe(pids[1], pub)
	assert.NilError(t, err)

	pub.Publish(msg.Status, "building")
	pub.Publish(msg.Config, "run config")
	pub.Publish(msg.Result, "not a result")
	pub.Publish(msg.Result, newResult(t))
	pub.Close()

	var got []results.Result
	var statuses, configs []interface{}
	Handle(in, make(chan bool),
		func(r results.Result) { got = append(got, r) },
		func(m msg.Msg) {
			if m.Topic() == msg.Config {
				configs = append(configs, m.Payload())
				return
			}
			statuses = append(statuses, m.Payload())
		},
	)
	assert.Equal(t, len(got), 1)
	assert.DeepEqual(t, statuses, []interface{}{"building"})
	assert.DeepEqual(t, configs, []interface{}{"run config"})
}
