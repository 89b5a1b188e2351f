// Package datastreams flattens run results into records for the exporters
// in its subpackages.
package datastreams

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"
)

// Record is one flow value at one time step.
type Record struct {
	RunID string    `json:"run_id"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Step  int       `json:"step"`
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// FlowSeries is the full sequence of one flow with its attributes expanded
// to one value per step.
type FlowSeries struct {
	RunID      string               `json:"run_id"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	Times      []time.Time          `json:"times"`
	Sequence   []float64            `json:"sequence"`
	Attributes map[string][]float64 `json:"attributes,omitempty"`
}

// Summary describes the run as a whole.
type Summary struct {
	RunID     string  `json:"run_id"`
	Status    string  `json:"status"`
	Objective float64 `json:"objective"`
	Flows     int     `json:"flows"`
	Steps     int     `json:"steps"`
}

// Records returns every flow value of r ordered by flow key then step.
func Records(r results.Result) []Record {
	var records []Record
	for _, key := range r.Keys() {
		for t, v := range r.Flows[key].Sequence {
			records = append(records, Record{
				RunID: r.PID.String(),
				From:  key.From,
				To:    key.To,
				Step:  t,
				Time:  timeAt(r, t),
				Value: v,
			})
		}
	}
	return records
}

// Series returns one FlowSeries per flow of r, ordered by flow key.
func Series(r results.Result) []FlowSeries {
	series := make([]FlowSeries, 0, len(r.Flows))
	for _, key := range r.Keys() {
		series = append(series, seriesOf(r, key))
	}
	return series
}

func seriesOf(r results.Result, key energysystem.FlowKey) FlowSeries {
	fr := r.Flows[key]
	fs := FlowSeries{
		RunID:    r.PID.String(),
		From:     key.From,
		To:       key.To,
		Times:    append([]time.Time(nil), r.Timestamps...),
		Sequence: append([]float64(nil), fr.Sequence...),
	}
	if len(fr.Attributes) > 0 {
		fs.Attributes = make(map[string][]float64, len(fr.Attributes))
		names := make([]string, 0, len(fr.Attributes))
		for name := range fr.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fs.Attributes[name] = fr.Attributes[name].Floats(len(fr.Sequence))
		}
	}
	return fs
}

// Summarize returns the run summary of r.
func Summarize(r results.Result) Summary {
	return Summary{
		RunID:     r.PID.String(),
		Status:    r.Status.String(),
		Objective: r.Objective,
		Flows:     len(r.Flows),
		Steps:     len(r.Timestamps),
	}
}

func timeAt(r results.Result, t int) time.Time {
	if t < len(r.Timestamps) {
		return r.Timestamps[t]
	}
	return time.Time{}
}

// ReadConfig unmarshals the JSON file at path into cfg.
func ReadConfig(path string, cfg interface{}) error {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonConfig, cfg)
}

// Inbox holds a handler's subscriptions to the run publisher.
type Inbox struct {
	Result <-chan msg.Msg
	Status <-chan msg.Msg
	Config <-chan msg.Msg
}

// Subscribe subscribes pid to the Result, Status and Config topics of system.
func Subscribe(pid uuid.UUID, system msg.Publisher) (Inbox, error) {
	chResult, err := system.Subscribe(pid, msg.Result)
	if err != nil {
		return Inbox{}, err
	}
	chStatus, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		system.Unsubscribe(pid)
		return Inbox{}, err
	}
	chConfig, err := system.Subscribe(pid, msg.Config)
	if err != nil {
		system.Unsubscribe(pid)
		return Inbox{}, err
	}
	return Inbox{Result: chResult, Status: chStatus, Config: chConfig}, nil
}

// Handle dispatches messages from in until every channel is closed or stop
// fires. Result payloads that are not a results.Result are skipped. Status
// and Config messages both go to onStatus; m.Topic() tells them apart.
func Handle(in Inbox, stop <-chan bool, onResult func(results.Result), onStatus func(msg.Msg)) {
	chResult, chStatus, chConfig := in.Result, in.Status, in.Config
	for chResult != nil || chStatus != nil || chConfig != nil {
		select {
		case m, ok := <-chResult:
			if !ok {
				chResult = nil
				continue
			}
			if r, ok := m.Payload().(results.Result); ok {
				onResult(r)
			}
		case m, ok := <-chStatus:
			if !ok {
				chStatus = nil
				continue
			}
			onStatus(m)
		case m, ok := <-chConfig:
			if !ok {
				chConfig = nil
				continue
			}
			onStatus(m)
		case <-stop:
			return
		}
	}
}
