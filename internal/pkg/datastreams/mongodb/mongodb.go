package mongodb

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Handler upserts run results into MongoDB: one document per run in runs
// and one per flow in flowResults.
type Handler struct {
	inbox  datastreams.Inbox
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	URI      string `json:"URI"`
	Database string `json:"Database"`
	Port     string `json:"Port"`
}

const (
	runCollection  = "runs"
	flowCollection = "flowResults"
)

func (h Handler) PID() uuid.UUID {
	return h.pid
}

func New(configPath string, system msg.Publisher) (Handler, error) {
	cfg := config{}
	if err := datastreams.ReadConfig(configPath, &cfg); err != nil {
		return Handler{}, err
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox, err := datastreams.Subscribe(pid, system)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool, 1),
	}, nil
}

func (h *Handler) StopProcess() {
	h.stop <- true
}

func (h Handler) uri() string {
	if h.config.Port == "" {
		return h.config.URI
	}
	return h.config.URI + ":" + h.config.Port
}

func runFilter(s datastreams.Summary) bson.M {
	return bson.M{"run_id": s.RunID}
}

func runToBSON(s datastreams.Summary) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"run_id":    s.RunID,
			"status":    s.Status,
			"objective": s.Objective,
			"flows":     s.Flows,
			"steps":     s.Steps,
		}},
	}
}

func flowFilter(fs datastreams.FlowSeries) bson.M {
	return bson.M{"run_id": fs.RunID, "from": fs.From, "to": fs.To}
}

func flowToBSON(fs datastreams.FlowSeries) bson.D {
	attributes := bson.M{}
	for name, values := range fs.Attributes {
		attributes[name] = values
	}
	return bson.D{
		{Key: "$set", Value: bson.M{
			"run_id":     fs.RunID,
			"from":       fs.From,
			"to":         fs.To,
			"times":      fs.Times,
			"sequence":   fs.Sequence,
			"attributes": attributes,
		}},
	}
}

// Process writes until the publisher closes its channels or StopProcess is
// called.
func (h Handler) Process() error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(h.uri()))
	cancel()
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	db := client.Database(h.config.Database)
	datastreams.Handle(h.inbox, h.stop,
		func(r results.Result) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := writeResult(ctx, db, r); err != nil {
				log.Printf("[Mongo] %v\n", err)
			}
		},
		func(m msg.Msg) {
			log.Printf("[Mongo] %v: %v\n", m.Topic(), m.Payload())
		},
	)
	log.Println("[Mongo] Process Shutdown")
	return nil
}

func writeResult(ctx context.Context, db *mongo.Database, r results.Result) error {
	opts := options.Update().SetUpsert(true)

	s := datastreams.Summarize(r)
	if _, err := db.Collection(runCollection).UpdateOne(ctx, runFilter(s), runToBSON(s), opts); err != nil {
		return err
	}

	models := make([]mongo.WriteModel, 0, len(r.Flows))
	for _, fs := range datastreams.Series(r) {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(flowFilter(fs)).
			SetUpdate(flowToBSON(fs)).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}
	_, err := db.Collection(flowCollection).BulkWrite(ctx, models)
	return err
}
