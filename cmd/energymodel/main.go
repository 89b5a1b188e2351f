package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/config"
	"github.com/ohowland/cgc_energymodel/internal/pkg/constraints"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/cgc_energymodel/internal/pkg/model"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"
	"github.com/ohowland/cgc_energymodel/internal/pkg/webservice"
)

//go:embed powerplants.json
var powerPlants []byte

const (
	emissionFactor = "emission_factor"
	outflowShare   = "outflow_share"
)

type options struct {
	scenario string
	run      string
	solver   string
	limit    float64
	lp       string
	serve    bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.scenario, "scenario", "", "scenario file, the power plant example when empty")
	flag.StringVar(&opts.run, "run", "", "run file")
	flag.StringVar(&opts.solver, "solver", "", "solver name, overrides the run file")
	flag.Float64Var(&opts.limit, "limit", math.NaN(), "emission limit, overrides the run file")
	flag.StringVar(&opts.lp, "lp", "", "write the assembled problem to this file")
	flag.BoolVar(&opts.serve, "serve", false, "serve results until interrupted")
	flag.Parse()

	log.Println("[Main] Starting energymodel")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, opts, os.Stdout); err != nil {
		log.Println("[Main]", err)
		stop()
		os.Exit(1)
	}
	log.Println("[Main] Stopping energymodel")
}

func loadRun(opts options) (config.Run, error) {
	run := config.DefaultRun()
	if opts.run != "" {
		var err error
		if run, err = config.LoadRun(opts.run); err != nil {
			return config.Run{}, err
		}
	}
	if opts.solver != "" {
		run.Solver = opts.solver
	}
	if !math.IsNaN(opts.limit) {
		run.EmissionLimit = opts.limit
	}
	if opts.lp != "" {
		run.WriteLP = opts.lp
	}
	return run, nil
}

func loadScenario(path string) (config.Scenario, error) {
	if path == "" {
		return config.Parse(powerPlants)
	}
	return config.Load(path)
}

// buildModel assembles the scenario and adds the share and emission
// constraints over the flows carrying the matching attributes.
func buildModel(sc config.Scenario, run config.Run) (*model.Model, error) {
	log.Println("[Main] Building Energy System")
	es, err := sc.Build()
	if err != nil {
		return nil, err
	}

	log.Println("[Main] Building Model")
	m, err := model.New(es, model.WithObjectiveWeighting(run.ObjectiveWeighting()))
	if err != nil {
		return nil, err
	}

	block := model.NewBlock("MyBlock").
		Set("MYFLOWS", model.HasAttribute(outflowShare)).
		Set("COMMODITYFLOWS", model.HasAttribute(emissionFactor)).
		Constraint("inflow_share", constraints.InflowShare("MYFLOWS", outflowShare)).
		Constraint("emission_constr", constraints.IntegralLimit("COMMODITYFLOWS", emissionFactor, run.EmissionLimit))
	if err := m.AddBlock(block); err != nil {
		return nil, err
	}
	return m, nil
}

func writeLP(m *model.Model, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteLP(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type processor interface {
	Process() error
}

// linkDatastreams subscribes every configured exporter to pub. The returned
// webservice is nil unless one is configured.
func linkDatastreams(ds config.Datastreams, pub *msg.PubSub) ([]processor, *webservice.Handler, error) {
	var procs []processor
	if ds.MongoDB != "" {
		log.Println("[Main] Connecting MongoDB Service")
		h, err := mongodb.New(ds.MongoDB, pub)
		if err != nil {
			return nil, nil, err
		}
		procs = append(procs, h)
	}
	if ds.NATS != "" {
		log.Println("[Main] Connecting NATS Service")
		h, err := natshandler.New(ds.NATS, pub)
		if err != nil {
			return nil, nil, err
		}
		procs = append(procs, h)
	}
	if ds.SQL != "" {
		log.Println("[Main] Connecting SQL Service")
		h, err := sqldb.New(ds.SQL, pub)
		if err != nil {
			return nil, nil, err
		}
		procs = append(procs, h)
	}
	var ws *webservice.Handler
	if ds.Webservice != "" {
		log.Println("[Main] Connecting Webservice")
		var err error
		if ws, err = webservice.New(ds.Webservice, pub); err != nil {
			return nil, nil, err
		}
		procs = append(procs, ws)
	}
	return procs, ws, nil
}

func execute(ctx context.Context, opts options, out io.Writer) error {
	run, err := loadRun(opts)
	if err != nil {
		return err
	}
	sc, err := loadScenario(opts.scenario)
	if err != nil {
		return err
	}
	m, err := buildModel(sc, run)
	if err != nil {
		return err
	}
	if run.WriteLP != "" {
		if err := writeLP(m, run.WriteLP); err != nil {
			return err
		}
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return err
	}
	pub := msg.NewPublisher(pid)
	procs, ws, err := linkDatastreams(run.Datastreams, pub)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p processor) {
			defer wg.Done()
			if err := p.Process(); err != nil {
				log.Println("[Main] datastream:", err)
			}
		}(p)
	}
	defer func() {
		pub.Close()
		wg.Wait()
	}()

	pub.Publish(msg.Config, run)
	log.Printf("[Main] Solving with %s\n", run.Solver)
	pub.Publish(msg.Status, "solving")
	status, err := m.Solve(ctx, run.Solver, run.SolverOptions()...)
	pub.Publish(msg.Status, status.String())
	if err != nil {
		return err
	}
	log.Println("[Main] Successfully finished.")

	res, err := results.Extract(m)
	if err != nil {
		return err
	}
	pub.Publish(msg.Result, res)
	printEmissions(out, res)

	if opts.serve && ws != nil {
		go func() {
			if err := ws.ListenAndServe(); err != nil {
				log.Println("[Main] webservice:", err)
			}
		}()
		<-ctx.Done()
	}
	return nil
}

// emitters returns the labels of the nodes with outflows carrying attr.
func emitters(res results.Result, attr string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, key := range res.Keys() {
		fr, _ := res.Flow(key)
		if _, ok := fr.Attributes[attr]; ok && !seen[key.From] {
			seen[key.From] = true
			labels = append(labels, key.From)
		}
	}
	sort.Strings(labels)
	return labels
}

func printEmissions(w io.Writer, res results.Result) {
	total := 0.0
	for _, from := range emitters(res, emissionFactor) {
		e := res.Emissions(emissionFactor, from)
		total += e
		fmt.Fprintf(w, "emissions through %s consumption\n %g\n", from, e)
	}
	fmt.Fprintf(w, "total emissions\n %g\n", total)
}
