package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Handler writes run results into a MySQL or PostgreSQL database: one row
// per run in runs, one row per flow and step in flow_results.
type Handler struct {
	inbox  datastreams.Inbox
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Driver   string `json:"Driver"`
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
}

const batchSize = 500

func (h Handler) PID() uuid.UUID {
	return h.pid
}

func New(configPath string, system msg.Publisher) (Handler, error) {
	cfg := config{}
	if err := datastreams.ReadConfig(configPath, &cfg); err != nil {
		return Handler{}, err
	}
	switch cfg.Driver {
	case "":
		cfg.Driver = "mysql"
	case "mysql", "postgres":
	default:
		return Handler{}, fmt.Errorf("sqldb: unsupported driver %q", cfg.Driver)
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

func (h *Handler) Stop() {
	h.stop <- true
}

// DSN returns the driver connection string of the configured database.
func (h Handler) DSN() string {
	if h.config.Driver == "postgres" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(h.config.Username, h.config.Password),
			Host:     fmt.Sprintf("%v:%v", h.config.Server, h.config.Port),
			Path:     "/" + h.config.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}
	c := mysql.NewConfig()
	c.User = h.config.Username
	c.Passwd = h.config.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%v:%v", h.config.Server, h.config.Port)
	c.DBName = h.config.Database
	c.ParseTime = true
	return c.FormatDSN()
}

func (h Handler) DB() (*sql.DB, error) {
	return sql.Open(h.config.Driver, h.DSN())
}

// Process writes until the publisher closes its channels or Stop is called.
func (h Handler) Process() error {
	db, err := h.DB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	d := dialectOf(h.config.Driver)
	err = initDBTables(ctx, db, d)
	cancel()
	if err != nil {
		return err
	}

	datastreams.Handle(h.inbox, h.stop,
		func(r results.Result) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := writeResult(ctx, db, d, r); err != nil {
				log.Printf("[SQL] error %s update db\n", err)
			}
		},
		func(m msg.Msg) {
			log.Printf("[SQL] %v from %v: %v\n", m.Topic(), m.PID(), m.Payload())
		},
	)
	log.Println("[SQL] Process Shutdown")
	return nil
}

// dialect holds the statements that differ between the drivers.
type dialect struct {
	timestamp   string
	placeholder func(n int) string
	upsertRun   string
	upsertFlows string
}

func dialectOf(driver string) dialect {
	if driver == "postgres" {
		return dialect{
			timestamp:   "TIMESTAMP",
			placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
			upsertRun:   " ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, objective = EXCLUDED.objective",
			upsertFlows: " ON CONFLICT (run_id, source, target, step) DO UPDATE SET ts = EXCLUDED.ts, value = EXCLUDED.value",
		}
	}
	return dialect{
		timestamp:   "DATETIME",
		placeholder: func(int) string { return "?" },
		upsertRun:   " ON DUPLICATE KEY UPDATE status = VALUES(status), objective = VALUES(objective)",
		upsertFlows: " ON DUPLICATE KEY UPDATE ts = VALUES(ts), value = VALUES(value)",
	}
}

func initDBTables(ctx context.Context, db *sql.DB, d dialect) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS runs(
			run_id VARCHAR(36) PRIMARY KEY,
			status VARCHAR(32),
			objective DOUBLE PRECISION)`,
		`CREATE TABLE IF NOT EXISTS flow_results(
			run_id VARCHAR(36),
			source VARCHAR(255),
			target VARCHAR(255),
			step INT,
			ts ` + d.timestamp + `,
			value DOUBLE PRECISION,
			PRIMARY KEY (run_id, source, target, step))`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func writeResult(ctx context.Context, db *sql.DB, d dialect, r results.Result) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := datastreams.Summarize(r)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO runs (run_id, status, objective) VALUES (%s, %s, %s)",
			d.placeholder(1), d.placeholder(2), d.placeholder(3))+d.upsertRun,
		s.RunID, s.Status, s.Objective); err != nil {
		return err
	}

	records := datastreams.Records(r)
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		stmt, args := insertRows(d, records[start:end])
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// insertRows builds one multi-row upsert for records.
func insertRows(d dialect, records []datastreams.Record) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO flow_results (run_id, source, target, step, ts, value) VALUES ")
	args := make([]interface{}, 0, 6*len(records))
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < 6; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(6*i + j + 1))
		}
		b.WriteString(")")
		args = append(args, rec.RunID, rec.From, rec.To, rec.Step, rec.Time, rec.Value)
	}
	b.WriteString(d.upsertFlows)
	return b.String(), args
}
