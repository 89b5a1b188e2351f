package natshandler

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"

	nats "github.com/nats-io/nats.go"
)

// Handler publishes run results to a NATS server: one message per flow on
// <Subject>.<run>.<from>.<to>, plus the run summary on <Subject>.<run>.
type Handler struct {
	inbox  datastreams.Inbox
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Server  string `json:"Server"`
	Subject string `json:"Subject"`
	Timeout string `json:"Timeout"`
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

func New(configPath string, system msg.Publisher) (Handler, error) {
	cfg := config{}
	if err := datastreams.ReadConfig(configPath, &cfg); err != nil {
		return Handler{}, err
	}
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "energymodel"
	}
	if strings.ContainsAny(cfg.Subject, " \t*>") {
		return Handler{}, errors.New("natshandler: invalid subject " + cfg.Subject)
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

func (h Handler) connect() (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("energymodel-" + h.pid.String())}
	if h.config.Timeout != "" {
		d, err := time.ParseDuration(h.config.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nats.Timeout(d))
	}
	return nats.Connect(h.config.Server, opts...)
}

// Process publishes until the publisher closes its channels or Stop is
// called.
func (h Handler) Process() error {
	log.Println("[NATS client] Process Started")
	nc, err := h.connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	datastreams.Handle(h.inbox, h.stop,
		func(r results.Result) {
			for _, m := range resultMessages(h.config.Subject, r) {
				if err := nc.Publish(m.subject, m.data); err != nil {
					log.Printf("[NATS client] unable to publish to nats server: %v\n", err)
				}
			}
			if err := nc.Flush(); err != nil {
				log.Printf("[NATS client] flush: %v\n", err)
			}
		},
		func(m msg.Msg) {
			data, err := json.Marshal(m.Payload())
			if err != nil {
				return
			}
			if err := nc.Publish(h.config.Subject+"."+m.Topic().String()+"."+m.PID().String(), data); err != nil {
				log.Printf("[NATS client] unable to publish to nats server: %v\n", err)
			}
		},
	)
	log.Println("[NATS client] Process Shutdown")
	return nil
}

type message struct {
	subject string
	data    []byte
}

func resultMessages(prefix string, r results.Result) []message {
	run := r.PID.String()
	summary, err := json.Marshal(datastreams.Summarize(r))
	if err != nil {
		log.Printf("[NATS client] %v\n", err)
		return nil
	}
	msgs := []message{{subject: prefix + "." + run, data: summary}}
	for _, fs := range datastreams.Series(r) {
		data, err := json.Marshal(fs)
		if err != nil {
			log.Printf("[NATS client] %v\n", err)
			continue
		}
		msgs = append(msgs, message{
			subject: strings.Join([]string{prefix, run, token(fs.From), token(fs.To)}, "."),
			data:    data,
		})
	}
	return msgs
}

// token maps a node label onto a single subject token.
func token(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, label)
}
