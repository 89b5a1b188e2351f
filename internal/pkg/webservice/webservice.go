package webservice

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/cgc_energymodel/internal/pkg/datastreams"
	"github.com/ohowland/cgc_energymodel/internal/pkg/msg"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"
)

// Handler keeps the results it receives from the run publisher in memory
// and serves them over HTTP. Connected websocket clients get every new run
// summary and status message.
type Handler struct {
	mux      *sync.Mutex
	inbox    datastreams.Inbox
	pid      uuid.UUID
	config   config
	stop     chan bool
	runs     map[string]results.Result
	order    []string
	run      interface{}
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

type config struct {
	Port string `json:"Port"`
}

func New(configPath string, system msg.Publisher) (*Handler, error) {
	cfg := config{}
	if err := datastreams.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	inbox, err := datastreams.Subscribe(pid, system)
	if err != nil {
		return nil, err
	}

	return &Handler{
		mux:     &sync.Mutex{},
		inbox:   inbox,
		pid:     pid,
		config:  cfg,
		stop:    make(chan bool, 1),
		runs:    make(map[string]results.Result),
		clients: make(map[*websocket.Conn]bool),
	}, nil
}

func (h *Handler) PID() uuid.UUID {
	return h.pid
}

// Addr returns the configured listen address.
func (h *Handler) Addr() string {
	return h.config.Port
}

func (h *Handler) Stop() {
	h.stop <- true
}

// Process stores results until the publisher closes its channels or Stop
// is called.
func (h *Handler) Process() error {
	datastreams.Handle(h.inbox, h.stop, h.store, func(m msg.Msg) {
		if m.Topic() == msg.Config {
			h.mux.Lock()
			h.run = m.Payload()
			h.mux.Unlock()
		}
		h.broadcast(map[string]interface{}{m.Topic().String(): m.Payload(), "sender": m.PID().String()})
	})
	log.Println("[Webservice] Process Shutdown")
	return nil
}

func (h *Handler) store(r results.Result) {
	h.mux.Lock()
	run := r.PID.String()
	if _, ok := h.runs[run]; !ok {
		h.order = append(h.order, run)
	}
	h.runs[run] = r
	h.mux.Unlock()

	h.broadcast(datastreams.Summarize(r))
}

func (h *Handler) broadcast(v interface{}) {
	h.mux.Lock()
	defer h.mux.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(v); err != nil {
			log.Println("[Webservice] websocket:", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Router returns the HTTP routes of the handler.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.BaseHandler).Methods("GET")
	r.HandleFunc("/config", h.ConfigHandler).Methods("GET")
	r.HandleFunc("/runs", h.RunsHandler).Methods("GET")
	r.HandleFunc("/runs/{pid}", h.RunHandler).Methods("GET")
	r.HandleFunc("/runs/{pid}/flows", h.FlowsHandler).Methods("GET")
	r.HandleFunc("/runs/{pid}/flows/{from}/{to}", h.FlowHandler).Methods("GET")
	r.HandleFunc("/ws", h.SocketHandler)
	return r
}

// ListenAndServe serves Router on the configured port.
func (h *Handler) ListenAndServe() error {
	log.Println("[Webservice] Starting Server on Port", h.config.Port)
	return http.ListenAndServe(h.config.Port, h.Router())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	body, err := json.Marshal(v)
	if err != nil {
		log.Println("malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Println("[Webservice]", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *Handler) BaseHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"pid": h.pid.String()})
}

// ConfigHandler returns the last run configuration published on the Config
// topic.
func (h *Handler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	h.mux.Lock()
	run := h.run
	h.mux.Unlock()
	if run == nil {
		writeError(w, http.StatusNotFound, "no run configuration")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	h.mux.Lock()
	summaries := make([]datastreams.Summary, 0, len(h.order))
	for _, run := range h.order {
		summaries = append(summaries, datastreams.Summarize(h.runs[run]))
	}
	h.mux.Unlock()
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (results.Result, bool) {
	vars := mux.Vars(r)
	pid, err := uuid.Parse(vars["pid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed UUID")
		return results.Result{}, false
	}
	h.mux.Lock()
	res, ok := h.runs[pid.String()]
	h.mux.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run "+pid.String())
		return results.Result{}, false
	}
	return res, true
}

func (h *Handler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, datastreams.Summarize(res))
	}
}

func (h *Handler) FlowsHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookup(w, r)
	if !ok {
		return
	}
	series := datastreams.Series(res)
	if node := r.URL.Query().Get("node"); node != "" {
		filtered := series[:0]
		for _, fs := range series {
			if fs.From == node || fs.To == node {
				filtered = append(filtered, fs)
			}
		}
		series = filtered
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *Handler) FlowHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookup(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	for _, fs := range datastreams.Series(res) {
		if fs.From == vars["from"] && fs.To == vars["to"] {
			writeJSON(w, http.StatusOK, fs)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown flow ("+vars["from"]+", "+vars["to"]+")")
}

func (h *Handler) clientCount() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return len(h.clients)
}

// SocketHandler upgrades the connection and registers it for broadcasts.
func (h *Handler) SocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Webservice] upgrade:", err)
		return
	}
	h.mux.Lock()
	h.clients[conn] = true
	h.mux.Unlock()

	go func() {
		// Reads only detect the client going away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mux.Lock()
				delete(h.clients, conn)
				h.mux.Unlock()
				conn.Close()
				return
			}
		}
	}()
}
