package unittest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"go.uber.org/atomic"
)

// GIOCall is a generic input/output call received by RollupServer.
type GIOCall struct {
	Domain uint16
	Data   []byte
}

// RollupServer is an in-process rollup server. It hands out queued requests
// on /finish and records everything the application sends back.
type RollupServer struct {
	*httptest.Server

	idleDelay time.Duration

	mu       sync.Mutex
	queue    []string
	statuses []string
	notices  [][]byte
	reports  [][]byte
	gios     []GIOCall

	finishes    *atomic.Uint64
	failFinish  *atomic.Int64
	failReport  *atomic.Bool
	drained     chan struct{}
	drainedOnce sync.Once
}

// NewRollupServer starts a RollupServer which is closed when the test ends.
func NewRollupServer(t testing.TB) *RollupServer {
	s := &RollupServer{
		idleDelay:  5 * time.Millisecond,
		finishes:   atomic.NewUint64(0),
		failFinish: atomic.NewInt64(0),
		failReport: atomic.NewBool(false),
		drained:    make(chan struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/finish", s.handleFinish).Methods(http.MethodPost)
	router.HandleFunc("/notice", s.handlePayload(&s.notices)).Methods(http.MethodPost)
	router.HandleFunc("/report", s.handleReport).Methods(http.MethodPost)
	router.HandleFunc("/gio", s.handleGIO).Methods(http.MethodPost)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

// Enqueue queues a raw /finish response body.
func (s *RollupServer) Enqueue(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, body)
}

// EnqueueAdvance queues an advance_state request carrying payload.
func (s *RollupServer) EnqueueAdvance(payload []byte) {
	s.Enqueue(fmt.Sprintf(
		`{"request_type":"advance_state","data":{"metadata":{"msg_sender":"0x%040x","epoch_index":0,"input_index":0,"block_number":1,"timestamp":1700000000},"payload":"%s"}}`,
		1, hexutil.Encode(payload),
	))
}

// EnqueueInspect queues an inspect_state request carrying payload.
func (s *RollupServer) EnqueueInspect(payload []byte) {
	s.Enqueue(fmt.Sprintf(`{"request_type":"inspect_state","data":{"payload":"%s"}}`, hexutil.Encode(payload)))
}

// FailFinish makes the next n /finish calls fail with an internal error.
func (s *RollupServer) FailFinish(n int64) {
	s.failFinish.Store(n)
}

// FailReports makes every /report call fail with an internal error.
func (s *RollupServer) FailReports() {
	s.failReport.Store(true)
}

// Drained is closed on the first /finish call that finds the queue empty.
// By then the status of every queued request has been recorded.
func (s *RollupServer) Drained() <-chan struct{} {
	return s.drained
}

// Finishes returns the number of /finish calls that were answered.
func (s *RollupServer) Finishes() uint64 {
	return s.finishes.Load()
}

// Statuses returns the statuses received on /finish, in order. The first one
// is the status the application starts with.
func (s *RollupServer) Statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func (s *RollupServer) Notices() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.notices...)
}

func (s *RollupServer) Reports() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.reports...)
}

func (s *RollupServer) GIOs() []GIOCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GIOCall(nil), s.gios...)
}

func (s *RollupServer) handleFinish(w http.ResponseWriter, r *http.Request) {
	if s.failFinish.Dec() >= 0 {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	s.failFinish.Store(0)

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.finishes.Inc()

	s.mu.Lock()
	s.statuses = append(s.statuses, body.Status)
	var next string
	pending := len(s.queue) > 0
	if pending {
		next = s.queue[0]
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	if !pending {
		s.drainedOnce.Do(func() { close(s.drained) })
		time.Sleep(s.idleDelay)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(next))
}

func (s *RollupServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.failReport.Load() {
		http.Error(w, "down", http.StatusInternalServerError)
		return
	}
	s.handlePayload(&s.reports)(w, r)
}

func (s *RollupServer) handlePayload(into *[][]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Payload string `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload, err := hexutil.Decode(body.Payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		*into = append(*into, payload)
		index := len(*into) - 1
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int{"index": index})
	}
}

func (s *RollupServer) handleGIO(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Domain uint16 `json:"domain"`
		ID     string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := hexutil.Decode(body.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.gios = append(s.gios, GIOCall{Domain: body.Domain, Data: data})
	s.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}
