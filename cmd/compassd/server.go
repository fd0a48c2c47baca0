package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/compass_interface/compass"
	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensor"
	"go.uber.org/zap"
)

type Server struct {
	compass *compass.Compass
	source  sensor.Source

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     compass.Status
	// seq counts status updates so waiters can tell a new one arrived.
	seq uint64
}

func NewServer() *Server {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

func (s *Server) Router(staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/status", http.HandlerFunc(s.StatusHandler)).Methods(http.MethodGet)
	r.Handle("/api/ws", http.HandlerFunc(s.StatusSocketHandler))
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	return r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		zap.S().Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

type Command struct {
	Command string           `json:"command"`
	Enabled bool             `json:"enabled"`
	Value   float64          `json:"value"`
	Fix     *declination.Fix `json:"fix"`
}

func (s *Server) handleCommand(msg Command) error {
	if s.compass == nil {
		return fmt.Errorf("no compass for %q", msg.Command)
	}
	switch msg.Command {
	case "set_true_north":
		return s.compass.UpdateSettings(func(settings *compass.Settings) {
			settings.TrueNorth = msg.Enabled
		})
	case "set_haptic_feedback":
		return s.compass.UpdateSettings(func(settings *compass.Settings) {
			settings.HapticFeedback = msg.Enabled
		})
	case "set_feedback_interval":
		return s.compass.UpdateSettings(func(settings *compass.Settings) {
			settings.FeedbackInterval = msg.Value
		})
	case "set_display_rotation":
		return s.compass.SetRotation(orientation.DisplayRotation(int(msg.Value)))
	case "set_fix":
		if msg.Fix == nil {
			return fmt.Errorf("%s: missing fix", msg.Command)
		}
		fix := *msg.Fix
		if fix.Time.IsZero() {
			fix.Time = time.Now()
		}
		return s.compass.SetFix(&fix)
	case "clear_fix":
		return s.compass.SetFix(nil)
	}
	return fmt.Errorf("unknown command %q", msg.Command)
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Info(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.handleCommand(msg); err != nil {
				zap.S().Warnf("command from %v: %v", r.RemoteAddr, err)
			}
		}
	}()
	// Wake the sender when the client goes away.
	go func() {
		<-ctx.Done()
		s.statusMu.Lock()
		s.statusCond.Broadcast()
		s.statusMu.Unlock()
	}()

	send := func(status compass.Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status, seq := s.status, s.seq
	s.statusMu.RUnlock()
	if err := send(status); err != nil {
		zap.S().Info(err)
		return
	}

	for {
		s.statusMu.RLock()
		for s.seq == seq && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seq = s.status, s.seq
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := send(status); err != nil {
			zap.S().Info(err)
			return
		}
	}
}

func (s *Server) statusCallback(status compass.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.seq++
	s.statusCond.Broadcast()
}

func (s *Server) currentStatus() compass.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}
