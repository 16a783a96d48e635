// Package diag serves axis status and accepts motion commands over HTTP
// and websockets.
package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/edaniels/golog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/axis"
)

// Commander runs fn against the axes between cycles.
type Commander interface {
	Do(ctx context.Context, fn func(*axis.Registry) error) error
}

type Status struct {
	Axes []axis.Snapshot `json:"axes"`
}

type Server struct {
	cmd    Commander
	logger golog.Logger

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
	seq        uint64
}

func NewServer(cmd Commander, logger golog.Logger) *Server {
	s := &Server{cmd: cmd, logger: logger}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Publish replaces the current status and wakes every websocket.
func (s *Server) Publish(axes []axis.Snapshot) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = Status{Axes: axes}
	s.seq++
	s.statusCond.Broadcast()
}

// Status returns the last published status.
func (s *Server) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	r.HandleFunc("/api/axis/{id:[0-9]+}/{command}", s.CommandHandler).Methods(http.MethodPost)
	return r
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(s.Status())
	if err != nil {
		s.logger.Errorf("marshaling status: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

type Command struct {
	Command  string  `json:"command"`
	Axis     int     `json:"axis"`
	Enable   bool    `json:"enable"`
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Data     int     `json:"data"`
}

var ErrUnknownCommand = errors.New("unknown command")

// Execute applies c to its axis.
func (s *Server) Execute(ctx context.Context, c Command) error {
	return s.cmd.Do(ctx, func(r *axis.Registry) error {
		a, err := r.Axis(c.Axis)
		if err != nil {
			return err
		}
		switch c.Command {
		case "enable":
			return a.SetEnable(c.Enable)
		case "move_absolute":
			return a.MoveAbsolute(c.Position, c.Velocity)
		case "move_relative":
			return a.MoveRelative(c.Position, c.Velocity)
		case "move_velocity":
			return a.MoveVelocity(c.Velocity)
		case "home":
			return a.Home(c.Data)
		case "stop":
			return a.Stop()
		case "reset":
			a.SetReset(true)
			a.SetReset(false)
			return nil
		case "traj_source":
			return a.SetTrajDataSourceType(axis.DataSource(c.Data))
		case "enc_source":
			return a.SetEncDataSourceType(axis.DataSource(c.Data))
		}
		return errors.Wrapf(ErrUnknownCommand, "%q", c.Command)
	})
}

// CommandHandler takes the axis and command from the path and the rest of
// the Command from an optional JSON body.
func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var c Command
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.Axis, c.Command = id, vars["command"]
	if err := s.Execute(r.Context(), c); err != nil {
		s.logger.Warnf("%s: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("upgrading %v: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer s.statusCond.Broadcast()
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.Execute(ctx, msg); err != nil {
				s.logger.Warnf("%v: command %q: %v", r.RemoteAddr, msg.Command, err)
			}
		}
	}()

	s.statusMu.RLock()
	status, seq := s.status, s.seq
	s.statusMu.RUnlock()
	for {
		data, err := json.Marshal(status)
		if err != nil {
			s.logger.Errorf("marshaling status: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debugf("writing to %v: %v", r.RemoteAddr, err)
			return
		}
		s.statusMu.RLock()
		for s.seq == seq && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seq = s.status, s.seq
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
	}
}
