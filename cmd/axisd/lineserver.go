package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/w1xm/axis_control/diag"
)

// lineServer speaks a rotctld-like line protocol: a single character
// command, or "+\" and a long name, followed by space separated arguments.
// The first argument is always the axis index.
type lineServer struct {
	srv    *diag.Server
	logger golog.Logger
	// velocity is the default move velocity per axis.
	velocity []float64
}

func (l *lineServer) Listen(ctx context.Context, addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		l.logger.Infof("shutdown; closing command socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Warnf("failed to accept: %v", err)
				}
				continue
			}
			go l.handle(ctx, conn)
		}
	}()
	return ln, nil
}

var longNames = map[string]string{
	"set_pos":   "P",
	"move":      "M",
	"set_vel":   "V",
	"stop":      "S",
	"enable":    "E",
	"reset":     "X",
	"home":      "H",
	"get_pos":   "p",
	"get_error": "e",
}

func (l *lineServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	l.logger.Infof("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := scanner.Text()
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if len(cmd) > 2 && cmd[0:2] == `+\` {
			extended = true
			parts := strings.Fields(cmd[2:])
			if len(parts) == 0 {
				continue
			}
			fmt.Fprintf(conn, "%s:\n", parts[0])
			cmd, args = longNames[parts[0]], parts[1:]
		} else {
			// Space after command is optional.
			args = strings.Fields(cmd[1:])
			cmd = cmd[:1]
		}
		l.logger.Debugf("%v command: %q args: %#v", conn.RemoteAddr(), cmd, args)
		rprt := l.run(ctx, conn, cmd, args, extended)
		if extended || rprt != 0 || !isQuery(cmd) {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	if err := scanner.Err(); err != nil {
		l.logger.Warnf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}

func isQuery(cmd string) bool { return cmd == "p" || cmd == "e" }

const (
	rprtOK      = 0
	rprtInvalid = -22
	rprtFailed  = -1
)

// run executes one command and returns its RPRT code.
func (l *lineServer) run(ctx context.Context, conn net.Conn, cmd string, args []string, extended bool) int {
	if len(args) == 0 {
		return rprtInvalid
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 0 || id >= len(l.velocity) {
		return rprtInvalid
	}
	nums := make([]float64, len(args)-1)
	for i, a := range args[1:] {
		if nums[i], err = strconv.ParseFloat(a, 64); err != nil {
			return rprtInvalid
		}
	}
	c := diag.Command{Axis: id}
	switch cmd {
	case "P", "M":
		if len(nums) < 1 || len(nums) > 2 {
			return rprtInvalid
		}
		c.Command, c.Position, c.Velocity = "move_absolute", nums[0], l.velocity[id]
		if cmd == "M" {
			c.Command = "move_relative"
		}
		if len(nums) == 2 {
			c.Velocity = nums[1]
		}
	case "V":
		if len(nums) != 1 {
			return rprtInvalid
		}
		c.Command, c.Velocity = "move_velocity", nums[0]
	case "S":
		c.Command = "stop"
	case "X":
		c.Command = "reset"
	case "E":
		if len(nums) != 1 {
			return rprtInvalid
		}
		c.Command, c.Enable = "enable", nums[0] != 0
	case "H":
		if len(nums) != 1 {
			return rprtInvalid
		}
		c.Command, c.Data = "home", int(nums[0])
	case "p", "e":
		axes := l.srv.Status().Axes
		if id >= len(axes) {
			return rprtFailed
		}
		s := axes[id]
		switch {
		case cmd == "e" && extended:
			fmt.Fprintf(conn, "Error: %x\n", uint32(s.Error))
		case cmd == "e":
			fmt.Fprintf(conn, "%x\n", uint32(s.Error))
		case extended:
			fmt.Fprintf(conn, "Position: %.6f\n", s.ActualPosition)
		default:
			fmt.Fprintf(conn, "%.6f\n", s.ActualPosition)
		}
		return rprtOK
	default:
		return rprtInvalid
	}
	if err := l.srv.Execute(ctx, c); err != nil {
		l.logger.Warnf("%v: %s: %v", conn.RemoteAddr(), c.Command, err)
		return rprtFailed
	}
	return rprtOK
}
