package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// Hamlib return codes.
const (
	rprtOK      = 0
	rprtEIO     = -6
	rprtENAVAIL = -11
	rprtInvalid = -22
)

const noSensorInfo = "disconnected"

// ListenRotctld serves the read-only rotctld protocol on addr until the
// returned listener is closed.
func (s *Server) ListenRotctld(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if err != nil {
				zap.S().Warnf("failed to accept: %v", err)
				continue
			}
			go s.handleRotctld(conn)
		}
	}()
	return ln, nil
}

func (s *Server) sourceInfo() string {
	if s.source == nil || !s.source.Connected() {
		return noSensorInfo
	}
	if v := s.source.Version(); v != "" {
		return v
	}
	return "connected"
}

func (s *Server) handleRotctld(conn net.Conn) {
	defer conn.Close()
	zap.S().Infof("accepted rotctld connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		// Two forms of command: single character, or "+\" followed by command name.
		cmd := strings.TrimSpace(scanner.Text())
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if strings.HasPrefix(cmd, `+\`) {
			extended = true
			parts := strings.Fields(cmd[2:])
			if len(parts) == 0 {
				fmt.Fprintf(conn, "RPRT %d\n", rprtInvalid)
				continue
			}
			cmd, args = parts[0], parts[1:]
			fmt.Fprintf(conn, "%s:\n", cmd)
		} else {
			// Space after command is optional.
			args = strings.Fields(cmd[1:])
			cmd = cmd[:1]
		}
		zap.S().Debugf("%v command: %q args: %#v", conn.RemoteAddr(), cmd, args)
		rprt := rprtInvalid
		switch cmd {
		case "q", "Q", "quit":
			return
		case "1", "dump_caps":
			fmt.Fprint(conn, `Model name: Compass
Mfg name: W1XM
Rot type: Az-El
Min Azimuth: -180.00
Max Azimuth: 180.00
Min Elevation: 0.00
Max Elevation: 0.00
Can set Position: N
Can get Position: Y
Can Stop: N
Can Park: N
Can Reset: N
Can Move: N
Can get Info: Y
`)
			rprt = rprtOK
		case "_", "get_info":
			if extended {
				fmt.Fprintf(conn, "Info: %s\n", s.sourceInfo())
			} else {
				fmt.Fprintf(conn, "%s\n", s.sourceInfo())
			}
			rprt = rprtOK
		case "S", "stop", "P", "set_pos", "M", "move", "K", "park", "R", "reset":
			extended = true // always print RPRT
			rprt = rprtENAVAIL
		case "p", "get_pos":
			heading, ok := s.currentStatus().Heading()
			if !ok {
				rprt = rprtEIO
				break
			}
			az := heading.Angle().Signed()
			if extended {
				fmt.Fprintf(conn, "Azimuth: %.6f\nElevation: %.6f\n", az, 0.0)
			} else {
				fmt.Fprintf(conn, "%.6f\n%.6f\n", az, 0.0)
			}
			rprt = rprtOK
		}
		if extended || rprt != rprtOK {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	if err := scanner.Err(); err != nil {
		zap.S().Infof("reading from %v: %v", conn.RemoteAddr(), err)
	}
}
