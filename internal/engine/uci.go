package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the dialect seam: the generic ping/command/option shape a
// session needs, with the wire vocabulary left to the implementation.
type Protocol interface {
	// Start sends the protocol startup commands.
	Start(s *Session)
	// Ping sends the liveness probe; false means the probe could not be
	// sent and no heartbeat should be armed.
	Ping(s *Session) bool
	// SetOption emits the dialect's set-option command through the
	// session's write path, so it is subject to buffering rules.
	SetOption(s *Session, name, value string)
	// Quit sends the termination command.
	Quit(s *Session)
	// ParseLine interprets one line of engine output and feeds the
	// session's domain hooks.
	ParseLine(s *Session, line string)
}

// UCI implements the Universal Chess Interface dialect.
type UCI struct{}

func (UCI) Start(s *Session) {
	s.Write("uci")
}

func (UCI) Ping(s *Session) bool {
	return s.sendNow("isready")
}

func (UCI) SetOption(s *Session, name, value string) {
	if value == "" {
		s.Write("setoption name " + name)
		return
	}
	s.Write(fmt.Sprintf("setoption name %s value %s", name, value))
}

func (UCI) Quit(s *Session) {
	s.Write("quit")
}

func (UCI) ParseLine(s *Session, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "uciok":
		s.OnProtocolStart()
	case "readyok":
		s.OnHeartbeatAck()
	case "bestmove":
		if len(fields) >= 2 {
			s.onMovePlayed(fields[1])
		}
	case "option":
		if o := parseUCIOption(fields[1:]); o != nil {
			s.DeclareOption(o)
		}
	case "id":
		if len(fields) >= 3 && fields[1] == "name" {
			s.SetName(strings.Join(fields[2:], " "))
		}
	}
	// info/registration/etc. lines are deliberately ignored
}

// parseUCIOption reads the token list after "option", e.g.
// "name Skill Level type spin default 20 min 0 max 20".
func parseUCIOption(fields []string) *Option {
	var (
		name    []string
		typeStr string
		current string
		defVal  []string
		minStr  string
		maxStr  string
		vars    []string
		varCur  []string
	)
	flushVar := func() {
		if len(varCur) > 0 {
			vars = append(vars, strings.Join(varCur, " "))
			varCur = nil
		}
	}
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		switch tok {
		case "name", "type", "default", "min", "max", "var":
			flushVar()
			current = tok
			continue
		}
		switch current {
		case "name":
			name = append(name, tok)
		case "type":
			typeStr = tok
		case "default":
			defVal = append(defVal, tok)
		case "min":
			minStr = tok
		case "max":
			maxStr = tok
		case "var":
			varCur = append(varCur, tok)
		}
	}
	flushVar()

	if len(name) == 0 {
		return nil
	}
	o := &Option{Name: strings.Join(name, " "), Vars: vars}
	switch typeStr {
	case "check":
		o.Type = OptionCheck
	case "spin":
		o.Type = OptionSpin
	case "combo":
		o.Type = OptionCombo
	case "button":
		o.Type = OptionButton
	default:
		o.Type = OptionString
	}
	o.Default = strings.Join(defVal, " ")
	if o.Default == "<empty>" {
		o.Default = ""
	}
	o.Value = o.Default
	if o.Type == OptionSpin {
		o.Min, _ = strconv.Atoi(minStr)
		o.Max, _ = strconv.Atoi(maxStr)
	}
	return o
}

// PositionCommand renders a UCI position line for the given start FEN
// ("" or "startpos" for the initial position) and move history.
func PositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

// GoCommand renders a UCI go line from the time control. A zero time
// control falls back to a one second movetime.
func GoCommand(tc TimeControl) string {
	if tc.TimePerMove > 0 {
		return fmt.Sprintf("go movetime %d", tc.TimePerMove.Milliseconds())
	}
	if tc.TimePerTC > 0 {
		t := tc.TimePerTC.Milliseconds()
		inc := tc.Increment.Milliseconds()
		return fmt.Sprintf("go wtime %d btime %d winc %d binc %d", t, t, inc, inc)
	}
	return "go movetime 1000"
}
