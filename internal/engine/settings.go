package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// TimeControl is the per-game clock in the classic "40/300+2" shape:
// MovesPerTC moves in TimePerTC with Increment per move, or a fixed
// TimePerMove.
type TimeControl struct {
	MovesPerTC  int
	TimePerTC   time.Duration
	Increment   time.Duration
	TimePerMove time.Duration
	Infinite    bool
}

func (tc TimeControl) Valid() bool {
	return tc.Infinite || tc.TimePerTC > 0 || tc.TimePerMove > 0
}

func (tc TimeControl) String() string {
	switch {
	case tc.Infinite:
		return "inf"
	case tc.TimePerMove > 0:
		return fmt.Sprintf("%s/move", formatSeconds(tc.TimePerMove))
	case tc.TimePerTC > 0:
		s := formatSeconds(tc.TimePerTC)
		if tc.MovesPerTC > 0 {
			s = fmt.Sprintf("%d/%s", tc.MovesPerTC, s)
		}
		if tc.Increment > 0 {
			s += "+" + formatSeconds(tc.Increment)
		}
		return s
	default:
		return "none"
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// ParseTimeControl reads "inf", "none", "S", "S+I", "M/S+I" or "S/move",
// with all numbers in seconds.
func ParseTimeControl(text string) (TimeControl, error) {
	raw := strings.TrimSpace(strings.ToLower(text))
	switch raw {
	case "", "none":
		return TimeControl{}, nil
	case "inf", "infinite":
		return TimeControl{Infinite: true}, nil
	}

	if rest, ok := strings.CutSuffix(raw, "/move"); ok {
		sec, err := strconv.ParseFloat(rest, 64)
		if err != nil || sec <= 0 {
			return TimeControl{}, fmt.Errorf("bad time control %q", text)
		}
		return TimeControl{TimePerMove: seconds(sec)}, nil
	}

	var tc TimeControl
	rest := raw
	if moves, tail, ok := strings.Cut(raw, "/"); ok {
		n, err := strconv.Atoi(moves)
		if err != nil || n <= 0 {
			return TimeControl{}, fmt.Errorf("bad time control %q", text)
		}
		tc.MovesPerTC = n
		rest = tail
	}
	base := rest
	if b, inc, ok := strings.Cut(rest, "+"); ok {
		sec, err := strconv.ParseFloat(inc, 64)
		if err != nil || sec < 0 {
			return TimeControl{}, fmt.Errorf("bad time control %q", text)
		}
		tc.Increment = seconds(sec)
		base = b
	}
	sec, err := strconv.ParseFloat(base, 64)
	if err != nil || sec <= 0 {
		return TimeControl{}, fmt.Errorf("bad time control %q", text)
	}
	tc.TimePerTC = seconds(sec)
	return tc, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// OptionSetting is one custom option edit, applied in file order.
type OptionSetting struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Settings is the declarative per-engine configuration replayed into a
// session at startup.
type Settings struct {
	InitStrings []string        `yaml:"init_strings"`
	Options     []OptionSetting `yaml:"options"`
	TimeControl string          `yaml:"time_control"`
}

func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var st Settings
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if _, err := ParseTimeControl(st.TimeControl); err != nil {
		return nil, err
	}
	return &st, nil
}

// ApplySettings replays raw init lines through the write path, then
// applies each custom option edit, then installs the time control. All
// of it obeys the session's buffering/deferral rules.
func (s *Session) ApplySettings(st *Settings) {
	if st == nil {
		return
	}
	for _, line := range st.InitStrings {
		if strings.TrimSpace(line) != "" {
			s.Write(line)
		}
	}
	for _, opt := range st.Options {
		s.SetOption(opt.Name, opt.Value)
	}
	if tc, err := ParseTimeControl(st.TimeControl); err == nil && tc.Valid() {
		s.SetTimeControl(tc)
	}
}
