package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseTimeControl(t *testing.T) {
	cases := []struct {
		in   string
		want TimeControl
	}{
		{"none", TimeControl{}},
		{"", TimeControl{}},
		{"inf", TimeControl{Infinite: true}},
		{"60", TimeControl{TimePerTC: time.Minute}},
		{"60+1", TimeControl{TimePerTC: time.Minute, Increment: time.Second}},
		{"40/300+0.5", TimeControl{MovesPerTC: 40, TimePerTC: 5 * time.Minute, Increment: 500 * time.Millisecond}},
		{"3/move", TimeControl{TimePerMove: 3 * time.Second}},
	}
	for _, tc := range cases {
		got, err := ParseTimeControl(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q = %+v, want %+v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"x", "0", "-5", "40/abc", "1+x"} {
		if _, err := ParseTimeControl(bad); err == nil {
			t.Fatalf("parse %q succeeded, want error", bad)
		}
	}
}

func TestTimeControlString(t *testing.T) {
	tc := TimeControl{MovesPerTC: 40, TimePerTC: 5 * time.Minute, Increment: 500 * time.Millisecond}
	if got := tc.String(); got != "40/300+0.5" {
		t.Fatalf("String() = %q", got)
	}
	if got := (TimeControl{}).String(); got != "none" {
		t.Fatalf("zero String() = %q", got)
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	raw := []byte(`
init_strings:
  - "debug off"
options:
  - name: Hash
    value: "128"
  - name: Threads
    value: "2"
time_control: "60+1"
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	st, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(st.InitStrings) != 1 || st.InitStrings[0] != "debug off" {
		t.Fatalf("init strings = %v", st.InitStrings)
	}
	if len(st.Options) != 2 || st.Options[0].Name != "Hash" || st.Options[1].Value != "2" {
		t.Fatalf("options = %+v", st.Options)
	}
}

func TestApplySettingsBeforeStart(t *testing.T) {
	s, stream := newTestSession(t)
	st := &Settings{
		InitStrings: []string{"debug off"},
		Options: []OptionSetting{
			{Name: "Hash", Value: "128"},
			{Name: "Threads", Value: "2"},
		},
		TimeControl: "60+1",
	}

	s.ApplySettings(st)
	if len(stream.lines) != 0 {
		t.Fatalf("settings reached the stream before start: %v", stream.lines)
	}

	s.Start()
	s.Dispatch(Event{Kind: EventLine, Line: "option name Hash type spin default 16 min 1 max 2048"})
	s.Dispatch(Event{Kind: EventLine, Line: "option name Threads type spin default 1 min 1 max 64"})
	s.Dispatch(Event{Kind: EventLine, Line: "uciok"})

	// init string flushed first, then the option edits in order
	var idxInit, idxHash, idxThreads int = -1, -1, -1
	for i, l := range stream.lines {
		switch l {
		case "debug off":
			idxInit = i
		case "setoption name Hash value 128":
			idxHash = i
		case "setoption name Threads value 2":
			idxThreads = i
		}
	}
	if idxInit == -1 || idxHash == -1 || idxThreads == -1 {
		t.Fatalf("missing settings traffic: %v", stream.lines)
	}
	if !(idxInit < idxHash && idxHash < idxThreads) {
		t.Fatalf("settings order wrong: %v", stream.lines)
	}
	if !s.TimeControl().Valid() || s.TimeControl().TimePerTC != time.Minute {
		t.Fatalf("time control = %+v", s.TimeControl())
	}
}
