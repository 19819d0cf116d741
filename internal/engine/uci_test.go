package engine

import (
	"testing"
)

func TestParseUCIOptionSpin(t *testing.T) {
	s, _ := newTestSession(t)
	s.Start()
	s.Dispatch(Event{Kind: EventLine, Line: "option name Skill Level type spin default 20 min 0 max 20"})
	s.Dispatch(Event{Kind: EventLine, Line: "uciok"})

	o := s.Option("Skill Level")
	if o == nil {
		t.Fatal("multi-word option name not declared")
	}
	if o.Type != OptionSpin || o.Min != 0 || o.Max != 20 || o.Default != "20" {
		t.Fatalf("parsed option = %+v", o)
	}
	if o.Validate("21") || o.Validate("x") || !o.Validate("10") {
		t.Fatal("spin validation wrong")
	}
}

func TestParseUCIOptionKinds(t *testing.T) {
	cases := []struct {
		line string
		name string
		typ  OptionType
		ok   string
		bad  string
	}{
		{"option name Ponder type check default false", "Ponder", OptionCheck, "true", "maybe"},
		{"option name Clear Hash type button", "Clear Hash", OptionButton, "", "now"},
		{"option name SyzygyPath type string default <empty>", "SyzygyPath", OptionString, "/tmp/tb", ""},
		{"option name Style type combo default Normal var Solid var Normal var Risky", "Style", OptionCombo, "Risky", "Timid"},
	}
	for _, tc := range cases {
		s, _ := newTestSession(t)
		s.Start()
		s.Dispatch(Event{Kind: EventLine, Line: tc.line})
		s.Dispatch(Event{Kind: EventLine, Line: "uciok"})

		o := s.Option(tc.name)
		if o == nil {
			t.Fatalf("option %q not declared from %q", tc.name, tc.line)
		}
		if o.Type != tc.typ {
			t.Fatalf("%s type = %v, want %v", tc.name, o.Type, tc.typ)
		}
		if !o.Validate(tc.ok) {
			t.Fatalf("%s rejected valid value %q", tc.name, tc.ok)
		}
		if tc.bad != "" && o.Validate(tc.bad) {
			t.Fatalf("%s accepted invalid value %q", tc.name, tc.bad)
		}
	}
}

func TestIDNameSetsSessionName(t *testing.T) {
	s, _ := newTestSession(t)
	s.Start()
	s.Dispatch(Event{Kind: EventLine, Line: "id name Stockfish 16.1"})
	if s.Name() != "Stockfish 16.1" {
		t.Fatalf("session name = %q", s.Name())
	}
}

func TestPositionCommand(t *testing.T) {
	if got := PositionCommand("", nil); got != "position startpos" {
		t.Fatalf("empty position = %q", got)
	}
	if got := PositionCommand("startpos", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5" {
		t.Fatalf("startpos with moves = %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := PositionCommand(fen, []string{"a1a2"}); got != "position fen "+fen+" moves a1a2" {
		t.Fatalf("fen position = %q", got)
	}
}

func TestGoCommand(t *testing.T) {
	tc, err := ParseTimeControl("2/move")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := GoCommand(tc); got != "go movetime 2000" {
		t.Fatalf("movetime go = %q", got)
	}

	tc, err = ParseTimeControl("60+1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := GoCommand(tc); got != "go wtime 60000 btime 60000 winc 1000 binc 1000" {
		t.Fatalf("clock go = %q", got)
	}

	if got := GoCommand(TimeControl{}); got != "go movetime 1000" {
		t.Fatalf("fallback go = %q", got)
	}
}
