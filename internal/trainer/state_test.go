package trainer

import "testing"

func TestMachineSaveLifecycle(t *testing.T) {
	m := NewMachine()
	steps := [][2]State{
		{NotStarted, Training},
		{Training, Succeeded},
		{Succeeded, Saving},
		{Saving, SaveSucceeded},
	}
	for _, s := range steps {
		if err := m.Transition(s[0], s[1]); err != nil {
			t.Fatalf("transition %s -> %s: %v", s[0], s[1], err)
		}
	}
	if !IsTerminal(m.Current()) {
		t.Fatalf("%s should be terminal", m.Current())
	}
	want := []State{NotStarted, Training, Succeeded, Saving, SaveSucceeded}
	got := m.Trail()
	if len(got) != len(want) {
		t.Fatalf("trail %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trail %v, want %v", got, want)
		}
	}
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name     string
		prepare  [][2]State
		from, to State
	}{
		{name: "skip training", from: NotStarted, to: Succeeded},
		{name: "save before training", from: NotStarted, to: Saving},
		{name: "save after failure", prepare: [][2]State{{NotStarted, Training}, {Training, Failed}}, from: Failed, to: Saving},
		{name: "wrong from", prepare: [][2]State{{NotStarted, Training}}, from: NotStarted, to: Training},
		{name: "leave terminal", prepare: [][2]State{{NotStarted, Training}, {Training, Succeeded}, {Succeeded, Saving}, {Saving, SaveFailed}}, from: SaveFailed, to: Saving},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine()
			for _, s := range tc.prepare {
				if err := m.Transition(s[0], s[1]); err != nil {
					t.Fatalf("prepare %s -> %s: %v", s[0], s[1], err)
				}
			}
			before := m.Current()
			if err := m.Transition(tc.from, tc.to); err == nil {
				t.Fatalf("expected %s -> %s to fail", tc.from, tc.to)
			}
			if m.Current() != before {
				t.Fatalf("state changed to %s after rejected transition", m.Current())
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []State{NotStarted, Training, Succeeded, Saving} {
		if IsTerminal(s) {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{Failed, SaveSucceeded, SaveFailed} {
		if !IsTerminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
