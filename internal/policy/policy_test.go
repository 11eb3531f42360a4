package policy

import "testing"

func TestDecide(t *testing.T) {
	base := DefaultConfig()

	withRepeat := func(n int) Config {
		c := base
		c.RepeatCount = n
		return c
	}
	withPause := func(auto bool, secs float64) Config {
		c := base
		c.PauseAfterSentence = true
		c.AutoResume = auto
		c.PauseDurationSeconds = secs
		return c
	}

	tests := []struct {
		name       string
		index      int
		total      int
		repeat     int
		cfg        Config
		wantAction ActionType
		wantSeek   int
		wantPause  int
		wantRepeat int
	}{
		{"no repeat advances immediately", 0, 5, 0, base, ActionAdvance, 1, 0, 0},
		{"no repeat on last completes", 4, 5, 0, base, ActionComplete, NoSeek, 0, 0},
		{"single sentence completes", 0, 1, 0, base, ActionComplete, NoSeek, 0, 0},
		{"repeat 3 first play", 0, 3, 0, withRepeat(3), ActionRepeat, 0, RepeatPauseMs, 1},
		{"repeat 3 second play", 0, 3, 1, withRepeat(3), ActionRepeat, 0, RepeatPauseMs, 2},
		{"repeat 3 exhausted advances", 0, 3, 2, withRepeat(3), ActionAdvance, 1, 0, 0},
		{"repeat 5 fourth play", 1, 3, 3, withRepeat(5), ActionRepeat, 1, RepeatPauseMs, 4},
		{"repeat 5 exhausted on last completes", 2, 3, 4, withRepeat(5), ActionComplete, NoSeek, 0, 0},
		{"infinite repeat keeps repeating", 2, 3, 99, withRepeat(InfiniteRepeat), ActionRepeat, 2, RepeatPauseMs, 100},
		{"auto resume pause", 0, 2, 0, withPause(true, 2.5), ActionAdvance, 1, 2500, 0},
		{"zero second auto resume pause", 0, 2, 0, withPause(true, 0), ActionAdvance, 1, 0, 0},
		{"manual resume pause", 0, 2, 0, withPause(false, 2), ActionAdvance, 1, ManualResume, 0},
		{"repeat pause ignores user pause", 0, 2, 0, func() Config { c := withPause(true, 4); c.RepeatCount = 3; return c }(), ActionRepeat, 0, RepeatPauseMs, 1},
		{"pause settings do not affect completion", 1, 2, 0, withPause(false, 2), ActionComplete, NoSeek, 0, 0},
		{"auto advance off does not change the decision", 0, 3, 0, func() Config { c := base; c.AutoAdvance = false; return c }(), ActionAdvance, 1, 0, 0},
		{"auto advance off keeps the timed pause", 0, 2, 0, func() Config { c := withPause(true, 2); c.AutoAdvance = false; return c }(), ActionAdvance, 1, 2000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.index, tt.total, RepeatState{CurrentRepeat: tt.repeat}, tt.cfg)
			if d.Action != tt.wantAction {
				t.Errorf("Action = %v, want %v", d.Action, tt.wantAction)
			}
			if d.SeekTo != tt.wantSeek {
				t.Errorf("SeekTo = %d, want %d", d.SeekTo, tt.wantSeek)
			}
			if d.PauseMs != tt.wantPause {
				t.Errorf("PauseMs = %d, want %d", d.PauseMs, tt.wantPause)
			}
			if d.Next.CurrentRepeat != tt.wantRepeat {
				t.Errorf("Next.CurrentRepeat = %d, want %d", d.Next.CurrentRepeat, tt.wantRepeat)
			}
			if d.DebugMessage == "" {
				t.Error("DebugMessage should not be empty")
			}
		})
	}
}

func TestDecide_RepeatCountOneNeverRepeats(t *testing.T) {
	cfg := DefaultConfig()
	rs := RepeatState{}
	for i := 0; i < 10; i++ {
		d := Decide(i, 11, rs, cfg)
		if d.Action == ActionRepeat {
			t.Fatalf("sentence %d repeated with RepeatCount 1", i)
		}
		if d.Next.CurrentRepeat != 0 {
			t.Fatalf("CurrentRepeat = %d, want 0", d.Next.CurrentRepeat)
		}
		rs = d.Next
	}
}

func TestDecide_PlaysExactlyNTimes(t *testing.T) {
	for _, n := range []int{3, 5} {
		cfg := DefaultConfig()
		cfg.RepeatCount = n

		plays := 1
		rs := RepeatState{}
		for {
			d := Decide(0, 2, rs, cfg)
			rs = d.Next
			if d.Action != ActionRepeat {
				break
			}
			plays++
			if plays > n+1 {
				break
			}
		}
		if plays != n {
			t.Errorf("RepeatCount %d: sentence played %d times, want %d", n, plays, n)
		}
	}
}

func TestDecide_HotSwapRepeatCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepeatCount = 3

	d := Decide(0, 3, RepeatState{}, cfg)
	if d.Action != ActionRepeat {
		t.Fatalf("first decision = %v, want repeat", d.Action)
	}

	cfg.RepeatCount = 1
	d = Decide(0, 3, d.Next, cfg)
	if d.Action != ActionAdvance || d.PauseMs != 0 {
		t.Errorf("after switching to 1: action=%v pause=%d, want advance with no pause", d.Action, d.PauseMs)
	}
	if d.Next.CurrentRepeat != 0 {
		t.Errorf("CurrentRepeat = %d, want reset to 0", d.Next.CurrentRepeat)
	}
}

func TestDecide_RepeatInfo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepeatCount = InfiniteRepeat
	d := Decide(0, 2, RepeatState{CurrentRepeat: 4}, cfg)
	if d.Info == nil {
		t.Fatal("Info should be set on repeat")
	}
	if got := d.Info.String(); got != "6/∞" {
		t.Errorf("Info = %q, want %q", got, "6/∞")
	}

	cfg.RepeatCount = 1
	if d := Decide(0, 2, RepeatState{}, cfg); d.Info != nil {
		t.Errorf("Info = %v on advance, want nil", d.Info)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"repeat 5", func(c *Config) { c.RepeatCount = 5 }, false},
		{"infinite", func(c *Config) { c.RepeatCount = InfiniteRepeat }, false},
		{"repeat 2", func(c *Config) { c.RepeatCount = 2 }, true},
		{"repeat 0", func(c *Config) { c.RepeatCount = 0 }, true},
		{"pause 5", func(c *Config) { c.PauseDurationSeconds = 5 }, false},
		{"pause too long", func(c *Config) { c.PauseDurationSeconds = 5.5 }, true},
		{"negative pause", func(c *Config) { c.PauseDurationSeconds = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
