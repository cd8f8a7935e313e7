package logic

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

type fakeInput struct {
	raw, mask uint32
	reads     int
}

func (f *fakeInput) Read() (uint32, uint32) {
	f.reads++
	return f.raw, f.mask
}

func (f *fakeInput) Available() bool { return true }

type fakeTx struct {
	sent     []Packet
	sendErr  error
	next     CompletionToken
	complete map[CompletionToken]bool
	polls    int
}

func (f *fakeTx) Send(pkt Packet) (CompletionToken, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, pkt)
	tok := f.next
	f.next++
	return tok, nil
}

func (f *fakeTx) IsComplete(tok CompletionToken) bool {
	f.polls++
	return f.complete[tok]
}

// fakeTick reports one tick per call to fire.
type fakeTick struct{ ready bool }

func (f *fakeTick) fire()           { f.ready = true }
func (f *fakeTick) Available() bool { r := f.ready; f.ready = false; return r }

type sleepCall struct {
	ms        uint32
	retainRAM bool
}

type fakePower struct {
	now    uint32
	sleeps []sleepCall
	resets int
}

func (f *fakePower) Sleep(ms uint32, retainRAM bool) {
	f.sleeps = append(f.sleeps, sleepCall{ms, retainRAM})
}
func (f *fakePower) ResetSystem()  { f.resets++ }
func (f *fakePower) NowMs() uint32 { return f.now }

type harness struct {
	c     *Controller
	input *fakeInput
	tx    *fakeTx
	tick  *fakeTick
	power *fakePower
	logs  *bytes.Buffer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		input: &fakeInput{raw: 0xFFFFFFFF},
		tx:    &fakeTx{complete: map[CompletionToken]bool{}},
		tick:  &fakeTick{},
		power: &fakePower{now: 1000},
		logs:  &bytes.Buffer{},
	}
	h.c = NewController(cfg, Deps{
		Input:  h.input,
		Tx:     h.tx,
		Tick:   h.tick,
		Power:  h.power,
		Logger: log.New(h.logs, "", 0),
	})
	h.c.OnColdBoot()
	h.c.OnBoot()
	return h
}

// tickN delivers n tick-timer events, one per scheduler invocation.
func (h *harness) tickN(n int) {
	for i := 0; i < n; i++ {
		h.tick.fire()
		h.c.OnTick()
	}
}

// toAwaiting runs the work phase to the point the packet has been sent.
func (h *harness) toAwaiting(t *testing.T) {
	t.Helper()
	h.tickN(h.c.cfg.WorkCount)
	if got := h.c.State(); got != StateAwaitingCompletion {
		t.Fatalf("after work: got %s, want %s", got, StateAwaitingCompletion)
	}
}

func TestInitEntersWorkingJobWithoutTick(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.c.OnTick()

	if got := h.c.State(); got != StateWorkingJob {
		t.Fatalf("state: got %s, want %s", got, StateWorkingJob)
	}
	if got := h.c.Info().Remaining; got != DefaultWorkCount {
		t.Errorf("remaining: got %d, want %d", got, DefaultWorkCount)
	}
}

func TestWorkingJobRequiresExactlyNTicks(t *testing.T) {
	for _, n := range []int{1, 2, 7, 100} {
		cfg := DefaultConfig()
		cfg.WorkCount = n
		h := newHarness(t, cfg)

		h.tickN(n - 1)
		if n > 1 {
			if got := h.c.State(); got != StateWorkingJob {
				t.Errorf("N=%d after %d ticks: got %s, want %s", n, n-1, got, StateWorkingJob)
			}
		}
		if len(h.tx.sent) != 0 {
			t.Errorf("N=%d: sent %d packets before last tick", n, len(h.tx.sent))
		}

		h.tickN(1)
		if got := h.c.State(); got != StateAwaitingCompletion {
			t.Errorf("N=%d after %d ticks: got %s, want %s", n, n, got, StateAwaitingCompletion)
		}
		if len(h.tx.sent) != 1 {
			t.Errorf("N=%d: expected 1 packet, got %d", n, len(h.tx.sent))
		}
	}
}

func TestWorkingJobWaitsWithoutTicks(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for i := 0; i < 500; i++ {
		h.c.OnTick()
	}

	if got := h.c.State(); got != StateWorkingJob {
		t.Fatalf("state: got %s, want %s", got, StateWorkingJob)
	}
	if got := h.c.Info().Remaining; got != DefaultWorkCount {
		t.Errorf("remaining: got %d, want %d", got, DefaultWorkCount)
	}
}

func TestHundredthTickRequestsInSameInvocation(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.tickN(99)
	if got := h.c.State(); got != StateWorkingJob {
		t.Fatalf("after 99 ticks: got %s, want %s", got, StateWorkingJob)
	}
	if got := h.c.Info().Remaining; got != 1 {
		t.Errorf("remaining after 99 ticks: got %d, want 1", got)
	}

	h.tickN(1)
	if len(h.tx.sent) != 1 {
		t.Fatalf("100th tick: expected packet sent, got %d", len(h.tx.sent))
	}
	if got := h.c.State(); got != StateAwaitingCompletion {
		t.Errorf("100th tick: got %s, want %s", got, StateAwaitingCompletion)
	}
}

func TestPacketContents(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.power.now = 0x01020304

	h.toAwaiting(t)

	pkt := h.tx.sent[0]
	if pkt.Dest != DestBroadcast {
		t.Errorf("dest: got %#x, want broadcast", pkt.Dest)
	}
	if pkt.Source != DefaultLogicalID {
		t.Errorf("source: got %#x, want %#x", pkt.Source, DefaultLogicalID)
	}
	if pkt.Retry != 1 {
		t.Errorf("retry: got %d, want 1", pkt.Retry)
	}
	if pkt.Delay != (DelaySpec{MinMs: 0, MaxMs: 0, RetrySpacingMs: 2}) {
		t.Errorf("delay: got %+v", pkt.Delay)
	}
	want := []byte{'t', 'e', 's', 't', '0', '0', '0', '1', '1', 0, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(pkt.Payload, want) {
		t.Errorf("payload: got % x, want % x", pkt.Payload, want)
	}
}

func TestButtonSelectsMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     uint32
		mask    uint32
		pressed bool
		msg     string
	}{
		{"released", 1 << DefaultButtonPin, FirstReport, false, MessageReleased},
		{"pressed", 0xFFFFFFFF &^ (1 << DefaultButtonPin), FirstReport, true, MessagePressed},
		{"other pins low", 1 << DefaultButtonPin, FirstReport, false, MessageReleased},
		{"all low", 0, FirstReport, true, MessagePressed},
		{"pressed since last read", 0xFFFFFFFF &^ (1 << DefaultButtonPin), 1 << DefaultButtonPin, true, MessagePressed},
		{"held low without change", 0xFFFFFFFF &^ (1 << DefaultButtonPin), 0, false, MessageReleased},
		{"released since last read", 0xFFFFFFFF, 1 << DefaultButtonPin, false, MessageReleased},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			h.input.raw = tt.raw
			h.input.mask = tt.mask

			h.toAwaiting(t)

			if h.input.reads != 1 {
				t.Errorf("reads: got %d, want 1", h.input.reads)
			}
			msg, _, err := DecodePayload(h.tx.sent[0].Payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg != tt.msg {
				t.Errorf("message: got %q, want %q", msg, tt.msg)
			}
			info := h.c.Info()
			if info.Pressed != tt.pressed {
				t.Errorf("pressed: got %v, want %v", info.Pressed, tt.pressed)
			}
			if info.LastMessage != tt.msg {
				t.Errorf("last message: got %q, want %q", info.LastMessage, tt.msg)
			}
		})
	}
}

func TestCompletionAt50msSleeps(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.toAwaiting(t)
	tok := CompletionToken(0)

	h.power.now += 30
	h.c.OnTick()
	if got := h.c.State(); got != StateAwaitingCompletion {
		t.Fatalf("at 30ms: got %s, want %s", got, StateAwaitingCompletion)
	}

	h.power.now += 20
	h.tx.complete[tok] = true
	h.c.OnTick()

	if got := h.c.State(); got != StateExitNormal {
		t.Fatalf("at 50ms: got %s, want %s", got, StateExitNormal)
	}
	if len(h.power.sleeps) != 1 {
		t.Fatalf("expected 1 sleep, got %d", len(h.power.sleeps))
	}
	if got := h.power.sleeps[0]; got != (sleepCall{ms: DefaultSleepMs, retainRAM: false}) {
		t.Errorf("sleep: got %+v, want %dms without RAM retention", got, DefaultSleepMs)
	}
	if h.power.resets != 0 {
		t.Errorf("unexpected reset")
	}
	if got := h.c.Info().LastSleepMs; got != DefaultSleepMs {
		t.Errorf("last sleep: got %d, want %d", got, DefaultSleepMs)
	}
}

func TestTimeoutAt150msIsFatal(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.toAwaiting(t)

	h.power.now += 150
	h.c.OnTick()

	if got := h.c.State(); got != StateExitFatal {
		t.Fatalf("state: got %s, want %s", got, StateExitFatal)
	}
	if h.power.resets != 1 {
		t.Errorf("resets: got %d, want 1", h.power.resets)
	}
	if len(h.power.sleeps) != 0 {
		t.Errorf("unexpected sleep")
	}
	if err := h.c.Info().Fatal; !errors.Is(err, ErrTransmitTimeout) {
		t.Errorf("fatal: got %v, want %v", err, ErrTransmitTimeout)
	}
	if !strings.Contains(h.logs.String(), "RESET THE SYSTEM") {
		t.Errorf("expected reset to be logged, got:\n%s", h.logs.String())
	}
}

func TestTimeoutIsStrict(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.toAwaiting(t)

	h.power.now += DefaultTxTimeoutMs
	h.c.OnTick()
	if got := h.c.State(); got != StateAwaitingCompletion {
		t.Fatalf("at exactly %dms: got %s, want %s", DefaultTxTimeoutMs, got, StateAwaitingCompletion)
	}

	h.power.now++
	h.c.OnTick()
	if got := h.c.State(); got != StateExitFatal {
		t.Fatalf("at %dms: got %s, want %s", DefaultTxTimeoutMs+1, got, StateExitFatal)
	}
}

func TestCompletionCheckedBeforeTimeout(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.toAwaiting(t)

	h.power.now += 150
	h.tx.complete[0] = true
	h.c.OnTick()

	if got := h.c.State(); got != StateExitNormal {
		t.Fatalf("state: got %s, want %s", got, StateExitNormal)
	}
	if h.power.resets != 0 {
		t.Errorf("unexpected reset")
	}
}

func TestTimeoutAcrossClockWrap(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.power.now = 0xFFFFFFFF - 10
	h.toAwaiting(t)

	h.power.now += 50 // wraps past zero
	h.c.OnTick()
	if got := h.c.State(); got != StateAwaitingCompletion {
		t.Fatalf("50ms after wrap: got %s, want %s", got, StateAwaitingCompletion)
	}

	h.power.now += 60
	h.c.OnTick()
	if got := h.c.State(); got != StateExitFatal {
		t.Fatalf("110ms after wrap: got %s, want %s", got, StateExitFatal)
	}
}

func TestSendFailureIsFatal(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.tx.sendErr = errors.New("no packet buffer")

	h.tickN(DefaultWorkCount)

	if got := h.c.State(); got != StateExitFatal {
		t.Fatalf("state: got %s, want %s", got, StateExitFatal)
	}
	if h.tx.polls != 0 {
		t.Errorf("completion polled %d times, want 0", h.tx.polls)
	}
	if h.power.resets != 1 {
		t.Errorf("resets: got %d, want 1", h.power.resets)
	}
	if err := h.c.Info().Fatal; !errors.Is(err, ErrTransmitRequestFailed) {
		t.Errorf("fatal: got %v, want %v", err, ErrTransmitRequestFailed)
	}
}

func TestRequestingHasExactlyOneOutcome(t *testing.T) {
	for _, sendErr := range []error{nil, errors.New("busy")} {
		h := newHarness(t, DefaultConfig())
		h.tx.sendErr = sendErr

		h.tickN(DefaultWorkCount)

		got := h.c.State()
		if got != StateAwaitingCompletion && got != StateExitFatal {
			t.Errorf("sendErr=%v: got %s", sendErr, got)
		}
		if (sendErr == nil) != (got == StateAwaitingCompletion) {
			t.Errorf("sendErr=%v: wrong outcome %s", sendErr, got)
		}
	}
}

func TestTerminalStatesActOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.toAwaiting(t)
	h.tx.complete[0] = true
	h.c.OnTick()

	h.tickN(10)
	for i := 0; i < 10; i++ {
		h.c.OnTick()
	}
	if len(h.power.sleeps) != 1 {
		t.Errorf("sleeps: got %d, want 1", len(h.power.sleeps))
	}

	h2 := newHarness(t, DefaultConfig())
	h2.toAwaiting(t)
	h2.power.now += 500
	for i := 0; i < 10; i++ {
		h2.c.OnTick()
	}
	if h2.power.resets != 1 {
		t.Errorf("resets: got %d, want 1", h2.power.resets)
	}
}

func TestWakeResetsToInit(t *testing.T) {
	setups := map[string]func(h *harness){
		"working job": func(h *harness) { h.tickN(10) },
		"awaiting": func(h *harness) {
			h.tickN(DefaultWorkCount)
		},
		"exit normal": func(h *harness) {
			h.tickN(DefaultWorkCount)
			h.tx.complete[0] = true
			h.c.OnTick()
		},
		"exit fatal": func(h *harness) {
			h.tx.sendErr = errors.New("down")
			h.tickN(DefaultWorkCount)
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			setup(h)

			h.c.OnWake()
			if got := h.c.State(); got != StateInit {
				t.Fatalf("after wake: got %s, want %s", got, StateInit)
			}
			if h.c.Info().Fatal != nil {
				t.Errorf("fatal not cleared")
			}

			h.tx.sendErr = nil
			h.c.OnTick()
			if got := h.c.Info().Remaining; got != DefaultWorkCount {
				t.Errorf("remaining after wake: got %d, want %d", got, DefaultWorkCount)
			}
		})
	}
}

func TestFullCyclesSleepEveryTime(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for cycle := 1; cycle <= 3; cycle++ {
		h.toAwaiting(t)
		h.tx.complete[CompletionToken(cycle-1)] = true
		h.c.OnTick()
		if got := h.c.State(); got != StateExitNormal {
			t.Fatalf("cycle %d: got %s, want %s", cycle, got, StateExitNormal)
		}
		h.c.OnWake()
		if got := h.c.Info().Cycle; got != cycle {
			t.Errorf("cycle counter: got %d, want %d", got, cycle)
		}
	}

	if len(h.power.sleeps) != 3 {
		t.Errorf("sleeps: got %d, want 3", len(h.power.sleeps))
	}
	if len(h.tx.sent) != 3 {
		t.Errorf("packets: got %d, want 3", len(h.tx.sent))
	}
}

func TestBootLogsBanner(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	logs := h.logs.String()
	for _, want := range []string{"--- sleep and tx node ---", "appid=1234abcd", "lid=fe", "1000: begin"} {
		if !strings.Contains(logs, want) {
			t.Errorf("boot log missing %q:\n%s", want, logs)
		}
	}
	if got := h.c.State(); got != StateInit {
		t.Errorf("after boot: got %s, want %s", got, StateInit)
	}
}

func TestPacketToParent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dest = DestParent
	h := newHarness(t, cfg)

	h.toAwaiting(t)

	if got := h.tx.sent[0].Dest; got != DestParent {
		t.Errorf("dest: got %#x, want parent", got)
	}
}
