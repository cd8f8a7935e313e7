package logic

import (
	"fmt"
	"log"
)

// phase is the live cycle state. Each variant carries only its own data.
type phase interface {
	state() State
}

type (
	initPhase       struct{}
	requestingPhase struct{}

	workingJobPhase struct {
		remaining int
	}

	awaitingPhase struct {
		token    CompletionToken
		sentAtMs uint32
	}

	// Terminal phases act once, then stay parked until the next wake or reset.
	exitNormalPhase struct {
		done bool
	}

	exitFatalPhase struct {
		err  error
		done bool
	}
)

func (initPhase) state() State        { return StateInit }
func (requestingPhase) state() State  { return StateRequesting }
func (*workingJobPhase) state() State { return StateWorkingJob }
func (*awaitingPhase) state() State   { return StateAwaitingCompletion }
func (*exitNormalPhase) state() State { return StateExitNormal }
func (*exitFatalPhase) state() State  { return StateExitFatal }

// Controller drives one wake cycle at a time.
// It is not safe for concurrent use; the host scheduler owns it.
type Controller struct {
	cfg    Config
	input  InputSampler
	tx     Transmitter
	tick   TickTimer
	power  PowerManager
	rng    Random
	logger *log.Logger

	phase phase
	info  CycleInfo
}

// Deps bundles the collaborators of a Controller.
type Deps struct {
	Input  InputSampler
	Tx     Transmitter
	Tick   TickTimer
	Power  PowerManager
	Rand   Random      // nil disables sleep and delay randomization
	Logger *log.Logger // nil uses the standard logger
}

// NewController creates a controller in the INIT state.
func NewController(cfg Config, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		cfg:    cfg,
		input:  deps.Input,
		tx:     deps.Tx,
		tick:   deps.Tick,
		power:  deps.Power,
		rng:    deps.Rand,
		logger: logger,
		phase:  initPhase{},
	}
}

// OnColdBoot runs once after power-on, before OnBoot.
func (c *Controller) OnColdBoot() {
	c.phase = initPhase{}
	c.info = CycleInfo{State: StateInit}
	c.logger.Printf("--- sleep and tx node --- appid=%08x ch=%d lid=%02x btn=%d sleep=%dms±%dms",
		c.cfg.AppID, c.cfg.Channel, c.cfg.LogicalID, c.cfg.ButtonPin, c.cfg.SleepMs, c.cfg.SleepToleranceMs)
}

// OnBoot runs once after OnColdBoot.
func (c *Controller) OnBoot() {
	c.logger.Printf("%d: begin", c.power.NowMs())
}

// OnWake starts a new cycle. Whatever state the previous cycle ended in is discarded.
func (c *Controller) OnWake() {
	c.phase = initPhase{}
	c.info.Cycle++
	c.info.State = StateInit
	c.info.Remaining = 0
	c.info.Fatal = nil
	c.logger.Printf("%d: wake up (cycle %d)", c.power.NowMs(), c.info.Cycle)
}

// OnTick advances the state machine. It keeps stepping while transitions
// need no external event and returns once a state has to wait.
func (c *Controller) OnTick() {
	for more := true; more; {
		c.phase, more = c.step(c.phase)
	}
	c.info.State = c.phase.state()
}

// State returns the current cycle state.
func (c *Controller) State() State {
	return c.phase.state()
}

// Info returns a snapshot for status reporting.
func (c *Controller) Info() CycleInfo {
	info := c.info
	info.State = c.phase.state()
	if p, ok := c.phase.(*workingJobPhase); ok {
		info.Remaining = p.remaining
	}
	return info
}

// step evaluates p once and returns the next phase and whether to
// evaluate again within the same tick.
func (c *Controller) step(p phase) (phase, bool) {
	switch p := p.(type) {
	case initPhase:
		return &workingJobPhase{remaining: c.cfg.WorkCount}, true

	case *workingJobPhase:
		if !c.tick.Available() {
			return p, false
		}
		p.remaining--
		if p.remaining > 0 {
			return p, false
		}
		return requestingPhase{}, true

	case requestingPhase:
		tok, err := c.transmit()
		if err != nil {
			c.logger.Printf("%d: !FATAL: %v", c.power.NowMs(), err)
			return &exitFatalPhase{err: err}, true
		}
		now := c.power.NowMs()
		c.logger.Printf("%d: tx request success (%d)", now, tok)
		return &awaitingPhase{token: tok, sentAtMs: now}, true

	case *awaitingPhase:
		if c.tx.IsComplete(p.token) {
			c.logger.Printf("%d: tx completed (%d)", c.power.NowMs(), p.token)
			return &exitNormalPhase{}, true
		}
		now := c.power.NowMs()
		if elapsed := now - p.sentAtMs; elapsed > c.cfg.TxTimeoutMs {
			err := fmt.Errorf("%w: token %d after %dms", ErrTransmitTimeout, p.token, elapsed)
			c.logger.Printf("%d: !FATAL: %v", now, err)
			return &exitFatalPhase{err: err}, true
		}
		return p, false

	case *exitNormalPhase:
		if !p.done {
			p.done = true
			c.sleepNow()
		}
		return p, false

	case *exitFatalPhase:
		if !p.done {
			p.done = true
			c.info.Fatal = p.err
			c.logger.Printf("!FATAL: RESET THE SYSTEM (%v)", p.err)
			c.power.ResetSystem()
		}
		return p, false
	}
	panic(fmt.Sprintf("logic: unknown phase %T", p))
}

// transmit samples the button and sends the matching message.
func (c *Controller) transmit() (CompletionToken, error) {
	if !c.input.Available() {
		c.logger.Printf("button: no new report, using last stable state")
	}
	raw, mask := c.input.Read()
	obs := ButtonObservation{Raw: raw, ChangeMask: mask}
	pressed := obs.Pressed(c.cfg.ButtonPin)
	msg := SelectMessage(pressed)

	now := c.power.NowMs()
	c.logger.Printf("%d: transmit %q pressed=%v changed=%v initial=%v",
		now, msg, pressed, obs.Changed(c.cfg.ButtonPin), obs.Initial())

	c.info.Pressed = pressed
	c.info.LastMessage = msg

	tok, err := c.tx.Send(Packet{
		Source:  c.cfg.LogicalID,
		Dest:    c.cfg.Dest,
		Retry:   c.cfg.Retry,
		Delay:   c.cfg.Delay,
		Payload: EncodePayload(msg, now),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransmitRequestFailed, err)
	}
	c.info.LastToken = tok
	return tok, nil
}

func (c *Controller) sleepNow() {
	d := SleepDuration(c.cfg.SleepMs, c.cfg.SleepToleranceMs, c.rng)
	c.info.LastSleepMs = d
	c.logger.Printf("%d: sleeping for %dms", c.power.NowMs(), d)
	c.power.Sleep(d, false)
}
