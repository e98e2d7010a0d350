package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"grimm.is/zonefwd/internal/audit"
	"grimm.is/zonefwd/internal/ctlplane"
	"grimm.is/zonefwd/internal/firewall"
	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/metrics"
	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/network"
)

var (
	// ErrEmptyName is returned by addif and delif without a network name.
	ErrEmptyName = errors.New("empty network name")
	// ErrUnknownNetwork is returned by addif and delif for a name no zone
	// declares.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrUnknownRequest is returned for a message type the loop does not
	// handle.
	ErrUnknownRequest = errors.New("unknown request")
)

// AddressSource reports the current interface addresses.
type AddressSource interface {
	Resolve(family int) ([]network.Address, error)
}

// Loader reads the configuration again for reload.
type Loader func() (*model.Model, error)

// Recorder persists audit events. *audit.Store implements it.
type Recorder interface {
	Record(ctx context.Context, evt audit.Event) error
}

// State is everything the loop owns: the active rule model, whose
// Network.Addr fields are the address cache, and what is installed.
type State struct {
	Model *model.Model
	Rules *firewall.State
}

// Options configures a Reconciler.
type Options struct {
	Synth    *firewall.Synthesizer
	Source   AddressSource
	Family   int
	Interval time.Duration
	Load     Loader
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Audit    Recorder
	// RunScript executes an include. Defaults to running it with /bin/sh.
	RunScript func(ctx context.Context, path string) error
}

// Reconciler keeps the installed ruleset in step with interface addresses.
type Reconciler struct {
	state     *State
	synth     *firewall.Synthesizer
	source    AddressSource
	family    int
	interval  time.Duration
	load      Loader
	logger    *logging.Logger
	metrics   *metrics.Registry
	audit     Recorder
	runScript func(ctx context.Context, path string) error
}

// New creates a Reconciler for m.
func New(m *model.Model, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := &Reconciler{
		state:     &State{Model: m, Rules: firewall.NewState()},
		synth:     opts.Synth,
		source:    opts.Source,
		family:    opts.Family,
		interval:  opts.Interval,
		load:      opts.Load,
		logger:    logger.WithComponent("reconciler"),
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		runScript: opts.RunScript,
	}
	if r.interval <= 0 {
		r.interval = time.Second
	}
	if r.family == 0 {
		r.family = network.FamilyV4
	}
	if r.runScript == nil {
		r.runScript = runShell
	}
	return r
}

// State returns the loop's state. It must only be used from the loop
// goroutine.
func (r *Reconciler) State() *State {
	return r.state
}

func runShell(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, "/bin/sh", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

// Start seeds the address cache from one poll and builds the full ruleset.
// A failed poll leaves every network down until the next Step.
func (r *Reconciler) Start(ctx context.Context) error {
	if list, err := r.source.Resolve(r.family); err != nil {
		r.metrics.RecordPollFailure()
		r.logger.Warn("initial address poll failed", "error", err)
	} else {
		for _, n := range r.state.Model.Networks() {
			n.Addr = network.Lookup(list, n.Ifname)
		}
	}
	return r.Build(ctx)
}

// Step runs one reconciliation pass. A failed poll skips the pass and is
// not an error; errors come from the synthesizer.
//
// The cached address of a network only moves to the polled one once the
// synthesizer succeeded, so a failed transition is retried on the next
// pass. A failure on one network does not stop the others unless it is a
// commit failure.
func (r *Reconciler) Step(ctx context.Context) error {
	list, err := r.source.Resolve(r.family)
	if err != nil {
		r.metrics.RecordPollFailure()
		r.logger.Warn("address poll failed, skipping cycle", "error", err)
		return nil
	}

	var errs []error
	for _, n := range r.state.Model.Networks() {
		cur := network.Lookup(list, n.Ifname)
		t := Classify(n.Addr, cur)
		if t == Unchanged {
			continue
		}
		r.logger.Info("network "+t.String(), "network", n.Name, "ifname", n.Ifname,
			"old", n.Addr.String(), "new", cur.String())

		err := r.transition(n, t, cur)
		r.metrics.RecordTransition(n.Name, t.String())
		r.record(ctx, audit.Event{Kind: audit.KindTransition, Action: t.String(), Network: n.Name}, err)
		if err == nil {
			continue
		}
		err = fmt.Errorf("%s %s: %w", t, n.Name, err)
		if errors.Is(err, firewall.ErrCommit) {
			r.metrics.SetAddressedNetworks(r.addressed())
			return err
		}
		errs = append(errs, err)
	}
	r.metrics.SetAddressedNetworks(r.addressed())
	return errors.Join(errs...)
}

// transition applies t to n. On failure n keeps its previous address.
func (r *Reconciler) transition(n *model.Network, t Transition, cur model.Cidr) error {
	m, st := r.state.Model, r.state.Rules
	prev := n.Addr
	var err error
	switch t {
	case Up:
		n.Addr = cur
		err = r.synth.AddInterface(m, st, n)
	case Down:
		err = r.synth.RemoveInterface(st, n)
		if err == nil {
			n.Addr = model.Cidr{}
		}
	case Changed:
		n.Addr = cur
		err = r.synth.ChangeInterface(m, st, n)
	}
	if err != nil {
		n.Addr = prev
	}
	return err
}

func (r *Reconciler) addressed() int {
	count := 0
	for _, n := range r.state.Model.Networks() {
		if !n.Addr.IsEmpty() {
			count++
		}
	}
	return count
}

func (r *Reconciler) record(ctx context.Context, evt audit.Event, err error) {
	if r.audit == nil {
		return
	}
	evt.Success = err == nil
	if err != nil {
		evt.Error = err.Error()
	}
	if rerr := r.audit.Record(ctx, evt); rerr != nil {
		r.logger.Warn("audit record failed", "error", rerr)
	}
}

// Flush clears the ruleset.
func (r *Reconciler) Flush(ctx context.Context) error {
	return r.synth.ClearRuleset(r.state.Rules)
}

// Build rebuilds the whole ruleset from the cached addresses, then runs
// the includes.
func (r *Reconciler) Build(ctx context.Context) error {
	if err := r.synth.Rebuild(r.state.Model, r.state.Rules); err != nil {
		return err
	}
	r.metrics.SetAddressedNetworks(r.addressed())
	r.runIncludes(ctx)
	return nil
}

func (r *Reconciler) runIncludes(ctx context.Context) {
	for _, inc := range r.state.Model.Includes {
		if err := r.runScript(ctx, inc.Path); err != nil {
			r.logger.Warn("include failed", "path", inc.Path, "error", err)
			continue
		}
		r.logger.Info("include applied", "path", inc.Path)
	}
}

// Reload loads the configuration again and, on success, replaces the model
// and rebuilds. Networks keep the address last seen under the same name.
// On a load error nothing changes.
func (r *Reconciler) Reload(ctx context.Context) error {
	if r.load == nil {
		return errors.New("reload not supported")
	}
	m, err := r.load()
	r.metrics.RecordReload(err)
	if err != nil {
		r.logger.Error("reload failed, keeping current configuration", "error", err)
		return fmt.Errorf("reload: %w", err)
	}

	old := r.state.Model
	for _, n := range m.Networks() {
		if prev := old.Network(n.Name); prev != nil && prev.Ifname == n.Ifname {
			n.Addr = prev.Addr
		}
	}
	if err := r.synth.ClearRuleset(r.state.Rules); err != nil {
		return err
	}
	r.state.Model = m
	r.logger.Info("configuration reloaded", "zones", len(m.Zones), "networks", len(m.Networks()))
	return r.Build(ctx)
}

func (r *Reconciler) lookup(name string) (*model.Network, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	n := r.state.Model.Network(name)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return n, nil
}

// AddIf reinstalls the entries of the named network.
func (r *Reconciler) AddIf(ctx context.Context, name string) error {
	n, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := r.synth.RemoveInterface(r.state.Rules, n); err != nil {
		return err
	}
	return r.synth.AddInterface(r.state.Model, r.state.Rules, n)
}

// DelIf removes the entries of the named network.
func (r *Reconciler) DelIf(ctx context.Context, name string) error {
	n, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.synth.RemoveInterface(r.state.Rules, n)
}

// Handle dispatches one control request.
func (r *Reconciler) Handle(ctx context.Context, req *ctlplane.Request) error {
	var err error
	switch req.Msg.Type {
	case ctlplane.TypeFlush:
		err = r.Flush(ctx)
	case ctlplane.TypeBuild:
		err = r.Build(ctx)
	case ctlplane.TypeReload:
		err = r.Reload(ctx)
	case ctlplane.TypeAddIf:
		err = r.AddIf(ctx, req.Msg.Name)
	case ctlplane.TypeDelIf:
		err = r.DelIf(ctx, req.Msg.Name)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownRequest, req.Msg.Type)
	}
	r.record(ctx, audit.Event{
		Kind:      audit.KindControl,
		Action:    req.Msg.Type.String(),
		Network:   req.Msg.Name,
		RequestID: req.ID,
	}, err)
	return err
}

// Shutdown removes every network's entries and clears the ruleset.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	for _, n := range r.state.Model.Networks() {
		if err := r.synth.RemoveInterface(r.state.Rules, n); err != nil {
			return err
		}
	}
	return r.synth.ClearRuleset(r.state.Rules)
}

// Run polls every interval and serves requests until ctx is cancelled,
// then shuts down. A commit failure ends the loop with an error wrapping
// firewall.ErrCommit. Other step errors are logged and request errors are
// returned to the client.
func (r *Reconciler) Run(ctx context.Context, requests <-chan *ctlplane.Request) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down")
			return r.Shutdown(context.Background())

		case <-ticker.C:
			if err := r.Step(ctx); err != nil {
				if errors.Is(err, firewall.ErrCommit) {
					return err
				}
				r.logger.Error("reconciliation failed", "error", err)
			}

		case req := <-requests:
			err := r.Handle(ctx, req)
			req.Respond(err)
			if errors.Is(err, firewall.ErrCommit) {
				return err
			}
		}
	}
}
