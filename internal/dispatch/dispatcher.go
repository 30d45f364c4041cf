package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"mdbot/internal/settings"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

// DefaultTimeout bounds a command handler that sets no timeout of its own.
const DefaultTimeout = 15 * time.Second

type Deps struct {
	Log      logx.Logger
	Adapter  kit.Adapter
	Store    store.Store
	Settings *settings.Registry
	Admins   []string
	Timeout  time.Duration // default for commands without one
}

// Dispatcher routes updates to the registered handlers. Registration
// happens once during startup; the admin list may be swapped at runtime.
type Dispatcher struct {
	log      logx.Logger
	adapter  kit.Adapter
	store    store.Store
	registry *settings.Registry
	timeout  time.Duration

	mu     sync.RWMutex
	admins []string

	commands    map[string]Command
	passives    []Passive
	memberships []Membership
}

func New(d Deps) *Dispatcher {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		log:      log,
		adapter:  d.Adapter,
		store:    d.Store,
		registry: d.Settings,
		timeout:  timeout,
		admins:   append([]string(nil), d.Admins...),
		commands: map[string]Command{},
	}
}

// SetRegistry installs the routing table. Call before Run.
func (d *Dispatcher) SetRegistry(cmds []Command, passives []Passive, memberships []Membership) {
	table := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		table[name] = c
	}
	d.mu.Lock()
	d.commands = table
	d.passives = append([]Passive(nil), passives...)
	d.memberships = append([]Membership(nil), memberships...)
	d.mu.Unlock()
}

// SetAdmins swaps the allow-list. Safe during hot reload.
func (d *Dispatcher) SetAdmins(admins []string) {
	cp := append([]string(nil), admins...)
	d.mu.Lock()
	d.admins = cp
	d.mu.Unlock()
}

func (d *Dispatcher) adminsSnapshot() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.admins...)
}

// MenuCommands lists the visible, non-admin commands for the platform menu,
// sorted by name.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(d.commands))
	for _, c := range d.commands {
		if c.AdminOnly || c.Hidden {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Commands returns the full table for help rendering, sorted by name.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Command, 0, len(d.commands))
	for _, c := range d.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run consumes updates until ctx is done or the channel closes. One event
// is processed to completion before the next is read.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan kit.Update) error {
	d.log.Info("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return nil
		case up, ok := <-updates:
			if !ok {
				d.log.Info("dispatcher stopped (updates channel closed)")
				return nil
			}
			d.handle(ctx, up)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		d.handleMessage(ctx, up)
	case kit.UpdateMember:
		d.handleMember(ctx, up)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	req := d.newRequest(ctx, up)
	req.Msg = msg
	req.Chat = kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	req.FromID = msg.From.ID

	if !strings.HasPrefix(text, "/") {
		d.runPassives(ctx, req)
		return
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	word := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	d.mu.RLock()
	cmd, ok := d.commands[word]
	d.mu.RUnlock()
	if !ok {
		// The platform's own "unknown command" affordance covers this.
		return
	}

	req.Command = cmd.Name
	req.Args = fields[1:]
	req.ArgText = strings.Join(fields[1:], " ")
	req.Log = req.Log.With(logx.String("cmd", cmd.Name))

	if cmd.AdminOnly && !req.IsAdmin() {
		req.Log.Warn("unauthorized command", logx.Int64("from_id", req.FromID))
		_ = req.Reply(ctx, "unauthorized")
		return
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(timeout),
	)
	_ = final(ctx, req)
}

func (d *Dispatcher) handleMember(ctx context.Context, up kit.Update) {
	ev := up.Member
	if ev == nil {
		return
	}
	req := d.newRequest(ctx, up)
	req.Member = ev
	req.Chat = kit.ChatTarget{ChatID: ev.ChatID}

	d.mu.RLock()
	hs := d.memberships
	d.mu.RUnlock()
	for _, h := range hs {
		d.runIsolated(ctx, "membership", h.Name, h.Handle, req)
	}
}

// runPassives walks the whole chain; a failing or panicking passive never
// stops the ones after it.
func (d *Dispatcher) runPassives(ctx context.Context, req *Request) {
	d.mu.RLock()
	ps := d.passives
	d.mu.RUnlock()
	for _, p := range ps {
		d.runIsolated(ctx, "passive", p.Name, p.Handle, req)
	}
}

func (d *Dispatcher) runIsolated(ctx context.Context, kind, name string, h HandlerFunc, req *Request) {
	if h == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				d.log.Error(kind+" panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		return h(ctx, req)
	}()
	if err != nil {
		req.Log.Debug(kind+" failed", logx.String("name", name), logx.Err(err))
	}
}

// newRequest snapshots settings and builds the request-scoped logger.
func (d *Dispatcher) newRequest(ctx context.Context, up kit.Update) *Request {
	rid := newReqID()
	var snap settings.Settings
	if d.registry != nil {
		snap = d.registry.Current(ctx)
	} else {
		snap = settings.Defaults()
	}
	return &Request{
		Update:   up,
		ReqID:    rid,
		Settings: snap,
		Store:    d.store,
		Adapter:  d.adapter,
		Admins:   d.adminsSnapshot(),
		Log:      d.log.With(logx.String("rid", rid)),
	}
}
