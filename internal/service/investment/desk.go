package investment

import (
	"sync"
	"time"
)

// Desk is everything one dashboard session owns.
type Desk struct {
	Form      *Form
	Presenter *Presenter
	Workflow  *Workflow

	mu       sync.Mutex
	lastUsed time.Time
}

// DeskConfig configures every desk opened by a Desks registry.
type DeskConfig struct {
	AutoDismiss time.Duration
	Options     Options
}

// NewDesk builds a desk around provider.
func NewDesk(provider SessionProvider, cfg DeskConfig) *Desk {
	form := NewForm()
	presenter := NewPresenter(cfg.AutoDismiss)
	return &Desk{
		Form:      form,
		Presenter: presenter,
		Workflow:  NewWorkflow(form, presenter, provider, cfg.Options),
		lastUsed:  time.Now(),
	}
}

func (d *Desk) touch() {
	d.mu.Lock()
	d.lastUsed = time.Now()
	d.mu.Unlock()
}

func (d *Desk) idleSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUsed
}

// Close releases the desk's timer.
func (d *Desk) Close() { d.Presenter.Close() }

// Desks keeps one desk per browser session.
type Desks struct {
	mu    sync.Mutex
	cfg   DeskConfig
	desks map[string]*Desk
}

// NewDesks creates an empty registry.
func NewDesks(cfg DeskConfig) *Desks {
	return &Desks{cfg: cfg, desks: make(map[string]*Desk)}
}

// Open returns the desk for sessionID, creating it with newProvider on
// first use.
func (ds *Desks) Open(sessionID string, newProvider func() SessionProvider) *Desk {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	d, ok := ds.desks[sessionID]
	if !ok {
		d = NewDesk(newProvider(), ds.cfg)
		ds.desks[sessionID] = d
	}
	d.touch()
	return d
}

// Get returns an existing desk.
func (ds *Desks) Get(sessionID string) (*Desk, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	d, ok := ds.desks[sessionID]
	if ok {
		d.touch()
	}
	return d, ok
}

// Close discards the desk for sessionID.
func (ds *Desks) Close(sessionID string) {
	ds.mu.Lock()
	d, ok := ds.desks[sessionID]
	delete(ds.desks, sessionID)
	ds.mu.Unlock()
	if ok {
		d.Close()
	}
}

// Evict closes desks unused for longer than maxIdle, skipping any with a
// submission in flight, and returns how many were removed.
func (ds *Desks) Evict(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var stale []*Desk

	ds.mu.Lock()
	for id, d := range ds.desks {
		if d.idleSince().Before(cutoff) && !d.Workflow.State().InFlight() {
			stale = append(stale, d)
			delete(ds.desks, id)
		}
	}
	ds.mu.Unlock()

	for _, d := range stale {
		d.Close()
	}
	return len(stale)
}

// Len returns the number of open desks.
func (ds *Desks) Len() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.desks)
}
