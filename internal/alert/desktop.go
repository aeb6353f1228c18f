// Package alert raises out-of-band cues for new notifications: a desktop
// popup over the freedesktop notification service and a short chime.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus"
	"go.uber.org/zap"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = notifyDest + ".Notify"
	closeMethod  = notifyDest + ".CloseNotification"
	capsMethod   = notifyDest + ".GetCapabilities"
)

// Message is one desktop popup. Popups sharing a Tag replace each other.
type Message struct {
	Tag     string
	Summary string
	Body    string
	Icon    string
}

// Bus is the slice of the notification service the Desktop needs.
type Bus interface {
	// Notify shows m, replacing the popup with id replaces when non-zero,
	// and returns the id the service assigned.
	Notify(appName string, replaces uint32, m Message) (uint32, error)
	CloseNotification(id uint32) error
	// Ping reports whether the service is reachable.
	Ping() error
}

type sessionBus struct {
	obj dbus.BusObject
}

// ConnectSessionBus attaches to the notification service on the user's
// session bus.
func ConnectSessionBus() (Bus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	return &sessionBus{obj: conn.Object(notifyDest, notifyPath)}, nil
}

func (b *sessionBus) Notify(appName string, replaces uint32, m Message) (uint32, error) {
	hints := map[string]dbus.Variant{
		"category": dbus.MakeVariant("im.received"),
	}
	var id uint32
	// Expiry is handled by the Desktop, so the server timeout is disabled.
	err := b.obj.Call(notifyMethod, 0,
		appName, replaces, m.Icon, m.Summary, m.Body, []string{}, hints, int32(0),
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("showing notification: %w", err)
	}
	return id, nil
}

func (b *sessionBus) CloseNotification(id uint32) error {
	if call := b.obj.Call(closeMethod, 0, id); call.Err != nil {
		return fmt.Errorf("closing notification %d: %w", id, call.Err)
	}
	return nil
}

func (b *sessionBus) Ping() error {
	var caps []string
	if err := b.obj.Call(capsMethod, 0).Store(&caps); err != nil {
		return fmt.Errorf("querying notification service: %w", err)
	}
	return nil
}

// Desktop shows popups and dismisses each one after a fixed delay.
type Desktop struct {
	bus          Bus
	appName      string
	dismissAfter time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	byTag  map[string]uint32
	timers map[uint32]*time.Timer
	closed bool
}

// NewDesktop creates a Desktop over bus. A non-positive dismissAfter
// leaves popups to the service's own expiry.
func NewDesktop(bus Bus, appName string, dismissAfter time.Duration, logger *zap.Logger) *Desktop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Desktop{
		bus:          bus,
		appName:      appName,
		dismissAfter: dismissAfter,
		logger:       logger,
		byTag:        make(map[string]uint32),
		timers:       make(map[uint32]*time.Timer),
	}
}

// Show displays m and schedules its dismissal.
func (d *Desktop) Show(m Message) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	replaces := d.byTag[m.Tag]
	d.mu.Unlock()

	id, err := d.bus.Notify(d.appName, replaces, m)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if m.Tag != "" {
		d.byTag[m.Tag] = id
	}
	if d.dismissAfter <= 0 {
		return nil
	}
	if t, ok := d.timers[id]; ok {
		t.Stop()
	}
	d.timers[id] = time.AfterFunc(d.dismissAfter, func() { d.dismiss(id, m.Tag) })
	return nil
}

func (d *Desktop) dismiss(id uint32, tag string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.timers, id)
	if d.byTag[tag] == id {
		delete(d.byTag, tag)
	}
	d.mu.Unlock()

	if err := d.bus.CloseNotification(id); err != nil {
		d.logger.Debug("dismiss failed", zap.Uint32("id", id), zap.Error(err))
	}
}

// Available reports whether the notification service answers.
func (d *Desktop) Available() bool {
	return d.bus.Ping() == nil
}

// Close stops every pending dismissal. Popups already shown stay up.
func (d *Desktop) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// Pending returns the number of scheduled dismissals.
func (d *Desktop) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
