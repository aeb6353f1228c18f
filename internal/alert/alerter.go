package alert

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/model"
)

const (
	appName     = "worknotify"
	playTimeout = 2 * time.Second
)

// Options configures an Alerter. A nil Desktop or Player disables that cue.
type Options struct {
	Desktop  *Desktop
	Player   Player
	Renderer *enrich.Renderer
	Logger   *zap.Logger
}

// Alerter raises every cue for a notification. Failures are logged and
// never reach the caller.
type Alerter struct {
	desktop  *Desktop
	player   Player
	renderer *enrich.Renderer
	logger   *zap.Logger

	chimeOnce sync.Once
	chime     []byte

	mu      sync.Mutex
	granted bool
	asked   bool
}

// New creates an Alerter.
func New(opts Options) *Alerter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := opts.Renderer
	if r == nil {
		r = enrich.NewRenderer("")
	}
	return &Alerter{
		desktop:  opts.Desktop,
		player:   opts.Player,
		renderer: r,
		logger:   logger.With(zap.String("component", "alert")),
	}
}

// NewDefault wires the session bus and the given player according to cfg.
// Missing facilities disable their cue.
func NewDefault(cfg model.NotificationsConfig, r *enrich.Renderer, player Player, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := Options{Renderer: r, Logger: logger}
	if cfg.Desktop {
		if bus, err := ConnectSessionBus(); err != nil {
			logger.Info("desktop notifications unavailable", zap.Error(err))
		} else {
			opts.Desktop = NewDesktop(bus, appName, cfg.DismissAfter(), logger)
		}
	}
	if cfg.Sound {
		opts.Player = player
	}
	return New(opts)
}

// Alert shows a popup, when permission was granted, and plays the chime.
func (a *Alerter) Alert(n model.Notification) {
	if a.desktop != nil && a.permitted() {
		msg := Message{
			Tag:     "notification-" + strconv.FormatInt(n.ID, 10),
			Summary: n.Title,
			Body:    a.renderer.Render(n),
			Icon:    "dialog-information",
		}
		if msg.Summary == "" {
			msg.Summary = appName
		}
		if err := a.desktop.Show(msg); err != nil {
			a.logger.Warn("desktop alert failed", zap.Int64("notification_id", n.ID), zap.Error(err))
		}
	}
	if a.player != nil {
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()
		if err := a.player.Play(ctx, a.chimeWAV()); err != nil {
			a.logger.Debug("chime failed", zap.Error(err))
		}
	}
}

// RequestPermission probes the notification service. The answer is
// remembered; later calls return it without probing again.
func (a *Alerter) RequestPermission(ctx context.Context) bool {
	if a.desktop == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.asked {
		return a.granted
	}
	if ctx.Err() != nil {
		return false
	}
	a.asked = true
	a.granted = a.desktop.Available()
	a.logger.Info("desktop notification permission", zap.Bool("granted", a.granted))
	return a.granted
}

// permitted reports the remembered permission; before any request the
// answer is false.
func (a *Alerter) permitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted
}

func (a *Alerter) chimeWAV() []byte {
	a.chimeOnce.Do(func() {
		clip, err := WAV(Synthesize(DefaultSampleRate), DefaultSampleRate)
		if err != nil {
			a.logger.Warn("building chime", zap.Error(err))
			return
		}
		a.chime = clip
	})
	return a.chime
}

// Close cancels pending popup dismissals.
func (a *Alerter) Close() {
	if a.desktop != nil {
		a.desktop.Close()
	}
}
