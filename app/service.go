package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhannyhong/cdc-bot/config"
	"github.com/Zhannyhong/cdc-bot/core/booking"
	"github.com/Zhannyhong/cdc-bot/core/logger"
	coremetrics "github.com/Zhannyhong/cdc-bot/core/metrics"
	corenotify "github.com/Zhannyhong/cdc-bot/core/notify"
	"github.com/Zhannyhong/cdc-bot/core/reconcile"
	infralogger "github.com/Zhannyhong/cdc-bot/infra/logger"
	"github.com/Zhannyhong/cdc-bot/infra/metrics"
	"github.com/Zhannyhong/cdc-bot/infra/notify"
	"github.com/Zhannyhong/cdc-bot/infra/portal"
	"github.com/Zhannyhong/cdc-bot/internal/eventbus"
)

// restartWait is the pause before a new session after a crashed one.
const restartWait = time.Hour

// portalClient is the slice of the portal adapter the service consumes,
// narrowed for testability.
type portalClient interface {
	reconcile.Actuator
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	EnsureLoggedIn(ctx context.Context) error
	OpenBookingPage(ctx context.Context, cat booking.Category, practicalLessonName string) (bool, error)
	RefreshGrid(ctx context.Context, cat booking.Category) (portal.View, error)
	RefreshStatement(ctx context.Context) (portal.Statement, error)
	OtherTeams(ctx context.Context) (map[string]booking.SessionSet, error)
	Close()
}

// Service wires the portal, the reservation engine and the notifiers into the
// monitoring loop. Categories are processed strictly sequentially: all portal
// operations share one authenticated browser session.
type Service struct {
	cfg      *config.Config
	portal   portalClient
	grid     *booking.Grid
	rec      *reconcile.Reconciler
	notifier *notify.Manager
	sink     coremetrics.Sink
	bus      *eventbus.Bus
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	infralogger.SetLevel(cfg.Logging.Level)
	logg := infralogger.New("service")

	p, err := portal.New(cfg.Portal, infralogger.New("portal"))
	if err != nil {
		return nil, fmt.Errorf("portal: %w", err)
	}

	var notifiers []notify.Notifier
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, notify.NewTelegram(cfg.Telegram))
	}
	if cfg.Mail.Enabled {
		notifiers = append(notifiers, notify.NewMail(cfg.Mail))
	}

	var sink coremetrics.Sink = coremetrics.NopSink{}
	if cfg.Metrics.PrometheusEnabled {
		promSink, err := metrics.NewPromSink()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sink = promSink
	}

	bus := eventbus.New()
	return &Service{
		cfg:      cfg,
		portal:   p,
		grid:     booking.NewGrid(cfg.Program.MonitoredCategories(), logg),
		rec:      reconcile.New(p, bus, infralogger.New("reconciler"), cfg.Program.ReserveSameDay),
		notifier: notify.NewManager(logg, notifiers...),
		sink:     sink,
		bus:      bus,
		log:      logg,
	}, nil
}

// Run drives monitoring sessions until the context is cancelled. A crashed
// session is reported and, when auto-restart is configured, replaced after a
// pause. A reconciliation pass in progress always runs to completion; the
// loop exits between cycles.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go s.collectEvents(ctx)

	for {
		err := s.runSession(ctx)
		if err == nil || ctx.Err() != nil {
			s.notifier.Send("", "Program exited.")
			return ctx.Err()
		}

		s.log.Errorf("monitoring session failed: %v", err)
		s.notifier.Send("", fmt.Sprintf("Program encountered an error: %v", err))
		if !s.cfg.Program.AutoRestart {
			return err
		}
		s.notifier.Send("", fmt.Sprintf("Program restarting in %s at %s...",
			restartWait, time.Now().Add(restartWait).Format(time.RFC1123)))
		select {
		case <-time.After(restartWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the portal session and the event bus.
func (s *Service) Close() error {
	s.portal.Close()
	s.bus.Close()
	return nil
}

// runSession logs in and cycles until the context ends or the session breaks.
func (s *Service) runSession(ctx context.Context) error {
	if err := s.portal.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.portal.Logout(logoutCtx); err != nil {
			s.log.Warnf("logout failed: %v", err)
		}
	}()

	for {
		if err := s.runCycle(ctx); err != nil {
			if errors.Is(err, portal.ErrSessionExpired) {
				return err
			}
			s.log.Errorf("cycle failed: %v", err)
		}
		if s.cfg.Program.RefreshSeconds <= 0 {
			return nil
		}
		if err := s.sleepBetweenCycles(ctx); err != nil {
			return nil
		}
	}
}

// runCycle runs one monitoring pass over all configured categories in order.
func (s *Service) runCycle(ctx context.Context) error {
	s.grid.ResetAll()

	statement, err := s.portal.RefreshStatement(ctx)
	if err != nil {
		return fmt.Errorf("refresh statement: %w", err)
	}

	digest := corenotify.NewDigest()
	for _, cat := range s.grid.Categories() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processCategory(ctx, cat, statement, digest); err != nil {
			// One category's scrape failure never stops the others.
			s.log.Errorf("category %s aborted this cycle: %v", cat, err)
			if recErr := s.sink.RecordScrapeFailure(cat); recErr != nil {
				s.log.Warnf("record scrape failure: %v", recErr)
			}
			if errors.Is(err, portal.ErrSessionExpired) {
				return err
			}
		}
	}

	s.flushDigest(digest)
	return nil
}

func (s *Service) processCategory(ctx context.Context, cat booking.Category, statement portal.Statement, digest *corenotify.Digest) error {
	st, ok := s.grid.State(cat)
	if !ok {
		return booking.ErrUnknownCategory
	}

	opened, err := s.portal.OpenBookingPage(ctx, cat, statement.LessonNames[booking.Practical])
	if err != nil {
		return err
	}
	if !opened {
		return nil
	}

	view, err := s.portal.RefreshGrid(ctx, cat)
	if err != nil {
		return err
	}

	// The statement supplies bookings and reservations that have rolled off
	// the visible grid, plus the portal's lesson names.
	booked := mergeSets(view.Booked, statement.Booked[cat])
	reserved := mergeSets(view.Reserved, statement.Reserved[cat])
	s.grid.SetScrape(cat, view.Available, reserved, booked, view.Elements, view.Days)
	st.LessonName = statement.LessonNames[cat]
	st.CanBookNext = view.CanBook

	if cat == booking.Practical && s.cfg.Program.BookFromOtherTeams {
		s.reportOtherTeams(ctx)
	}

	s.grid.UpdateEarlier(cat, s.cfg.Program.ReserveSameDay)
	if !booking.HasChanged(st.CachedEarlier, st.Earlier) {
		return nil
	}

	outcome := s.rec.Reconcile(cat, st, s.cfg.Program.Quota(cat), s.cfg.Program.AutoReserve)
	if err := s.sink.RecordCycle(coremetrics.CycleResult{
		Cycle:        digest.ID(),
		Category:     cat,
		Claimed:      len(outcome.Claimed),
		Released:     len(outcome.Released),
		Kept:         outcome.KeptReservations,
		FailedClaims: outcome.FailedClaims,
		QuotaHit:     outcome.QuotaHit,
		EarlierSlots: st.Earlier.Count(),
	}); err != nil {
		s.log.Warnf("record cycle: %v", err)
	}

	report := corenotify.Compose(cat, st)
	digest.Add(report)
	s.log.Infof("updates to %s available sessions:\n%s", cat, report.Render())
	return nil
}

// reportOtherTeams sends the read-only other-teams availability report. Those
// slots never feed the category's own reservation logic.
func (s *Service) reportOtherTeams(ctx context.Context) {
	teams, err := s.portal.OtherTeams(ctx)
	if err != nil {
		s.log.Errorf("other teams discovery failed: %v", err)
		return
	}
	if len(teams) == 0 {
		return
	}
	s.notifier.Send("SESSIONS FROM OTHER TEAMS DETECTED", corenotify.OtherTeamsReport(teams))
}

func (s *Service) flushDigest(digest *corenotify.Digest) {
	if digest.Empty() {
		return
	}
	s.notifier.Send(time.Now().Format(time.RFC1123), digest.Render())
	if digest.HasOutstandingReservations() {
		s.notifier.Send("RESERVED SLOTS DETECTED", corenotify.OutstandingWarning)
	}
}

// sleepBetweenCycles pauses for the configured refresh interval, extending
// any wake-up that would land in the 03:00-06:00 window (slots rarely free up
// then) and pinging the session every minute to keep it alive.
func (s *Service) sleepBetweenCycles(ctx context.Context) error {
	sleep := time.Duration(s.cfg.Program.RefreshSeconds) * time.Second
	wake := time.Now().Add(sleep)
	if h := wake.Hour(); h >= 3 && h < 6 {
		sixAM := time.Date(wake.Year(), wake.Month(), wake.Day(), 6, 0, 0, 0, wake.Location())
		sleep += sixAM.Sub(wake)
		wake = sixAM
	}
	s.log.Infof("sleeping for %s until %s", sleep, wake.Format(time.RFC1123))

	for sleep > time.Minute {
		select {
		case <-time.After(time.Minute):
		case <-ctx.Done():
			return ctx.Err()
		}
		sleep -= time.Minute
		if err := s.portal.EnsureLoggedIn(ctx); err != nil {
			s.log.Warnf("keepalive failed: %v", err)
		}
	}
	select {
	case <-time.After(sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collectEvents mirrors engine events into structured debug logs.
func (s *Service) collectEvents(ctx context.Context) {
	events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(events)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.logEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) logEvent(ev eventbus.Event) {
	switch e := ev.(type) {
	case reconcile.SlotClaimed:
		s.log.Debugw("slot claimed", map[string]any{"category": e.Category.String(), "day": e.Day, "time": e.Time})
	case reconcile.SlotReleased:
		s.log.Debugw("slot released", map[string]any{"category": e.Category.String(), "day": e.Day, "time": e.Time})
	case reconcile.ClaimRejected:
		s.log.Debugw("claim rejected", map[string]any{"category": e.Category.String(), "day": e.Day, "time": e.Time, "reason": e.Reason})
	case reconcile.ReleaseRejected:
		s.log.Debugw("release rejected", map[string]any{"category": e.Category.String(), "day": e.Day, "time": e.Time, "reason": e.Reason})
	}
}

func mergeSets(a, b booking.SessionSet) booking.SessionSet {
	out := a.Clone()
	for day, slots := range b {
		for _, slot := range slots {
			out.Add(day, slot)
		}
	}
	return out
}
