package portal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Zhannyhong/cdc-bot/core/booking"
	"github.com/Zhannyhong/cdc-bot/core/logger"
)

const (
	homeURL    = "https://www.cdc.com.sg"
	bookingURL = "https://bookingportal.cdc.com.sg:"

	// alertTimeout bounds how long a claim or release waits for the portal
	// to raise its confirmation alert.
	alertTimeout = 10 * time.Second

	// maxPageRetries bounds nested reopen attempts for a booking page before
	// forcing a logout/login cycle.
	maxPageRetries = 4
)

// Config configures the portal adapter.
type Config struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Headless bool   `json:"headless" yaml:"headless"`
	// ExecPath optionally points at a specific Chrome binary.
	ExecPath string `json:"exec_path" yaml:"exec_path"`
	// LoginWait is how long to wait for the login captcha to be solved
	// externally before pressing the login button, in seconds.
	LoginWait int `json:"login_wait_seconds" yaml:"login_wait_seconds"`
}

// ScrapeError reports an unexpected page shape. The cycle for the affected
// category is aborted; other categories continue.
type ScrapeError struct {
	Category booking.Category
	Reason   string
	Err      error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scrape %s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("scrape %s: %s", e.Category, e.Reason)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// ErrSessionExpired is returned when the portal bounced the session; the
// caller re-logs in and restarts the cycle.
var ErrSessionExpired = fmt.Errorf("portal session expired")

// Portal drives the booking portal through a headless browser. It implements
// the scraper and actuator collaborator surfaces consumed by the engine. All
// operations share one authenticated browser session, so the caller must
// serialize them.
type Portal struct {
	cfg Config
	log logger.Logger

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	alerts chan string

	// port is the session-scoped port the portal embeds in its URLs after a
	// successful login.
	port     string
	loggedIn bool
}

// New starts a browser session. Close must be called to release it.
func New(cfg Config, log logger.Logger) (*Portal, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1600, 768),
		chromedp.NoSandbox,
		chromedp.Flag("no-proxy-server", true),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	p := &Portal{
		cfg:         cfg,
		log:         log,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		ctx:         ctx,
		cancel:      cancel,
		alerts:      make(chan string, 4),
	}
	p.watchDialogs()

	// Materialize the browser process up front so a broken Chrome install
	// fails fast instead of on the first scrape.
	if err := chromedp.Run(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return p, nil
}

// Close tears down the browser session.
func (p *Portal) Close() {
	p.cancel()
	p.cancelAlloc()
}

// watchDialogs auto-accepts javascript dialogs and queues their messages for
// consumption by DismissAlert and the claim/release paths.
func (p *Portal) watchDialogs() {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		dialog, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		select {
		case p.alerts <- dialog.Message:
		default:
			p.log.Warnf("dropping portal alert: %q", dialog.Message)
		}
		go func() {
			if err := chromedp.Run(p.ctx, page.HandleJavaScriptDialog(true)); err != nil {
				p.log.Errorf("failed to acknowledge portal dialog: %v", err)
			}
		}()
	})
}

// awaitAlert waits up to timeout for the next portal alert message.
func (p *Portal) awaitAlert(timeout time.Duration) (string, bool) {
	select {
	case msg := <-p.alerts:
		return msg, true
	case <-time.After(timeout):
		return "", false
	}
}

// drainAlerts discards any stale alert left over from a previous operation.
func (p *Portal) drainAlerts() {
	for {
		select {
		case <-p.alerts:
		default:
			return
		}
	}
}

// DismissAlert acknowledges the next portal alert, if one arrives shortly.
// The dialog itself is already auto-accepted; this consumes its message.
func (p *Portal) DismissAlert() (string, bool) {
	return p.awaitAlert(alertTimeout)
}

var urlDigits = regexp.MustCompile(`\d+`)

// Login opens the home page, submits credentials and waits for the
// session-scoped portal URL. Captcha solving is an external concern: the
// adapter waits LoginWait seconds for the challenge to be completed before
// pressing the login button.
func (p *Portal) Login(ctx context.Context) error {
	err := p.run(ctx,
		chromedp.Navigate(homeURL),
		chromedp.Sleep(2*time.Second),
		chromedp.Click(`//*[@id='top-menu']/ul/li[10]/a`),
		chromedp.WaitVisible(`input[name="userId"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="userId"]`, p.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, p.cfg.Password, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open login form: %w", err)
	}
	if p.cfg.LoginWait > 0 {
		p.log.Infof("waiting %ds for the login captcha to be solved", p.cfg.LoginWait)
		select {
		case <-time.After(time.Duration(p.cfg.LoginWait) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.drainAlerts()
	if err := p.run(ctx, chromedp.Click(`#BTNSERVICE2`, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press login: %w", err)
	}
	if msg, found := p.awaitAlert(5 * time.Second); found {
		return fmt.Errorf("login refused: %s", msg)
	}

	var current string
	if err := p.run(ctx, chromedp.Location(&current)); err != nil {
		return err
	}
	digits := urlDigits.FindAllString(current, -1)
	if len(digits) == 0 {
		return fmt.Errorf("login did not reach the booking portal, at %s", current)
	}
	p.port = digits[len(digits)-1]
	p.loggedIn = true
	p.log.Infof("logged in, portal port %s", p.port)
	return nil
}

// Logout invalidates the session.
func (p *Portal) Logout(ctx context.Context) error {
	p.loggedIn = false
	if err := p.openIndex(ctx, "NewPortal/logOut.aspx?PageName=Logout", 0); err != nil {
		return err
	}
	p.log.Infof("logged out")
	return nil
}

// EnsureLoggedIn probes a lightweight portal page and re-logs in when the
// session has been bounced. Used as a keepalive during long sleeps.
func (p *Portal) EnsureLoggedIn(ctx context.Context) error {
	if err := p.openIndex(ctx, "NewPortal/Booking/StatementBooking.aspx", 0); err != nil {
		return err
	}
	var current string
	if err := p.run(ctx, chromedp.Location(&current)); err != nil {
		return err
	}
	if p.port == "" || !containsPort(current, p.port) {
		p.log.Infof("session timed out, logging in again")
		if err := p.Logout(ctx); err != nil {
			p.log.Warnf("logout during relogin failed: %v", err)
		}
		if err := p.Login(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
	}
	return nil
}

func containsPort(url, port string) bool {
	return port != "" && strings.Contains(url, ":"+port+"/")
}

// openIndex navigates to a portal path under the session URL.
func (p *Portal) openIndex(ctx context.Context, path string, sleep time.Duration) error {
	actions := []chromedp.Action{chromedp.Navigate(bookingURL + p.port + "/" + path)}
	if sleep > 0 {
		actions = append(actions, chromedp.Sleep(sleep))
	}
	return p.run(ctx, actions...)
}

// run executes chromedp actions bounded by the caller's context.
func (p *Portal) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if ctx != nil {
		var cancel context.CancelFunc
		runCtx, cancel = mergeContext(p.ctx, ctx)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// mergeContext derives a chromedp context cancelled when either parent is.
func mergeContext(browser, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(browser)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() { stop(); cancel() }
}
