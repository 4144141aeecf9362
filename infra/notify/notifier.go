package notify

import "github.com/Zhannyhong/cdc-bot/core/logger"

// Notifier delivers a message to one channel, best-effort. The engine assumes
// no delivery guarantee; failures are logged by the manager and never surface
// to the monitoring loop.
type Notifier interface {
	Name() string
	Send(title, body string) error
}

// Manager fans a message out to every configured notifier.
type Manager struct {
	notifiers []Notifier
	log       logger.Logger
}

// NewManager builds a Manager. A nil logger falls back to NopLogger.
func NewManager(log logger.Logger, notifiers ...Notifier) *Manager {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Manager{notifiers: notifiers, log: log}
}

// Send delivers the message to all notifiers, logging individual failures.
func (m *Manager) Send(title, body string) {
	for _, n := range m.notifiers {
		if err := n.Send(title, body); err != nil {
			m.log.Errorf("%s notification failed: %v", n.Name(), err)
		}
	}
}
