// Package notifier sends desktop notifications about watch builds
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/types"
)

// BuildNotifier implements interfaces.Notifier with beeep
type BuildNotifier struct {
	enabled bool
	sound   bool
	logger  logger.Logger
	notify  func(title, message string) error
	beep    func() error
}

var _ interfaces.Notifier = (*BuildNotifier)(nil)

// Config represents notification configuration
type Config struct {
	Enabled bool
	// Sound beeps on failures
	Sound bool
}

// New creates a new build notifier
func New(config Config, log logger.Logger) *BuildNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &BuildNotifier{
		enabled: config.Enabled,
		sound:   config.Sound,
		logger:  log,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// SetSender replaces the desktop notification call
func (n *BuildNotifier) SetSender(notify func(title, message string) error) {
	n.notify = notify
}

// NotifyBuildComplete reports a finished cycle
func (n *BuildNotifier) NotifyBuildComplete(target string, result *types.Result) {
	if !n.enabled {
		return
	}

	message := fmt.Sprintf("%s built", target)
	if result != nil {
		message = fmt.Sprintf("%s built in %s", target, formatDuration(result.Duration))
		if w := len(result.Warnings); w > 0 {
			message += fmt.Sprintf(" (%d warnings)", w)
		}
	}
	n.send("✅ Build Succeeded", message, false)
}

// NotifyBuildFailed reports a failed cycle
func (n *BuildNotifier) NotifyBuildFailed(target string, err error) {
	if !n.enabled {
		return
	}
	n.send("❌ Build Failed", fmt.Sprintf("%s: %v", target, firstLine(err)), n.sound)
}

func (n *BuildNotifier) send(title, message string, beep bool) {
	if err := n.notify(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
	}
	if beep && n.beep != nil {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

// firstLine keeps notifications short; diagnostics carry a code frame
func firstLine(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	for i, r := range msg {
		if r == '\n' {
			return msg[:i]
		}
	}
	return msg
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
