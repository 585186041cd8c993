// Package notify shows desktop notifications for events that need the
// user's attention while no overlay is in view.
package notify

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
)

const appName = "Captions"

// Desktop sends system notifications.
type Desktop struct {
	enabled bool
	send    func(title, message, icon string) error
	logger  zerolog.Logger
}

// New creates a desktop notifier.
func New(enabled bool) *Desktop {
	return &Desktop{
		enabled: enabled,
		send: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
		logger: logging.WithComponent("notify"),
	}
}

// PromptOnboarding tells the user a new speaker needs a name.
func (d *Desktop) PromptOnboarding(ctx context.Context, speakerID int) error {
	return d.notify("New speaker", fmt.Sprintf("Speaker %d is talking. Give them a name to see their captions.", speakerID))
}

// SetNoiseWarning notifies when loud noise starts; clearing is silent.
func (d *Desktop) SetNoiseWarning(on bool, level float64) {
	if !on {
		return
	}
	if err := d.notify("Loud noise", fmt.Sprintf("Sound level %.0f%%, captions may be unreliable.", level*100)); err != nil {
		d.logger.Debug().Err(err).Msg("Notification failed")
	}
}

func (d *Desktop) notify(title, message string) error {
	if !d.enabled {
		return nil
	}
	if err := d.send(appName+": "+title, message, ""); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}
