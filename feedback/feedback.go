// Package feedback defines the narrow external-collaborator interfaces the
// Intervention Executor uses to surface an intervention to the user
// (spec.md §6 "Feedback channels"): an optional sound player, a menu-bar
// icon controller, and a user-notification center. All three are out of
// scope for this module's implementation; only noop/stub implementations
// ship here, matching the teacher's pattern of depending on narrow
// interfaces for external collaborators rather than owning them.
package feedback

import "context"

// SoundPlayer plays a short named clip, used when Config.SoundOnIntervention
// is enabled.
type SoundPlayer interface {
	Play(ctx context.Context, clip string) error
}

// IconController requests a brief "flash" animation on the menu-bar icon to
// reflect an intervention event.
type IconController interface {
	Flash(ctx context.Context) error
}

// Notifier posts a user-visible notification, used only on Unrecoverable
// transitions and the "intervention-limit paused" transition, gated by
// Config.NotificationOnPersistentError (spec.md §6).
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// NoOpSoundPlayer discards every Play call. The default when no real sound
// player is wired in (headless test harnesses, CI).
type NoOpSoundPlayer struct{}

func (NoOpSoundPlayer) Play(ctx context.Context, clip string) error { return nil }

// NoOpIconController discards every Flash call.
type NoOpIconController struct{}

func (NoOpIconController) Flash(ctx context.Context) error { return nil }

// NoOpNotifier discards every Notify call.
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(ctx context.Context, title, body string) error { return nil }

// Channels bundles the three feedback collaborators so callers can pass one
// value instead of three. A nil field behaves like its NoOp counterpart.
type Channels struct {
	Sound SoundPlayer
	Icon  IconController
	User  Notifier
}

// NoOpChannels returns a Channels wired entirely to no-op implementations.
func NoOpChannels() Channels {
	return Channels{Sound: NoOpSoundPlayer{}, Icon: NoOpIconController{}, User: NoOpNotifier{}}
}

func (c Channels) playSound(ctx context.Context, clip string) {
	if c.Sound != nil {
		_ = c.Sound.Play(ctx, clip)
	}
}

func (c Channels) flashIcon(ctx context.Context) {
	if c.Icon != nil {
		_ = c.Icon.Flash(ctx)
	}
}

func (c Channels) notify(ctx context.Context, title, body string) {
	if c.User != nil {
		_ = c.User.Notify(ctx, title, body)
	}
}

// OnIntervention emits the optional sound and icon flash for a successful
// intervention (spec.md §4.4), gated by soundEnabled.
func (c Channels) OnIntervention(ctx context.Context, soundEnabled bool) {
	if soundEnabled {
		c.playSound(ctx, "intervention")
	}
	c.flashIcon(ctx)
}

// OnUnrecoverable posts a user notification for a terminal transition, gated
// by notifyEnabled (spec.md §6).
func (c Channels) OnUnrecoverable(ctx context.Context, notifyEnabled bool, reason string) {
	if notifyEnabled {
		c.notify(ctx, "Supervision stopped", reason)
	}
}

// OnInterventionLimitPaused posts a user notification for the
// "intervention-limit paused" transition, gated by notifyEnabled.
func (c Channels) OnInterventionLimitPaused(ctx context.Context, notifyEnabled bool) {
	if notifyEnabled {
		c.notify(ctx, "Supervision paused", "intervention limit reached")
	}
}
