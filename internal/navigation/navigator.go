// Package navigation turns explicit user intents into orchestrator calls.
// Nothing here consults the repeat/pause policy.
package navigation

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/orchestrator"
	"github.com/kanada4310/tts-app/internal/segment"
)

// SpeedStep is the speed change applied by SpeedUp and SpeedDown.
const SpeedStep = 0.25

// Target is the part of the orchestrator navigation drives.
type Target interface {
	SwitchKeepingPlayState(index int) error
	Snapshot() orchestrator.Snapshot
	AdjustSpeed(delta float64) (float64, error)
	Toggle() error
}

// Navigator moves between sentences and changes speed.
type Navigator struct {
	target Target
	logger *log.Logger
}

// New creates a navigator for target. A nil logger uses the default one.
func New(target Target, logger *log.Logger) *Navigator {
	if logger == nil {
		logger = log.Default()
	}
	return &Navigator{target: target, logger: logger.WithPrefix("navigation")}
}

// Previous moves to the previous sentence. At the first sentence it does
// nothing.
func (n *Navigator) Previous() error {
	snap := n.target.Snapshot()
	if !snap.HasPrevious() {
		n.logger.Debug("already at first sentence")
		return nil
	}
	return n.switchTo(snap, snap.Index-1)
}

// Next moves to the next sentence. At the last sentence it does nothing.
func (n *Navigator) Next() error {
	snap := n.target.Snapshot()
	if !snap.HasNext() {
		n.logger.Debug("already at last sentence")
		return nil
	}
	return n.switchTo(snap, snap.Index+1)
}

// GoTo moves to the sentence at index. Out-of-range indexes are ignored.
func (n *Navigator) GoTo(index int) error {
	snap := n.target.Snapshot()
	if index < 0 || index >= snap.Total {
		n.logger.Debug("invalid sentence index", "index", index, "total", snap.Total)
		return nil
	}
	return n.switchTo(snap, index)
}

// switchTo keeps playing on the new sentence if playback would have gone on
// without user input. The target decides that, since the snapshot may
// already be stale.
func (n *Navigator) switchTo(snap orchestrator.Snapshot, index int) error {
	n.logger.Debug("switch", "from", snap.Index, "to", index)
	err := n.target.SwitchKeepingPlayState(index)
	if errors.Is(err, segment.ErrIndexOutOfRange) {
		// The sentence set changed between the snapshot and the call.
		return nil
	}
	return err
}

// SpeedUp raises the speed by SpeedStep, clamped, and returns the applied
// speed.
func (n *Navigator) SpeedUp() (float64, error) {
	return n.target.AdjustSpeed(SpeedStep)
}

// SpeedDown lowers the speed by SpeedStep, clamped, and returns the applied
// speed.
func (n *Navigator) SpeedDown() (float64, error) {
	return n.target.AdjustSpeed(-SpeedStep)
}

// TogglePlay plays or pauses.
func (n *Navigator) TogglePlay() error {
	return n.target.Toggle()
}
