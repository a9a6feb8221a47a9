package drone

import (
	"fmt"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"go.uber.org/zap"
)

// handleCommand applies cmd and reports whether it was a Crash.
func (n *Node) handleCommand(cmd controller.Command) bool {
	switch c := cmd.(type) {
	case controller.Crash:
		return true

	case controller.AddSender:
		if c.Link == nil || c.ID == n.id {
			n.logger.Warn("ignoring invalid add_sender", zap.Uint8("neighbor", uint8(c.ID)))
			return false
		}
		n.neighbors.Add(c.ID, c.Link)
		n.logger.Debug("neighbor added", zap.Uint8("neighbor", uint8(c.ID)))

	case controller.RemoveSender:
		if n.neighbors.Remove(c.ID) {
			n.logger.Debug("neighbor removed", zap.Uint8("neighbor", uint8(c.ID)))
		}

	case controller.SetPacketDropRate:
		if err := ValidateDropRate(c.Rate); err != nil {
			n.logger.Warn("rejected drop rate", zap.Error(err))
			return false
		}
		n.pdr = c.Rate
		n.logger.Debug("drop rate updated", zap.Float64("pdr", c.Rate))

	default:
		n.logger.Warn("unknown command", zap.String("command", fmt.Sprintf("%T", cmd)))
	}
	return false
}
