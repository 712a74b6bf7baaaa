package trade

import (
	"fmt"

	"signal-trader/pkg/venue"
)

// Normalize converts a request with either an explicit side or a signal
// action into one with Side populated. Entering a short is modeled as
// selling first; exiting a short as buying back. Pure function, no side
// effects.
func Normalize(req TradingRequest) (NormalizedRequest, error) {
	switch req.Order.Side {
	case venue.SideBuy, venue.SideSell:
		return NormalizedRequest{TradingRequest: req, Side: req.Order.Side}, nil
	case "":
		// fall through to the signal action
	default:
		return NormalizedRequest{}, fmt.Errorf("%w: unrecognized side %q", ErrInvalidRequest, req.Order.Side)
	}

	var side venue.Side
	switch req.Order.Action {
	case ActionEnterLong, ActionExitShort:
		side = venue.SideBuy
	case ActionExitLong, ActionEnterShort:
		side = venue.SideSell
	case "":
		return NormalizedRequest{}, fmt.Errorf("%w: neither side nor signal action present", ErrInvalidRequest)
	default:
		return NormalizedRequest{}, fmt.Errorf("%w: unrecognized signal action %q", ErrInvalidRequest, req.Order.Action)
	}

	return NormalizedRequest{TradingRequest: req, Side: side}, nil
}
