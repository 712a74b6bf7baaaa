package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"signal-trader/internal/events"
	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
)

// Service periodically sweeps stuck PENDING positions and resolves them
// against venue order state. A PENDING row older than the grace period
// means the process died (or errored) between the venue call and the local
// promotion, so the venue is the source of truth.
type Service struct {
	DB       *db.Database
	Venue    venue.Venue
	Bus      *events.Bus
	Interval time.Duration
	Grace    time.Duration
}

func New(database *db.Database, v venue.Venue, bus *events.Bus, interval, grace time.Duration) *Service {
	return &Service{DB: database, Venue: v, Bus: bus, Interval: interval, Grace: grace}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Service) Run(ctx context.Context) {
	if s.Interval <= 0 {
		log.Println("[RECONCILE] disabled")
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	log.Printf("[RECONCILE] sweeping every %s (grace %s)", s.Interval, s.Grace)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resolves every PENDING position older than the grace period.
func (s *Service) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.Grace)
	pending, err := s.DB.ListPendingPositionsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[RECONCILE] list pending positions: %v", err)
		return
	}
	for _, pos := range pending {
		s.resolve(ctx, pos)
	}
}

// resolve looks up the entry order on the venue and moves the position to
// its true state: promote on FILLED, delete on a dead order, leave alone
// while the order can still fill. A PENDING row with no recorded entry
// order cannot be matched to a venue order and is flagged for manual
// reconciliation instead of being deleted, since an untracked live order
// may exist.
func (s *Service) resolve(ctx context.Context, pos db.Position) {
	entry, err := s.DB.GetEntryOrder(ctx, pos.ID)
	if err != nil {
		log.Printf("[RECONCILE] entry order for %s: %v", pos.ID, err)
		return
	}
	if entry == nil || entry.VenueOrderID == "" {
		log.Printf("[RECONCILE] position %s has no entry order reference; manual reconciliation required", pos.ID)
		return
	}

	order, err := s.Venue.GetOrder(ctx, pos.Symbol, entry.VenueOrderID)
	if err != nil {
		if errors.Is(err, venue.ErrOrderGone) {
			// Order unknown to the venue: treat like a dead order.
			s.remove(ctx, pos, entry, "unknown to venue")
			return
		}
		log.Printf("[RECONCILE] query order %s for %s: %v", entry.VenueOrderID, pos.ID, err)
		return
	}

	switch {
	case order.Status == venue.StatusFilled:
		s.promote(ctx, pos, entry, order)
	case order.Status.IsTerminalDead():
		s.remove(ctx, pos, entry, string(order.Status))
	default:
		// NEW or PARTIALLY_FILLED: still working, check again next sweep.
	}
}

func (s *Service) promote(ctx context.Context, pos db.Position, entry *db.Order, order *venue.OrderResponse) {
	qty, _ := order.ExecutedQty.Float64()
	price, _ := order.AvgFillPrice().Float64()
	value, _ := order.CummulativeQuoteQty.Float64()
	if err := s.DB.MarkPositionOpen(ctx, pos.ID, qty, price, value, time.Now().UTC()); err != nil {
		log.Printf("[RECONCILE] promote %s: %v", pos.ID, err)
		return
	}
	if err := s.DB.UpdateOrderFill(ctx, entry.ID, string(order.Status), qty, value); err != nil {
		log.Printf("[RECONCILE] update entry order %s: %v", entry.ID, err)
	}
	if err := s.DB.RefreshPortfolioStats(ctx, pos.PortfolioID); err != nil {
		log.Printf("[RECONCILE] refresh portfolio %s: %v", pos.PortfolioID, err)
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventPositionOpened, pos.ID)
	}
	log.Printf("[RECONCILE] promoted %s to OPEN (filled qty=%f)", pos.ID, qty)
}

func (s *Service) remove(ctx context.Context, pos db.Position, entry *db.Order, reason string) {
	if err := s.DB.UpdateOrderStatus(ctx, entry.ID, string(venue.StatusCanceled)); err != nil {
		log.Printf("[RECONCILE] mark entry order %s canceled: %v", entry.ID, err)
	}
	if err := s.DB.DeletePosition(ctx, pos.ID); err != nil {
		log.Printf("[RECONCILE] delete %s: %v", pos.ID, err)
		return
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventPositionRolledBack, pos.ID)
	}
	log.Printf("[RECONCILE] removed pending %s (%s)", pos.ID, reason)
}
