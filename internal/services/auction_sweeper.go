package services

import (
	"context"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/robfig/cron/v3"
)

// AuctionCloser is the part of AuctionService the sweeper drives.
type AuctionCloser interface {
	GetAuctionsToEnd(ctx context.Context) ([]*domain.Product, error)
	UpdateAuctionEnded(ctx context.Context, product *domain.Product, ended, notifyCustomer bool) error
}

// AuctionSweeper periodically ends expired auctions. With a leader election
// configured only the leader sweeps.
type AuctionSweeper struct {
	cron       *cron.Cron
	schedule   string
	auctions   AuctionCloser
	leader     domain.LeaderElection
	instanceID string
	log        logger.Logger
}

func NewAuctionSweeper(auctions AuctionCloser, leader domain.LeaderElection, instanceID, schedule string,
	log logger.Logger) *AuctionSweeper {
	cronLog := cronLogger{log: log}
	return &AuctionSweeper{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		schedule:   schedule,
		auctions:   auctions,
		leader:     leader,
		instanceID: instanceID,
		log:        log,
	}
}

func (s *AuctionSweeper) Start(ctx context.Context) error {
	s.log.Info("Starting auction sweeper", "schedule", s.schedule, "instance_id", s.instanceID)

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.tick(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish and gives up leadership.
func (s *AuctionSweeper) Stop() error {
	s.log.Info("Stopping auction sweeper")
	<-s.cron.Stop().Done()

	if s.leader == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.leader.ReleaseLeadership(ctx, s.instanceID)
}

func (s *AuctionSweeper) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.isLeader(ctx) {
		return
	}

	if _, err := s.SweepOnce(ctx); err != nil {
		s.log.Error("Auction sweep failed", "error", err)
	}
}

func (s *AuctionSweeper) isLeader(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}

	isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		return false
	}
	if isLeader {
		return true
	}

	isLeader, err = s.leader.BecomeLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to acquire leadership", "error", err)
		return false
	}
	return isLeader
}

// SweepOnce ends every expired auction and returns how many were ended.
// A failure on one auction is logged and does not stop the others.
func (s *AuctionSweeper) SweepOnce(ctx context.Context) (int, error) {
	products, err := s.auctions.GetAuctionsToEnd(ctx)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, product := range products {
		if ctx.Err() != nil {
			return ended, ctx.Err()
		}
		if err := s.auctions.UpdateAuctionEnded(ctx, product, true, true); err != nil {
			s.log.Error("Failed to end auction", "product_id", product.ID, "error", err)
			continue
		}
		ended++
	}

	if len(products) > 0 {
		s.log.Info("Auction sweep finished", "due", len(products), "ended", ended)
	}
	return ended, nil
}

// cronLogger routes cron's own logging through the service logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
