package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Bid outcomes recorded on auction_bids_total.
const (
	BidAccepted   = "accepted"
	BidRejected   = "rejected"
	BidSuperseded = "superseded"
	BidFailed     = "failed"
)

// Recorder groups the auction metrics. A nil *Recorder records nothing.
type Recorder struct {
	bids             *prometheus.CounterVec
	bidRetries       prometheus.Counter
	bidDuration      prometheus.Histogram
	auctionsEnded    prometheus.Counter
	stockAdjustments *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		bids: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_bids_total",
				Help: "Bids placed through NewBid by result.",
			},
			[]string{"result"},
		),
		bidRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_bid_retries_total",
			Help: "Bid attempts retried after a concurrent product update.",
		}),
		bidDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_bid_duration_seconds",
			Help:    "Time spent placing a bid including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		auctionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_ended_total",
			Help: "Auctions marked as ended.",
		}),
		stockAdjustments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_stock_adjustments_total",
				Help: "Inventory adjustments by kind.",
			},
			[]string{"kind"},
		),
		publishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_event_publish_failures_total",
				Help: "Auction events that could not be published.",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(r.bids, r.bidRetries, r.bidDuration, r.auctionsEnded, r.stockAdjustments, r.publishFailures)
	return r
}

func (r *Recorder) BidResult(result string) {
	if r == nil {
		return
	}
	r.bids.WithLabelValues(result).Inc()
}

func (r *Recorder) BidRetry() {
	if r == nil {
		return
	}
	r.bidRetries.Inc()
}

func (r *Recorder) ObserveBid(d time.Duration) {
	if r == nil {
		return
	}
	r.bidDuration.Observe(d.Seconds())
}

func (r *Recorder) AuctionEnded() {
	if r == nil {
		return
	}
	r.auctionsEnded.Inc()
}

func (r *Recorder) StockAdjusted(kind string) {
	if r == nil {
		return
	}
	r.stockAdjustments.WithLabelValues(kind).Inc()
}

func (r *Recorder) PublishFailed(eventType string) {
	if r == nil {
		return
	}
	r.publishFailures.WithLabelValues(eventType).Inc()
}
