package invest

import (
	"errors"
	"fmt"
	"time"

	marketdata "dip-trader/internal/domain/entity/marketdata"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

var defaultPriceStep = &pb.Quotation{Units: 0, Nano: 1}

// IntervalFromSeconds maps a timeframe in seconds to a stream subscription interval.
func IntervalFromSeconds(seconds int) (pb.SubscriptionInterval, error) {
	switch seconds {
	case 60:
		return pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_ONE_MINUTE, nil
	case 300:
		return pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_FIVE_MINUTES, nil
	case 900:
		return pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_FIFTEEN_MINUTES, nil
	case 3600:
		return pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_ONE_HOUR, nil
	case 86400:
		return pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_ONE_DAY, nil
	default:
		return pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_UNSPECIFIED, fmt.Errorf("unsupported candle timeframe: %ds", seconds)
	}
}

func intervalSeconds(interval pb.SubscriptionInterval) int64 {
	switch interval {
	case pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_ONE_MINUTE:
		return 60
	case pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_FIVE_MINUTES:
		return 300
	case pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_FIFTEEN_MINUTES:
		return 900
	case pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_ONE_HOUR:
		return 3600
	case pb.SubscriptionInterval_SUBSCRIPTION_INTERVAL_ONE_DAY:
		return 86400
	default:
		return 0
	}
}

func convertCandle(msg *pb.Candle, ticker string) (marketdata.Candle, error) {
	if msg == nil {
		return marketdata.Candle{}, errors.New("candle payload is nil")
	}

	periodStart := time.Time{}
	if ts := msg.GetTime(); ts != nil {
		periodStart = ts.AsTime().UTC()
	}

	return marketdata.Candle{
		Symbol:          ticker,
		InstrumentUID:   msg.GetInstrumentUid(),
		IntervalSeconds: intervalSeconds(msg.GetInterval()),
		PeriodStart:     periodStart,
		Open:            quotationToFloat(msg.GetOpen()),
		High:            quotationToFloat(msg.GetHigh()),
		Low:             quotationToFloat(msg.GetLow()),
		Close:           quotationToFloat(msg.GetClose()),
		VolumeLots:      msg.GetVolume(),
	}, nil
}

func convertOrderBook(msg *pb.GetOrderBookResponse, ticker string, depth int32) *marketdata.OrderBookSnapshot {
	snapshotAt := time.Now().UTC()
	if ts := msg.GetOrderbookTs(); ts != nil {
		snapshotAt = ts.AsTime().UTC()
	}
	return &marketdata.OrderBookSnapshot{
		Symbol:     ticker,
		SnapshotAt: snapshotAt,
		Depth:      depth,
		Bids:       convertLevels(msg.GetBids()),
		Asks:       convertLevels(msg.GetAsks()),
	}
}

func convertLevels(levels []*pb.Order) []marketdata.OrderBookLevel {
	out := make([]marketdata.OrderBookLevel, 0, len(levels))
	for _, level := range levels {
		if level == nil {
			continue
		}
		out = append(out, marketdata.OrderBookLevel{
			Price:    quotationToFloat(level.GetPrice()),
			Quantity: level.GetQuantity(),
		})
	}
	return out
}

func quotationToFloat(q *pb.Quotation) float64 {
	if q == nil {
		return 0
	}
	return q.ToFloat()
}

func priceToQuotation(price float64, step *pb.Quotation) *pb.Quotation {
	if step == nil || (step.GetUnits() == 0 && step.GetNano() == 0) {
		step = defaultPriceStep
	}
	return investgo.FloatToQuotation(price, step)
}
