package invest

import (
	"errors"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

// API is the slice of the invest SDK the trader calls.
type API interface {
	GetMaxLots(accountID, instrumentID string, price float64) (*pb.GetMaxLotsResponse, error)
	PostOrder(direction pb.OrderDirection, req *investgo.PostOrderRequestShort) (string, error)
	PostStopOrder(req *investgo.PostStopOrderRequest) (string, error)
	GetOrderBook(instrumentID string, depth int32) (*pb.GetOrderBookResponse, error)
	ShareByTicker(ticker, classCode string) (*pb.Share, error)
}

type sdkAPI struct {
	orders      *investgo.OrdersServiceClient
	stopOrders  *investgo.StopOrdersServiceClient
	marketData  *investgo.MarketDataServiceClient
	instruments *investgo.InstrumentsServiceClient
}

// NewSDK binds API to the unary services of an investgo client.
func NewSDK(client *investgo.Client) API {
	return &sdkAPI{
		orders:      client.NewOrdersServiceClient(),
		stopOrders:  client.NewStopOrdersServiceClient(),
		marketData:  client.NewMarketDataServiceClient(),
		instruments: client.NewInstrumentsServiceClient(),
	}
}

func (s *sdkAPI) GetMaxLots(accountID, instrumentID string, price float64) (*pb.GetMaxLotsResponse, error) {
	resp, err := s.orders.GetMaxLots(accountID, instrumentID, priceToQuotation(price, nil))
	if err != nil {
		return nil, err
	}
	return resp.GetMaxLotsResponse, nil
}

func (s *sdkAPI) PostOrder(direction pb.OrderDirection, req *investgo.PostOrderRequestShort) (string, error) {
	var (
		resp *investgo.PostOrderResponse
		err  error
	)
	switch direction {
	case pb.OrderDirection_ORDER_DIRECTION_BUY:
		resp, err = s.orders.Buy(req)
	case pb.OrderDirection_ORDER_DIRECTION_SELL:
		resp, err = s.orders.Sell(req)
	default:
		return "", errors.New("unsupported order direction")
	}
	if err != nil {
		return "", err
	}
	return resp.GetOrderId(), nil
}

func (s *sdkAPI) PostStopOrder(req *investgo.PostStopOrderRequest) (string, error) {
	resp, err := s.stopOrders.PostStopOrder(req)
	if err != nil {
		return "", err
	}
	return resp.GetStopOrderId(), nil
}

func (s *sdkAPI) GetOrderBook(instrumentID string, depth int32) (*pb.GetOrderBookResponse, error) {
	resp, err := s.marketData.GetOrderBook(instrumentID, depth)
	if err != nil {
		return nil, err
	}
	return resp.GetOrderBookResponse, nil
}

func (s *sdkAPI) ShareByTicker(ticker, classCode string) (*pb.Share, error) {
	resp, err := s.instruments.ShareByTicker(ticker, classCode)
	if err != nil {
		return nil, err
	}
	return resp.GetInstrument(), nil
}
