package clients

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"pos-system/internal/rpc"
	ledger "pos-system/internal/services/ledger/handler"
)

// LedgerClient calls a remote ledger service. Domain errors keep their kind
// across the wire, so callers can match them with errors.Is as with the
// in-process handler.
type LedgerClient struct {
	conn *grpc.ClientConn
}

func NewLedgerClient(addr string, opts ...grpc.DialOption) (*LedgerClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger service connection failed: %w", err)
	}

	logrus.WithField("addr", addr).Info("Connected to ledger service")
	return &LedgerClient{conn: conn}, nil
}

func (c *LedgerClient) CreatePurchase(ctx context.Context, in ledger.CreatePurchaseInput) (*ledger.Receipt, error) {
	var out ledger.Receipt
	if err := c.invoke(ctx, rpc.MethodCreatePurchase, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *LedgerClient) CreateRefund(ctx context.Context, purchaseID int64, items []ledger.RefundItemInput) (*ledger.RefundReceipt, error) {
	req := map[string]interface{}{"purchase_id": purchaseID, "items": items}
	var out ledger.RefundReceipt
	if err := c.invoke(ctx, rpc.MethodCreateRefund, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *LedgerClient) GetPurchase(ctx context.Context, id int64) (*ledger.Receipt, error) {
	var out ledger.Receipt
	if err := c.invoke(ctx, rpc.MethodGetPurchase, map[string]int64{"purchase_id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in, out interface{}) error {
	req, err := rpc.EncodeStruct(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	resp := new(structpb.Struct)
	var trailer metadata.MD
	if err := c.conn.Invoke(ctx, method, req, resp, grpc.Trailer(&trailer)); err != nil {
		return rpc.FromStatus(err, trailer)
	}
	return rpc.DecodeStruct(resp, out)
}

func (c *LedgerClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
