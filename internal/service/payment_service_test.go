package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

// stubGateway scripts Initialize and Verify responses.
type stubGateway struct {
	initCalls    int
	verifyCalls  int
	initErr      error
	verifyErr    error
	verifyStatus string
	verifyIP     string
	lastEmail    string
	lastAmount   int64
	lastMetadata models.GatewayMetadata
}

func (g *stubGateway) Initialize(ctx context.Context, email string, amount int64, metadata models.GatewayMetadata) (*InitializeResult, error) {
	g.initCalls++
	g.lastEmail = email
	g.lastAmount = amount
	g.lastMetadata = metadata
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &InitializeResult{
		Reference:        fmt.Sprintf("ref-%d", g.initCalls),
		AuthorizationURL: "https://checkout.example/" + fmt.Sprintf("ref-%d", g.initCalls),
	}, nil
}

func (g *stubGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	status := g.verifyStatus
	if status == "" {
		status = VerifyStatusSuccess
	}
	return &VerifyResult{Status: status, Amount: 15750, IPAddress: g.verifyIP}, nil
}

type paymentFixture struct {
	*orderFixture
	gateway *stubGateway
	svc     *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	of := newOrderFixture(t)
	gateway := &stubGateway{}
	svc := NewPaymentService(of.mem, of.mem, of.mem, gateway, of.svc, of.publisher)
	svc.now = func() time.Time { return of.clock }

	return &paymentFixture{orderFixture: of, gateway: gateway, svc: svc}
}

func (f *paymentFixture) createOrder(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.orderFixture.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)
	return order
}

func contactRequest() *InitiatePaymentRequest {
	return &InitiatePaymentRequest{Email: "ada@example.com", PhoneNumber: "08030000000"}
}

func TestInitiatePayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	init, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)
	assert.Equal(t, "ref-1", init.Reference)
	assert.NotEmpty(t, init.AuthorizationURL)

	// Charged for the reseller amount with the order summary attached.
	assert.Equal(t, "ada@example.com", f.gateway.lastEmail)
	assert.Equal(t, order.ResellerAmount, f.gateway.lastAmount)
	require.Len(t, f.gateway.lastMetadata.CustomFields, 3)
	assert.Equal(t, order.ID, f.gateway.lastMetadata.CustomFields[0].Value)
	assert.Equal(t, "2x chair,1x table", f.gateway.lastMetadata.CustomFields[1].Value)

	// The reference landed on the creation-time attempt.
	payment, err := f.mem.GetLatestPaymentByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", payment.Reference)
}

func TestInitiatePaymentCompletesBuyerContact(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	buyer, err := f.mem.GetBuyer(ctx, order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", buyer.Email)
	assert.Equal(t, "08030000000", buyer.PhoneNumber)

	// A stored email is not overwritten by a later request.
	_, err = f.svc.InitiatePayment(ctx, order.ID, &InitiatePaymentRequest{Email: "other@example.com"})
	require.NoError(t, err)
	buyer, err = f.mem.GetBuyer(ctx, order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", buyer.Email)
}

func TestInitiatePaymentRequiresEmail(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(context.Background(), order.ID, &InitiatePaymentRequest{})
	assert.ErrorIs(t, err, models.ErrBuyerEmailRequired)
	assert.Zero(t, f.gateway.initCalls)
}

func TestInitiatePaymentOnExpiredOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	f.advance(49 * time.Hour)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	assert.ErrorIs(t, err, models.ErrOrderExpired)
	assert.Zero(t, f.gateway.initCalls)

	// The expired order was cancelled on the way out and its stock returned.
	got, err := f.mem.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Equal(t, 10, f.quantity(t, "chair"))
}

func TestInitiatePaymentOnCancelledOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	require.NoError(t, f.orderFixture.svc.CancelOrder(ctx, order.ID))

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	assert.ErrorIs(t, err, models.ErrOrderCancelled)
}

func TestInitiatePaymentGatewayFailure(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createOrder(t)

	f.gateway.initErr = errors.New("connection refused")

	_, err := f.svc.InitiatePayment(context.Background(), order.ID, contactRequest())
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)

	// The attempt keeps no reference until the gateway answers.
	payment, perr := f.mem.GetLatestPaymentByOrder(context.Background(), order.ID)
	require.NoError(t, perr)
	assert.Empty(t, payment.Reference)
}

func TestInitiatePaymentRetryKeepsEachReference(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	init, err := f.svc.InitiatePayment(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "ref-2", init.Reference)

	// The second attempt is a fresh row; the first keeps ref-1.
	latest, err := f.mem.GetLatestPaymentByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-2", latest.Reference)

	first, err := f.mem.GetPaymentByReference(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, first.OrderID)
}

func TestReconcileSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	f.gateway.verifyStatus = VerifyStatusSuccess
	f.gateway.verifyIP = "102.89.1.1"

	result, err := f.svc.ReconcilePaymentCallback(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, models.OrderStatusPaid, result.OrderStatus)
	assert.Equal(t, order.ID, result.OrderID)

	got, err := f.mem.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)

	// The gateway's observed IP lands on the buyer.
	buyer, err := f.mem.GetBuyer(ctx, order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "102.89.1.1", buyer.IPAddress)

	// Paid stock stays committed.
	assert.Equal(t, 8, f.quantity(t, "chair"))
	require.Len(t, f.publisher.paid, 1)
	assert.Equal(t, order.ID, f.publisher.paid[0].OrderID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	first, err := f.svc.ReconcilePaymentCallback(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, first.Applied)

	// Duplicate webhook delivery: same answer, no second transition.
	second, err := f.svc.ReconcilePaymentCallback(ctx, "ref-1")
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, models.OrderStatusPaid, second.OrderStatus)

	got, err := f.mem.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Len(t, f.publisher.paid, 1)
}

func TestReconcileFailureThenSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	f.gateway.verifyStatus = VerifyStatusFailed
	result, err := f.svc.ReconcilePaymentCallback(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, models.OrderStatusUnpaid, result.OrderStatus)
	require.Len(t, f.publisher.failed, 1)

	// A failed attempt keeps the stock reserved; the buyer may retry.
	assert.Equal(t, 8, f.quantity(t, "chair"))

	init, err := f.svc.InitiatePayment(ctx, order.ID, nil)
	require.NoError(t, err)

	f.gateway.verifyStatus = VerifyStatusSuccess
	result, err = f.svc.ReconcilePaymentCallback(ctx, init.Reference)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, models.OrderStatusPaid, result.OrderStatus)
}

func TestReconcileInconclusiveLeavesOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	f.gateway.verifyStatus = "abandoned"
	result, err := f.svc.ReconcilePaymentCallback(ctx, "ref-1")
	require.NoError(t, err)
	assert.False(t, result.Applied)

	got, err := f.mem.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
}

func TestReconcileUnknownReference(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.ReconcilePaymentCallback(context.Background(), "ref-unknown")
	assert.ErrorIs(t, err, models.ErrPaymentNotFound)
	assert.Zero(t, f.gateway.verifyCalls)
}

func TestReconcileGatewayFailure(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.svc.InitiatePayment(ctx, order.ID, contactRequest())
	require.NoError(t, err)

	f.gateway.verifyErr = errors.New("timeout")
	_, err = f.svc.ReconcilePaymentCallback(ctx, "ref-1")
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)

	got, err := f.mem.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
}
