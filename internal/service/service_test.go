package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/bookstore/internal/cache"
	"github.com/d60-Lab/bookstore/internal/config"
	"github.com/d60-Lab/bookstore/internal/events"
	"github.com/d60-Lab/bookstore/internal/gateway"
	"github.com/d60-Lab/bookstore/internal/lock"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
)

const testHashSecret = "test-secret"

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []int64
	failures      []int64
}

func (n *fakeNotifier) SendOrderConfirmation(_, _ string, orderID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, orderID)
}

func (n *fakeNotifier) SendPaymentFailure(_, _ string, orderID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, orderID)
}

func (n *fakeNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmations), len(n.failures)
}

type harness struct {
	db       *gorm.DB
	products repository.ProductRepository
	orderRep repository.OrderRepository
	payRep   repository.PaymentRepository

	carts    CartService
	orders   OrderService
	payments PaymentService
	reviews  ReviewService
	catalog  CatalogService

	gw       *gateway.VNPay
	notifier *fakeNotifier
	lowStock *events.LowStockMonitor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	tx := repository.NewTransactor(db)
	products := repository.NewProductRepository(db)
	orders := repository.NewOrderRepository(db)
	payments := repository.NewPaymentRepository(db)
	users := repository.NewUserRepository(db)
	carts := repository.NewCartRepository(db)
	reviews := repository.NewReviewRepository(db)

	gw := gateway.NewVNPay(config.GatewayConfig{
		PayURL:     "https://pay.example.com/vpcpay.html",
		TmnCode:    "TMN01",
		HashSecret: testHashSecret,
		ReturnURL:  "http://localhost/api/v1/payment/gateway-return",
	})
	notifier := &fakeNotifier{}
	monitor := events.NewLowStockMonitor(EventBus.New(), 5, nil)

	h := &harness{
		db:       db,
		products: products,
		orderRep: orders,
		payRep:   payments,
		carts:    NewCartService(tx, carts, products, users),
		orders:   NewOrderService(tx, orders, products, users, carts, node, nil),
		reviews:  NewReviewService(reviews, orders),
		catalog:  NewCatalogService(products, cache.NewProductCache(nil, time.Minute, products.ListActiveByIDs, nil)),
		gw:       gw,
		notifier: notifier,
		lowStock: monitor,
	}
	h.payments = NewPaymentService(PaymentDeps{
		Tx:       tx,
		Orders:   orders,
		Payments: payments,
		Products: products,
		Users:    users,
		Gateway:  gw,
		Locker:   lock.NewLocalLocker(),
		Notifier: notifier,
		LowStock: monitor,
	})
	return h
}

func (h *harness) seedUser(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, FullName: "Reader", Phone: "0900000000", Address: "1 Book St"}
	require.NoError(t, h.db.Create(u).Error)
	return u
}

func (h *harness) seedAdmin(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{Email: "admin@example.com", FullName: "Admin", Role: model.RoleAdmin}
	require.NoError(t, h.db.Create(u).Error)
	return u
}

// seedProduct 价格 200000，九折，实际售价 180000
func (h *harness) seedProduct(t *testing.T, name string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.NewFromInt(200000), Discount: 10, StockQuantity: stock, Active: true}
	require.NoError(t, h.db.Create(p).Error)
	return p
}

func (h *harness) product(t *testing.T, id int64) *model.Product {
	t.Helper()
	p, err := h.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) order(t *testing.T, id int64) *model.Order {
	t.Helper()
	o, err := h.orderRep.GetByOrderID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (h *harness) placeOrder(t *testing.T, userID int64, items ...OrderItem) *model.Order {
	t.Helper()
	o, err := h.orders.CreateOrder(context.Background(), userID, CreateOrderInput{Items: items, UseUserAddress: true})
	require.NoError(t, err)
	return o
}

// callback 伪造网关回跳参数，txnRef 取自发起或重试支付的结果
func callback(txnRef string, amount decimal.Decimal, code string) url.Values {
	return gateway.SignParams(testHashSecret, url.Values{
		"vnp_Amount":            {amount.Mul(decimal.NewFromInt(100)).StringFixed(0)},
		"vnp_TxnRef":            {txnRef},
		"vnp_ResponseCode":      {code},
		"vnp_TransactionStatus": {code},
		"vnp_TransactionNo":     {"14000001"},
		"vnp_PayDate":           {"20240101120000"},
	})
}

// unknownRef 网关侧存在但本地没有记录的交易号
func unknownRef(orderID int64) string { return fmt.Sprintf("%d-a1b2c3d4e5f6", orderID) }

func asUser(u *model.User) Actor { return Actor{UserID: u.ID, Role: model.RoleUser} }
