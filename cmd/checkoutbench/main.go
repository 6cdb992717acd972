// checkoutbench 并发下单压测：多个用户争抢少量库存，统计延迟并校验库存守恒
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/config"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/internal/service"
	"github.com/d60-Lab/bookstore/pkg/apperr"
)

type BenchResult struct {
	Name            string
	Duration        time.Duration
	TotalRequests   int64
	SuccessRequests int64
	SoldOut         int64
	FailedRequests  int64
	QPS             float64
	AvgLatency      time.Duration
	P50Latency      time.Duration
	P95Latency      time.Duration
	P99Latency      time.Duration
}

func main() {
	configPath := flag.String("config", "", "config file; database section is used")
	users := flag.Int("users", 200, "number of buyers")
	products := flag.Int("products", 5, "number of products")
	stock := flag.Int("stock", 100, "initial stock per product")
	concurrency := flag.Int("c", 50, "concurrent buyers")
	perUser := flag.Int("orders", 5, "orders attempted per buyer")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	must(err)
	db, err := repository.Open(cfg.Database)
	must(err)
	defer repository.Close(db)
	must(repository.Migrate(db))

	ctx := context.Background()

	fmt.Println("===== 并发下单压测 =====")
	fmt.Printf("数据库: %s\n", cfg.Database.Driver)
	fmt.Printf("买家数: %d, 商品数: %d, 每件库存: %d\n", *users, *products, *stock)
	fmt.Printf("并发数: %d, 每人下单: %d\n\n", *concurrency, *perUser)

	fmt.Println(">>> 准备测试数据...")
	userIDs, productIDs := seed(db, *users, *products, *stock)

	node, err := snowflake.NewNode(cfg.Server.NodeID)
	must(err)
	orderSvc := service.NewOrderService(
		repository.NewTransactor(db),
		repository.NewOrderRepository(db),
		repository.NewProductRepository(db),
		repository.NewUserRepository(db),
		repository.NewCartRepository(db),
		node,
		nil,
	)

	fmt.Println("\n===== 并发下单 =====")
	result, sold := benchCheckout(ctx, orderSvc, userIDs, productIDs, *concurrency, *perUser)
	printBenchResult(result)

	fmt.Println("\n===== 库存守恒校验 =====")
	if verify(db, productIDs, *stock, sold) {
		fmt.Println("✅ 库存守恒，无超卖")
	} else {
		fmt.Println("❌ 库存不守恒")
		os.Exit(1)
	}
}

// seed 每次运行使用新的用户与商品，互不干扰
func seed(db *gorm.DB, userCount, productCount, stock int) ([]int64, []int64) {
	run := time.Now().UnixNano()
	userIDs := make([]int64, 0, userCount)
	for i := 0; i < userCount; i++ {
		u := &model.User{
			Email:    fmt.Sprintf("bench-%d-%d@example.com", run, i),
			FullName: fmt.Sprintf("Bench %d", i),
			Phone:    "0900000000",
			Address:  "Bench Street",
		}
		must(db.Create(u).Error)
		userIDs = append(userIDs, u.ID)
	}
	productIDs := make([]int64, 0, productCount)
	for i := 0; i < productCount; i++ {
		p := &model.Product{
			Name:          fmt.Sprintf("Bench Book %d-%d", run, i),
			Price:         decimal.NewFromInt(int64(50000 + rand.Intn(200000))),
			Discount:      rand.Intn(30),
			StockQuantity: stock,
			Active:        true,
		}
		must(db.Create(p).Error)
		productIDs = append(productIDs, p.ID)
	}
	fmt.Printf("生成了 %d 个用户, %d 个商品\n", len(userIDs), len(productIDs))
	return userIDs, productIDs
}

// benchCheckout 每单随机 1-2 个商品，各 1-3 本；返回每个商品成功售出的数量
func benchCheckout(ctx context.Context, orders service.OrderService, userIDs, productIDs []int64, concurrency, perUser int) (*BenchResult, map[int64]int64) {
	var (
		totalRequests   int64
		successRequests int64
		soldOut         int64
		failedRequests  int64
		latencies       []time.Duration
		latencyMu       sync.Mutex
		soldMu          sync.Mutex
		wg              sync.WaitGroup
	)
	sold := make(map[int64]int64, len(productIDs))

	jobs := make(chan int64)
	startTime := time.Now()

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				current := atomic.LoadInt64(&totalRequests)
				elapsed := time.Since(startTime)
				fmt.Printf("  📊 已下单: %d | ✅ 成功: %d | 售罄: %d | 🚀 QPS: %.0f\n",
					current, atomic.LoadInt64(&successRequests), atomic.LoadInt64(&soldOut), float64(current)/elapsed.Seconds())
			case <-progressDone:
				return
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for userID := range jobs {
				items := randomItems(rnd, productIDs)

				reqStart := time.Now()
				order, err := orders.CreateOrder(ctx, userID, service.CreateOrderInput{Items: items, UseUserAddress: true})
				latency := time.Since(reqStart)

				n := atomic.AddInt64(&totalRequests, 1)
				switch {
				case err == nil:
					atomic.AddInt64(&successRequests, 1)
					soldMu.Lock()
					for _, d := range order.Details {
						sold[d.ProductID] += int64(d.Quantity)
					}
					soldMu.Unlock()
				case errors.Is(err, apperr.ErrInsufficientStock):
					atomic.AddInt64(&soldOut, 1)
				default:
					if atomic.AddInt64(&failedRequests, 1) <= 5 {
						fmt.Printf("下单失败 [%d]: %v (user_id=%d)\n", n, err, userID)
					}
				}

				latencyMu.Lock()
				latencies = append(latencies, latency)
				latencyMu.Unlock()
			}
		}(startTime.UnixNano() + int64(i))
	}

	for round := 0; round < perUser; round++ {
		for _, id := range userIDs {
			jobs <- id
		}
	}
	close(jobs)
	wg.Wait()
	close(progressDone)

	duration := time.Since(startTime)
	res := calculateResult("并发下单", duration, latencies)
	res.TotalRequests = totalRequests
	res.SuccessRequests = successRequests
	res.SoldOut = soldOut
	res.FailedRequests = failedRequests
	return res, sold
}

func randomItems(rnd *rand.Rand, productIDs []int64) []service.OrderItem {
	n := 1 + rnd.Intn(2)
	if n > len(productIDs) {
		n = len(productIDs)
	}
	perm := rnd.Perm(len(productIDs))[:n]
	items := make([]service.OrderItem, 0, n)
	for _, idx := range perm {
		items = append(items, service.OrderItem{ProductID: productIDs[idx], Quantity: 1 + rnd.Intn(3)})
	}
	return items
}

// verify 剩余库存 + 售出 == 初始库存，且库存不为负
func verify(db *gorm.DB, productIDs []int64, initial int, sold map[int64]int64) bool {
	var list []model.Product
	must(db.Where("id IN ?", productIDs).Order("id").Find(&list).Error)
	ok := true
	for _, p := range list {
		s := sold[p.ID]
		fmt.Printf("商品 %d: 剩余 %d, 售出 %d\n", p.ID, p.StockQuantity, s)
		if p.StockQuantity < 0 || int64(p.StockQuantity)+s != int64(initial) {
			ok = false
		}
	}
	return ok
}

func calculateResult(name string, duration time.Duration, latencies []time.Duration) *BenchResult {
	res := &BenchResult{Name: name, Duration: duration}
	if len(latencies) == 0 {
		return res
	}
	res.QPS = float64(len(latencies)) / duration.Seconds()

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	res.AvgLatency = total / time.Duration(len(latencies))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	res.P50Latency = percentile(latencies, 0.50)
	res.P95Latency = percentile(latencies, 0.95)
	res.P99Latency = percentile(latencies, 0.99)
	return res
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted))*p)) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printBenchResult(r *BenchResult) {
	fmt.Printf("名称: %s\n", r.Name)
	fmt.Printf("耗时: %v\n", r.Duration)
	fmt.Printf("总请求数: %d\n", r.TotalRequests)
	fmt.Printf("成功下单: %d\n", r.SuccessRequests)
	fmt.Printf("库存不足: %d\n", r.SoldOut)
	fmt.Printf("其它失败: %d\n", r.FailedRequests)
	fmt.Printf("QPS: %.2f\n", r.QPS)
	fmt.Printf("平均延迟: %v\n", r.AvgLatency)
	fmt.Printf("P50 延迟: %v\n", r.P50Latency)
	fmt.Printf("P95 延迟: %v\n", r.P95Latency)
	fmt.Printf("P99 延迟: %v\n", r.P99Latency)
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
