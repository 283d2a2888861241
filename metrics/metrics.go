// Package metrics 定义业务与HTTP相关的 Prometheus 指标
//
// 指标通过 promauto 注册到默认注册表，由 /metrics 端点导出。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FriendshipTransitionsTotal 好友关系状态迁移次数
	FriendshipTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_friendship_transitions_total",
			Help: "Total number of friendship state transitions",
		},
		[]string{"transition"},
	)

	// ModerationActionsTotal 管理员操作次数（审核出版者、审核书籍、封禁等）
	ModerationActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_moderation_actions_total",
			Help: "Total number of moderation actions",
		},
		[]string{"action"},
	)

	// PurchasesTotal 购书成功次数
	PurchasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_purchases_total",
			Help: "Total number of completed book purchases",
		},
	)

	// PurchaseRevenueTotal 购书总金额
	PurchaseRevenueTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_purchase_revenue_total",
			Help: "Total amount debited by book purchases",
		},
	)

	// RecommendationsTotal 推荐成功次数
	RecommendationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_recommendations_total",
			Help: "Total number of book recommendations sent",
		},
	)

	// ReviewVotesTotal 书评投票次数
	ReviewVotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_review_votes_total",
			Help: "Total number of review votes",
		},
		[]string{"direction"},
	)

	// CatalogCacheTotal 书目缓存命中情况
	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_catalog_cache_total",
			Help: "Catalog cache lookups by result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal HTTP请求数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration HTTP请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// WebSocketConnections 当前在线的通知连接数
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_websocket_connections",
			Help: "Number of open notification websocket connections",
		},
	)
)

// RecordFriendshipTransition 记录好友关系迁移
func RecordFriendshipTransition(transition string) {
	FriendshipTransitionsTotal.WithLabelValues(transition).Inc()
}

// RecordModerationAction 记录管理员操作
func RecordModerationAction(action string) {
	ModerationActionsTotal.WithLabelValues(action).Inc()
}

// RecordPurchase 记录一次购书
func RecordPurchase(price float64) {
	PurchasesTotal.Inc()
	PurchaseRevenueTotal.Add(price)
}

// RecordRecommendation 记录一次推荐
func RecordRecommendation() {
	RecommendationsTotal.Inc()
}

// RecordReviewVote 记录一次书评投票
func RecordReviewVote(direction string) {
	ReviewVotesTotal.WithLabelValues(direction).Inc()
}

// RecordCatalogCache 记录书目缓存命中或未命中
func RecordCatalogCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CatalogCacheTotal.WithLabelValues(result).Inc()
}

// Middleware 返回记录HTTP指标的中间件，按路由模板聚合避免标签爆炸
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
