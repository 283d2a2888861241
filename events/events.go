// Package events 站内事件的发布与订阅
//
// 启用 Redis 时事件写入 Stream 作为审计记录，并通过 Pub/Sub 广播给所有实例；
// 未启用 Redis 或中继未启动时直接在进程内分发给本地订阅者。
package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/middleware"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// StreamKey 事件审计流
	StreamKey = "library_events"
	// NotifyChannel 跨实例通知频道
	NotifyChannel = "library:notify"
	// streamMaxLen 审计流保留的最大条数
	streamMaxLen = 100000
)

// Type 事件类型
type Type string

const (
	FriendRequestSent      Type = "friend_request_sent"
	FriendRequestAccepted  Type = "friend_request_accepted"
	FriendRequestRejected  Type = "friend_request_rejected"
	FriendRequestCancelled Type = "friend_request_cancelled"
	Unfriended             Type = "unfriended"
	RecommendationReceived Type = "recommendation_received"
	PublisherRequested     Type = "publisher_requested"
	PublisherApproved      Type = "publisher_approved"
	PublisherRejected      Type = "publisher_rejected"
	UserBlocked            Type = "user_blocked"
	UserUnblocked          Type = "user_unblocked"
	BookSubmitted          Type = "book_submitted"
	BookApproved           Type = "book_approved"
	BookRejected           Type = "book_rejected"
	BookRemoved            Type = "book_removed"
	BookPurchased          Type = "book_purchased"
	ReviewVoted            Type = "review_voted"
	ReviewCommented        Type = "review_commented"
	ReviewReported         Type = "review_reported"
	ReviewDeleted          Type = "review_deleted"
)

// Event 站内事件
// TargetUserID 为需要收到通知的用户，为空表示仅记录不推送
type Event struct {
	Type         Type      `json:"type"`
	ActorID      string    `json:"actor_id"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	BookISBN     string    `json:"book_isbn,omitempty"`
	ReviewID     string    `json:"review_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Listener 事件监听函数
type Listener func(Event)

var (
	mu          sync.RWMutex
	listeners   = map[int]Listener{}
	nextID      int
	relayActive atomic.Bool
)

// Subscribe 注册本地监听器，返回取消订阅函数
func Subscribe(fn Listener) func() {
	mu.Lock()
	id := nextID
	nextID++
	listeners[id] = fn
	mu.Unlock()

	return func() {
		mu.Lock()
		delete(listeners, id)
		mu.Unlock()
	}
}

// Publish 发布事件
// 事件发布失败只记录日志，不影响已经完成的业务操作
func Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if config.RedisClient == nil {
		dispatch(e)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		middleware.ErrorLogger("failed to encode event", zap.String("type", string(e.Type)), zap.Error(err))
		dispatch(e)
		return
	}

	// 1. 写入审计流
	err = config.RedisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(e.Type),
			"actor_id":  e.ActorID,
			"target":    e.TargetUserID,
			"book_isbn": e.BookISBN,
			"review_id": e.ReviewID,
			"timestamp": e.Timestamp.Unix(),
		},
	}).Err()
	if err != nil {
		middleware.WarnLogger("failed to append event to stream", zap.String("type", string(e.Type)), zap.Error(err))
	}

	// 2. 没有中继时在本进程内分发
	if !relayActive.Load() {
		dispatch(e)
		return
	}

	// 3. 广播给所有实例（包括本实例的中继）
	if e.TargetUserID == "" {
		return
	}
	if err := config.RedisClient.Publish(ctx, NotifyChannel, payload).Err(); err != nil {
		middleware.WarnLogger("failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
		dispatch(e)
	}
}

// StartRelay 订阅跨实例通知频道并分发给本地监听器，直到 ctx 结束
func StartRelay(ctx context.Context) error {
	if config.RedisClient == nil {
		return nil
	}

	pubsub := config.RedisClient.Subscribe(ctx, NotifyChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}
	relayActive.Store(true)

	go func() {
		defer func() {
			relayActive.Store(false)
			pubsub.Close()
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					middleware.WarnLogger("dropping malformed event", zap.Error(err))
					continue
				}
				dispatch(e)
			}
		}
	}()

	middleware.InfoLogger("event relay started", zap.String("channel", NotifyChannel))
	return nil
}

// dispatch 分发给本地监听器
func dispatch(e Event) {
	mu.RLock()
	snapshot := make([]Listener, 0, len(listeners))
	for _, fn := range listeners {
		snapshot = append(snapshot, fn)
	}
	mu.RUnlock()

	for _, fn := range snapshot {
		fn(e)
	}
}
