package middleware

import (
	"context"
	"testing"
	"time"

	"onlinelibrary_go/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessLogWrite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.RedisClient = client
	t.Cleanup(func() {
		config.RedisClient = nil
		_ = client.Close()
	})

	ok := &AccessLog{Time: time.Now(), RequestID: "r1", Method: "GET", Route: "/api/books/:isbn", Status: 200, UserID: "u1"}
	failed := &AccessLog{Time: time.Now(), RequestID: "r2", Method: "POST", Route: "/api/books", Status: 500, Errors: "boom"}
	ok.write()
	failed.write()

	// 其他测试的异步日志可能同时写入，按请求ID过滤
	if n := logs.FilterMessage("request").FilterField(zap.String("request_id", "r1")).Len(); n != 1 {
		t.Fatalf("expected one info entry, got %d", n)
	}
	errs := logs.FilterMessage("request failed").FilterField(zap.String("request_id", "r2")).All()
	if len(errs) != 1 || errs[0].Level != zapcore.ErrorLevel || errs[0].ContextMap()["errors"] != "boom" {
		t.Fatalf("unexpected error entries: %+v", errs)
	}

	entries, err := client.XRange(context.Background(), AccessLogStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	routes := map[interface{}]int{}
	for _, e := range entries {
		routes[e.Values["route"]]++
	}
	if routes["/api/books/:isbn"] != 1 || routes["/api/books"] != 1 {
		t.Fatalf("unexpected stream entries: %+v", entries)
	}
}
