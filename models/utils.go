package models

import (
	"github.com/google/uuid"
)

// generateUUID 生成UUID
func generateUUID() string {
	return uuid.New().String()
}

// PairKey 生成无序用户对的规范键（较小的ID在前）
// 好友关系表上的唯一索引依赖这个键，保证同一对用户最多只有一行记录
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
