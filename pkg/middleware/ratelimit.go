package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/minimam/pkg/ratelimit"
)

// RateLimit は指定ルートバケットのクォータを適用するGinミドルウェアを返す。
// クライアントキーにはリクエストの送信元アドレスを使用する。
// クォータ超過時はRetry-Afterヘッダー付きの429で打ち切る。
func RateLimit(limiter *ratelimit.Limiter, bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := limiter.Check(c.ClientIP(), bucket)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, please retry later",
			})
			return
		}
		c.Next()
	}
}
