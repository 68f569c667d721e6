package gateway

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/minimam/pkg/auth"
	"github.com/nao1215/minimam/pkg/middleware"
)

// skipResponseHeaders はバックエンドのレスポンスからクライアントへ
// コピーしないヘッダー。Content-Typeはc.Dataが設定し、残りは
// トランスポート層が再計算する。
var skipResponseHeaders = map[string]struct{}{
	"Content-Type":      {},
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

// handleProxy は指定サービスへのプロキシハンドラを返す。
// ワイルドカードルートのサブパスを取り出してdispatchに渡す。
func (s *Server) handleProxy(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subpath := strings.TrimPrefix(c.Param("subpath"), "/")
		s.dispatch(c, service, subpath)
	}
}

// dispatch はリクエストをバックエンドサービスへ転送し、レスポンスを
// そのまま中継する。バックエンドが返したエラーステータスは解釈せず
// 素通しし、接続レベルの失敗のみ503に変換する。
func (s *Server) dispatch(c *gin.Context, service, subpath string) {
	baseURL, ok := s.services[service]
	if !ok {
		// ルート登録とレジストリは起動時に同期しているため到達しない
		log.Printf("未登録サービスへのディスパッチ: %s", service)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	method := c.Request.Method
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	claims := middleware.GetClaims(c)

	// リソース削除はadminロールのみ許可する
	if method == http.MethodDelete && !auth.Authorize(claims, auth.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "Insufficient permissions",
			"message": "Role admin required",
		})
		return
	}

	target := baseURL + "/api/" + service
	if subpath != "" {
		target += "/" + subpath
	}

	var body io.Reader
	switch method {
	case http.MethodGet:
		if q := c.Request.URL.RawQuery; q != "" {
			target += "?" + q
		}
	case http.MethodPost, http.MethodPut:
		body = c.Request.Body
	}
	// DELETEはボディを転送しない

	req, err := http.NewRequestWithContext(c.Request.Context(), method, target, body)
	if err != nil {
		log.Printf("プロキシリクエストの作成に失敗: service=%s, error=%v", service, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// HostとContent-Lengthは転送せず、トランスポート層に再計算させる
	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", c.GetHeader("Authorization"))
	req.Header.Set("User-Agent", "API-Gateway")

	if claims != nil {
		req.Header.Set("X-User-ID", strconv.Itoa(claims.UserID))
		req.Header.Set("X-Username", claims.Username)
		req.Header.Set("X-User-Role", string(claims.Role))
	}

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		log.Printf("プロキシエラー: service=%s, url=%s, error=%v", service, target, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": service + " service unavailable"})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("レスポンスの読み取りに失敗: service=%s, error=%v", service, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for key, values := range resp.Header {
		if _, skip := skipResponseHeaders[key]; skip {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}

	respContentType := resp.Header.Get("Content-Type")
	if respContentType == "" {
		respContentType = "application/json"
	}
	c.Data(resp.StatusCode, respContentType, respBody)
}

// serviceStatus はステータス集約結果の1サービス分。
type serviceStatus struct {
	// Status はhealthy/unhealthy/unavailableのいずれか。
	Status string `json:"status"`
	// ResponseTime はプローブの応答時間（秒）。
	ResponseTime float64 `json:"response_time,omitempty"`
	// Error はプローブが完了しなかった場合のエラー内容。
	Error string `json:"error,omitempty"`
}

// handleStatus は全バックエンドのヘルス状態を集約するハンドラを返す。
func (s *Server) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gateway":  "healthy",
			"services": s.probeServices(),
		})
	}
}

// probeServices は登録済みの全サービスを並行にプローブし、結果を集約する。
// 個々のプローブはprobeClientのタイムアウトで打ち切られるため、
// 何台落ちていても集約全体は有限時間で完了する。
func (s *Server) probeServices() map[string]serviceStatus {
	results := make(map[string]serviceStatus, len(s.services))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, baseURL := range s.services {
		wg.Add(1)
		go func(name, baseURL string) {
			defer wg.Done()
			status := s.probe(baseURL)
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, baseURL)
	}
	wg.Wait()

	return results
}

// probe は単一サービスの/healthエンドポイントを叩いて状態を判定する。
func (s *Server) probe(baseURL string) serviceStatus {
	start := time.Now()

	resp, err := s.probeClient.Get(baseURL + "/health")
	if err != nil {
		return serviceStatus{Status: "unavailable", Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	elapsed := time.Since(start).Seconds()
	if resp.StatusCode == http.StatusOK {
		return serviceStatus{Status: "healthy", ResponseTime: elapsed}
	}
	return serviceStatus{Status: "unhealthy", ResponseTime: elapsed}
}
