package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/auth"
	jwtpkg "github.com/98ZAFAR/dis-mail-backend/internal/auth/jwt"
	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/middleware"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Mailbox: config.MailboxConfig{
			Domain:           "sparemails.com",
			AnonymousTTL:     24 * time.Hour,
			AuthenticatedTTL: 7 * 24 * time.Hour,
			MaxPerUser:       5,
		},
		Sweeper: config.SweeperConfig{
			Interval:         time.Minute,
			DeactivateWindow: time.Hour,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Log: config.LogConfig{
			Level: "error",
		},
		JWT: config.JWTConfig{
			Secret:        "0123456789abcdef0123456789abcdef",
			Issuer:        "dismail",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
		},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	store := memory.NewStore()
	backend := cache.NewLocalBackend()
	t.Cleanup(func() { _ = backend.Close() })
	layer := cache.NewLayer(backend, zap.NewNop())

	registry := service.NewMailboxRegistry(store, layer, nil, cfg, zap.NewNop())
	migrator := service.NewOwnershipMigrator(store, layer, cfg, zap.NewNop())
	sweeper := service.NewExpirySweeper(store, layer, cfg, zap.NewNop(), nil)
	mails := service.NewMailService(store, zap.NewNop(), nil)
	authService := auth.NewService(store, migrator, nil, zap.NewNop())
	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)

	return NewRouter(RouterDependencies{
		Config:      cfg,
		Registry:    registry,
		Mails:       mails,
		Sweeper:     sweeper,
		AuthService: authService,
		JWTManager:  jwtManager,
		CacheLayer:  layer,
		Logger:      zap.NewNop(),
	})
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestGuestSessionFlow(t *testing.T) {
	router := newTestRouter(t)

	// 签发会话令牌
	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/session", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	token := resp["data"].(map[string]any)["sessionToken"].(string)
	require.NotEmpty(t, token)

	sessionHeader := map[string]string{middleware.SessionTokenHeader: token}

	t.Run("未持有邮箱时查询返回404", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/api/v1/session/mailbox", nil, sessionHeader)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("创建匿名邮箱", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodPost, "/api/v1/session/mailbox",
			map[string]string{"alias": "alice"}, sessionHeader)
		require.Equal(t, http.StatusCreated, w.Code)

		data := resp["data"].(map[string]any)
		assert.Equal(t, "alice@sparemails.com", data["emailAddress"])
	})

	t.Run("查询会话邮箱", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodGet, "/api/v1/session/mailbox", nil, sessionHeader)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice@sparemails.com", resp["data"].(map[string]any)["emailAddress"])
	})

	t.Run("别名占用后不可用", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodGet, "/api/v1/aliases/alice/available", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, resp["data"].(map[string]any)["available"])
	})

	t.Run("同一会话重复创建返回409", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, "/api/v1/session/mailbox",
			map[string]string{"alias": "bob"}, sessionHeader)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("缺少会话令牌返回401", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/api/v1/session/mailbox", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOwnerScopedMailboxEndpoints(t *testing.T) {
	router := newTestRouter(t)

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/session", nil, nil)
	token := resp["data"].(map[string]any)["sessionToken"].(string)
	sessionHeader := map[string]string{middleware.SessionTokenHeader: token}

	_, resp = doJSON(t, router, http.MethodPost, "/api/v1/session/mailbox",
		map[string]string{"alias": "carol"}, sessionHeader)
	mailboxID := resp["data"].(map[string]any)["id"].(string)

	t.Run("归属会话可以查看和延期", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/api/v1/mailboxes/"+mailboxID, nil, sessionHeader)
		assert.Equal(t, http.StatusOK, w.Code)

		w, _ = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/mailboxes/%s/extend", mailboxID), nil, sessionHeader)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("其他会话访问返回404", func(t *testing.T) {
		_, resp := doJSON(t, router, http.MethodPost, "/api/v1/session", nil, nil)
		other := resp["data"].(map[string]any)["sessionToken"].(string)

		w, _ := doJSON(t, router, http.MethodGet, "/api/v1/mailboxes/"+mailboxID, nil,
			map[string]string{middleware.SessionTokenHeader: other})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("邮件列表初始为空", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/mailboxes/%s/mails", mailboxID), nil, sessionHeader)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), resp["data"].(map[string]any)["total"])
	})

	t.Run("删除后再访问返回404", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodDelete, "/api/v1/mailboxes/"+mailboxID, nil, sessionHeader)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w, _ = doJSON(t, router, http.MethodGet, "/api/v1/mailboxes/"+mailboxID, nil, sessionHeader)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthFlow(t *testing.T) {
	router := newTestRouter(t)

	register := map[string]string{
		"email":    "dave@example.com",
		"password": "str0ng-pass",
		"fullName": "Dave",
	}

	t.Run("注册成功", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", register, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "dave@example.com", resp["data"].(map[string]any)["email"])
	})

	t.Run("重复注册返回409", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", register, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("登录并迁移游客邮箱", func(t *testing.T) {
		// 先以游客身份创建邮箱
		_, resp := doJSON(t, router, http.MethodPost, "/api/v1/session", nil, nil)
		token := resp["data"].(map[string]any)["sessionToken"].(string)
		doJSON(t, router, http.MethodPost, "/api/v1/session/mailbox",
			map[string]string{"alias": "davebox"}, map[string]string{middleware.SessionTokenHeader: token})

		w, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			map[string]any{
				"email":          "dave@example.com",
				"password":       "str0ng-pass",
				"migrateMailbox": true,
			},
			map[string]string{middleware.SessionTokenHeader: token})
		require.Equal(t, http.StatusOK, w.Code)

		data := resp["data"].(map[string]any)
		require.NotNil(t, data["migratedMailbox"])
		assert.Equal(t, "davebox@sparemails.com", data["migratedMailbox"].(map[string]any)["emailAddress"])

		// 迁移成功后游客会话 Cookie 被清除
		var sessionCookie *http.Cookie
		for _, cookie := range w.Result().Cookies() {
			if cookie.Name == middleware.SessionTokenCookie {
				sessionCookie = cookie
			}
		}
		require.NotNil(t, sessionCookie)
		assert.Empty(t, sessionCookie.Value)
		assert.Negative(t, sessionCookie.MaxAge)

		accessToken := data["tokens"].(map[string]any)["accessToken"].(string)
		require.NotEmpty(t, accessToken)

		// 迁移后的邮箱出现在用户名下
		authHeader := map[string]string{"Authorization": "Bearer " + accessToken}
		w, resp = doJSON(t, router, http.MethodGet, "/api/v1/mailboxes", nil, authHeader)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), resp["data"].(map[string]any)["total"])

		// /auth/me
		w, resp = doJSON(t, router, http.MethodGet, "/api/v1/auth/me", nil, authHeader)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "dave@example.com", resp["data"].(map[string]any)["email"])
	})

	t.Run("密码错误返回401", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			map[string]string{"email": "dave@example.com", "password": "wrong-pass"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminEndpoints(t *testing.T) {
	router := newTestRouter(t)

	t.Run("未认证触发清扫返回401", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, "/api/v1/admin/sweep", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("认证后可以触发清扫", func(t *testing.T) {
		doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
			map[string]string{"email": "op@example.com", "password": "str0ng-pass"}, nil)
		_, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			map[string]string{"email": "op@example.com", "password": "str0ng-pass"}, nil)
		accessToken := resp["data"].(map[string]any)["tokens"].(map[string]any)["accessToken"].(string)

		w, resp := doJSON(t, router, http.MethodPost, "/api/v1/admin/sweep", nil,
			map[string]string{"Authorization": "Bearer " + accessToken})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, resp["data"].(map[string]any), "reaped")

		w, _ = doJSON(t, router, http.MethodGet, "/api/v1/admin/cache/stats", nil,
			map[string]string{"Authorization": "Bearer " + accessToken})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
