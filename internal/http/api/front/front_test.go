package front

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/qingcheng-ai/QingchengAPI/internal/account"
	"github.com/qingcheng-ai/QingchengAPI/internal/alipay"
	"github.com/qingcheng-ai/QingchengAPI/internal/config"
	dbpkg "github.com/qingcheng-ai/QingchengAPI/internal/db"
	"github.com/qingcheng-ai/QingchengAPI/internal/gemini"
	"github.com/qingcheng-ai/QingchengAPI/internal/payment"
	"github.com/qingcheng-ai/QingchengAPI/internal/redeem"
	"github.com/qingcheng-ai/QingchengAPI/internal/settings"
	"gorm.io/gorm"
)

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, req gemini.Request) (*gemini.Result, gemini.Invocation, error) {
	return &gemini.Result{Task: req.Task, Analysis: &gemini.Analysis{Title: "stub"}}, gemini.Invocation{Model: "stub", Attempts: 1}, nil
}

type testServer struct {
	engine    *gin.Engine
	conn      *gorm.DB
	store     *settings.Store
	redeemer  *redeem.Service
	signKey   string
	publicKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:front_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	key, errKey := rsa.GenerateKey(rand.Reader, 2048)
	if errKey != nil {
		t.Fatalf("generate key: %v", errKey)
	}
	pub, errPub := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if errPub != nil {
		t.Fatalf("marshal public key: %v", errPub)
	}

	store := settings.NewStore(conn, time.Minute)
	redeemer := redeem.NewService(conn, time.UTC, nil)
	engine := gin.New()
	RegisterFrontRoutes(engine, Deps{
		DB:       conn,
		JWT:      config.JWTConfig{Secret: "front-test-secret", ExpiryHours: 1},
		SiteName: "Qingcheng",
		Location: time.UTC,
		Accounts: account.NewService(conn),
		Settings: store,
		Payments: payment.NewService(conn, store, payment.Options{}),
		Redeemer: redeemer,
		AI:       stubInvoker{},
	})
	return &testServer{
		engine:    engine,
		conn:      conn,
		store:     store,
		redeemer:  redeemer,
		signKey:   base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(key)),
		publicKey: base64.StdEncoding.EncodeToString(pub),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if errDecode := json.Unmarshal(w.Body.Bytes(), out); errDecode != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), errDecode)
	}
}

func (s *testServer) register(t *testing.T, username, deviceID, referrer string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v0/front/register", "", gin.H{
		"username":      username,
		"password":      "secret-pass",
		"device_id":     deviceID,
		"referrer_code": referrer,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func (s *testServer) credits(t *testing.T, token string) int64 {
	t.Helper()
	w := s.do(t, http.MethodGet, "/v0/front/profile", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Credits int64 `json:"credits"`
	}
	decode(t, w, &resp)
	return resp.Credits
}

func TestRegisterLoginAndReferral(t *testing.T) {
	s := newTestServer(t)

	referrer := s.register(t, "referrer", "android-0000-R3F3RR", "")
	if got := s.credits(t, referrer); got != 5 {
		t.Fatalf("expected 5 starting credits, got %d", got)
	}
	s.register(t, "friend", "android-1111-FR1END", "R3F3RR")
	if got := s.credits(t, referrer); got != 6 {
		t.Fatalf("expected referral credit, got %d", got)
	}

	w := s.do(t, http.MethodPost, "/v0/front/login", "", gin.H{"username": "friend", "password": "wrong-pass"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/v0/front/login", "", gin.H{"username": "friend", "password": "secret-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}

	if w = s.do(t, http.MethodGet, "/v0/front/profile", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, "/v0/front/profile", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", w.Code)
	}
}

func TestRedeemThroughRouter(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "redeemer", "ios-ABCDEF", "")

	code, errCode := redeem.GenerateCode(s.redeemer.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	w := s.do(t, http.MethodPost, "/v0/front/redeem", token, gin.H{"code": code, "device_id": "ios-ABCDEF"})
	if w.Code != http.StatusOK {
		t.Fatalf("redeem: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Credits int64 `json:"credits"`
	}
	decode(t, w, &resp)
	if resp.Credits != 10 {
		t.Fatalf("expected 10 credits after redemption, got %d", resp.Credits)
	}

	w = s.do(t, http.MethodPost, "/v0/front/redeem", token, gin.H{"code": code, "device_id": "ios-OTHER1"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), redeem.ErrAlreadyUsed.Error()) {
		t.Fatalf("expected already used, got %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/v0/front/redeem", token, gin.H{"code": "SHORT", "device_id": "ios-ABCDEF"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected bad format, got %d", w.Code)
	}
}

func TestPaymentCheckoutAndNotify(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "buyer", "", "")

	w := s.do(t, http.MethodPost, "/v0/front/payment/orders", token, gin.H{"package_id": "pkg_12"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("checkout without gateway config should fail with 400, got %d", w.Code)
	}

	ctx := context.Background()
	appID, enabled := "2021000000000000", true
	for key, value := range map[string]string{
		settings.AlipayAppIDKey:      appID,
		settings.AlipayPrivateKeyKey: s.signKey,
		settings.AlipayPublicKeyKey:  s.publicKey,
	} {
		v := value
		if errPut := s.store.Put(ctx, key, &v, nil); errPut != nil {
			t.Fatalf("put %s: %v", key, errPut)
		}
	}
	if errPut := s.store.Put(ctx, settings.AlipayEnabledKey, nil, &enabled); errPut != nil {
		t.Fatalf("enable payment: %v", errPut)
	}

	w = s.do(t, http.MethodGet, "/v0/front/config", "", nil)
	if !strings.Contains(w.Body.String(), `"payment_enabled":true`) {
		t.Fatalf("public config should report payment enabled: %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/v0/front/payment/orders", token, gin.H{"package_id": "pkg_404"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown package, got %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/v0/front/payment/orders", token, gin.H{"package_id": "pkg_12"})
	if w.Code != http.StatusOK {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	var order struct {
		OrderID  string `json:"order_id"`
		FormHTML string `json:"form_html"`
	}
	decode(t, w, &order)
	if !strings.HasPrefix(order.OrderID, "QC") || !strings.Contains(order.FormHTML, "alipay_submit") {
		t.Fatalf("unexpected order response %+v", order)
	}

	params := map[string]string{
		"out_trade_no": order.OrderID,
		"trade_no":     "2026000000000001",
		"trade_status": alipay.TradeStatusSuccess,
		"total_amount": "9.90",
		"app_id":       appID,
	}
	sign, errSign := alipay.Sign(params, s.signKey)
	if errSign != nil {
		t.Fatalf("sign notification: %v", errSign)
	}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("sign", sign)
	form.Set("sign_type", alipay.SignTypeRSA2)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, payment.NotifyPath, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.engine.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "success" {
			t.Fatalf("delivery %d: expected success ack, got %d %q", i, rec.Code, rec.Body.String())
		}
	}
	if got := s.credits(t, token); got != 5+12 {
		t.Fatalf("expected 17 credits after duplicate callbacks, got %d", got)
	}

	form.Set("total_amount", "0.01")
	req := httptest.NewRequest(http.MethodPost, payment.NotifyPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	if rec.Body.String() != "fail" {
		t.Fatalf("tampered callback must fail, got %q", rec.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v0/front/payment/orders/"+order.OrderID, token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"paid"`) {
		t.Fatalf("order should be paid: %d %s", w.Code, w.Body.String())
	}
	other := s.register(t, "snoop", "", "")
	if w = s.do(t, http.MethodGet, "/v0/front/payment/orders/"+order.OrderID, other, nil); w.Code != http.StatusNotFound {
		t.Fatalf("orders of other users must be hidden, got %d", w.Code)
	}
}

func TestInvokeAndUsageThroughRouter(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "artist", "web-ART1ST", "")

	w := s.do(t, http.MethodPost, "/v0/front/ai/invoke", token, gin.H{"task": "analyze", "prompt": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("invoke: %d %s", w.Code, w.Body.String())
	}
	if got := s.credits(t, token); got != 4 {
		t.Fatalf("expected one credit charged, got balance %d", got)
	}

	w = s.do(t, http.MethodGet, "/v0/front/usage/invocations", token, nil)
	var list struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Fatalf("expected one recorded invocation, got %d", list.Total)
	}

	w = s.do(t, http.MethodGet, "/v0/front/usage/stats", token, nil)
	var stats map[string]struct {
		TotalRequests int64 `json:"total_requests"`
		CreditsSpent  int64 `json:"credits_spent"`
	}
	decode(t, w, &stats)
	if stats["today"].TotalRequests != 1 || stats["today"].CreditsSpent != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
