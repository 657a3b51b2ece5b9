package oauth

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type capturedRequest struct {
	method   string
	form     url.Values
	user     string
	password string
	hasAuth  bool
}

func newTokenServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			_ = r.ParseForm()
			captured.method = r.Method
			captured.form = r.PostForm
			captured.user, captured.password, captured.hasAuth = r.BasicAuth()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func successOutcomeFor(code string) AuthorizationOutcome {
	return AuthorizationOutcome{Kind: OutcomeSuccess, Code: code, State: "S1", CodeVerifier: "verifier-123"}
}

func TestExchangeCodePostsConfidentialClientRequest(t *testing.T) {
	var captured capturedRequest
	server := newTokenServer(t, http.StatusOK, `{"access_token":"abc","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`, &captured)
	exchanger := NewExchanger(testConfig(server.URL), nil)

	state, err := exchanger.ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if state.AccessToken != "abc" || state.TokenType != "Bearer" || state.RefreshToken != "r1" {
		t.Fatalf("state = %+v", state)
	}

	if captured.method != http.MethodPost {
		t.Fatalf("method = %s, want POST", captured.method)
	}
	wantForm := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "XYZ",
		"redirect_uri":  testRedirectURI,
		"code_verifier": "verifier-123",
	}
	for key, value := range wantForm {
		if got := captured.form.Get(key); got != value {
			t.Errorf("form %s = %q, want %q", key, got, value)
		}
	}
	if captured.form.Has("client_id") {
		t.Error("confidential client should not send client_id in the body")
	}
	if !captured.hasAuth || captured.user != "my_client_id" || captured.password != "my_client_secret" {
		t.Fatalf("basic auth = %q/%q (%v), want client credentials", captured.user, captured.password, captured.hasAuth)
	}
}

func TestExchangeCodePublicClientSendsClientID(t *testing.T) {
	var captured capturedRequest
	server := newTokenServer(t, http.StatusOK, `{"access_token":"abc","token_type":"Bearer"}`, &captured)
	cfg := testConfig(server.URL)
	cfg.ClientSecret = ""

	if _, err := NewExchanger(cfg, nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ")); err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if captured.hasAuth {
		t.Fatal("public client should not send basic auth")
	}
	if got := captured.form.Get("client_id"); got != "my_client_id" {
		t.Fatalf("client_id = %q, want my_client_id", got)
	}
}

func TestExchangeCodeExpiry(t *testing.T) {
	cases := []struct {
		name string
		body string
		want time.Duration
	}{
		{"explicit", `{"access_token":"abc","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`, time.Hour},
		{"short", `{"access_token":"abc","token_type":"Bearer","expires_in":120}`, 2 * time.Minute},
		{"absent", `{"access_token":"abc","token_type":"Bearer"}`, DefaultExpiresIn},
		{"zero", `{"access_token":"abc","token_type":"Bearer","expires_in":0}`, DefaultExpiresIn},
		{"string", `{"access_token":"abc","token_type":"Bearer","expires_in":"600"}`, 10 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTokenServer(t, http.StatusOK, tc.body, nil)
			before := time.Now()
			state, err := NewExchanger(testConfig(server.URL), nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
			if err != nil {
				t.Fatalf("ExchangeCode() error = %v", err)
			}
			want := before.Add(tc.want)
			if diff := state.Expiry.Sub(want); diff < 0 || diff > time.Second {
				t.Fatalf("expiry = %v, want within 1s of %v", state.Expiry, want)
			}
		})
	}
}

func TestExchangeCodeErrorFieldWinsForAnyStatus(t *testing.T) {
	statuses := []int{http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError}
	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := newTokenServer(t, status, `{"error":"invalid_grant","error_description":"code expired"}`, nil)
			state, err := NewExchanger(testConfig(server.URL), nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
			if state != nil {
				t.Fatalf("state = %+v, want nil", state)
			}
			f := AsFailure(err)
			if f == nil || f.Code != "invalid_grant" || f.Description != "code expired" || f.Kind != KindProtocol {
				t.Fatalf("failure = %+v, want invalid_grant/code expired", f)
			}
		})
	}
}

func TestExchangeCodeInvalidResponses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"not json", http.StatusOK, `<html>oops</html>`},
		{"empty", http.StatusOK, ``},
		{"array", http.StatusOK, `[1,2]`},
		{"missing access token", http.StatusOK, `{"token_type":"Bearer"}`},
		{"server error without error field", http.StatusBadGateway, `{"message":"upstream down"}`},
		{"server error html", http.StatusServiceUnavailable, `<html>down</html>`},
		{"null error", http.StatusBadRequest, `{"error":null}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTokenServer(t, tc.status, tc.body, nil)
			_, err := NewExchanger(testConfig(server.URL), nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
			if !IsCode(err, CodeInvalidResponse) {
				t.Fatalf("error = %v, want %s", err, CodeInvalidResponse)
			}
		})
	}
}

func TestExchangeCodeNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := NewExchanger(testConfig(endpoint), nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
	f := AsFailure(err)
	if f == nil || f.Code != CodeNetworkError || f.Kind != KindTransport {
		t.Fatalf("failure = %+v, want %s", f, CodeNetworkError)
	}
	if f.Cause == nil {
		t.Fatal("expected the transport error as cause")
	}
}

func TestExchangeCodeRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.RequestTimeout = 50 * time.Millisecond
	_, err := NewExchanger(cfg, nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
	if !IsCode(err, CodeNetworkError) {
		t.Fatalf("error = %v, want %s", err, CodeNetworkError)
	}
}

func TestExchangeCodeRequiresSuccessfulOutcome(t *testing.T) {
	exchanger := NewExchanger(testConfig("https://auth.example.com/token"), nil)
	outcome := failureOutcome("a1", validationFailure(CodeStateMismatch, "bad state"))
	if _, err := exchanger.ExchangeCode(context.Background(), outcome); !IsCode(err, CodeInvalidRequest) {
		t.Fatalf("error = %v, want %s", err, CodeInvalidRequest)
	}
}

func TestExchangeCodeDecodesCompressedResponses(t *testing.T) {
	payload := []byte(`{"access_token":"abc","token_type":"Bearer","expires_in":60}`)
	encoders := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w := zlib.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"zstd": func(b []byte) []byte {
			enc, _ := zstd.NewWriter(nil)
			defer func() {
				_ = enc.Close()
			}()
			return enc.EncodeAll(b, nil)
		},
	}
	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			body := encode(payload)
			var acceptEncodingHeader string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				acceptEncodingHeader = r.Header.Get("Accept-Encoding")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(body)
			}))
			defer server.Close()

			state, err := NewExchanger(testConfig(server.URL), nil).ExchangeCode(context.Background(), successOutcomeFor("XYZ"))
			if err != nil {
				t.Fatalf("ExchangeCode() error = %v", err)
			}
			if state.AccessToken != "abc" {
				t.Fatalf("access token = %q, want abc", state.AccessToken)
			}
			if !strings.Contains(acceptEncodingHeader, encoding) {
				t.Fatalf("Accept-Encoding = %q, want it to include %s", acceptEncodingHeader, encoding)
			}
		})
	}
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"not rotated", `{"access_token":"new","token_type":"Bearer","expires_in":3600}`, "r1"},
		{"rotated", `{"access_token":"new","token_type":"Bearer","expires_in":3600,"refresh_token":"r2"}`, "r2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var captured capturedRequest
			server := newTokenServer(t, http.StatusOK, tc.body, &captured)
			state, err := NewExchanger(testConfig(server.URL), nil).Refresh(context.Background(), "r1")
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if state.RefreshToken != tc.want {
				t.Fatalf("refresh token = %q, want %q", state.RefreshToken, tc.want)
			}
			if captured.form.Get("grant_type") != "refresh_token" || captured.form.Get("refresh_token") != "r1" {
				t.Fatalf("form = %v", captured.form)
			}
		})
	}
}

func TestDecodeBodyPassesThroughUnknownEncoding(t *testing.T) {
	body, err := decodeBody("identity", io.NopCloser(strings.NewReader(`{"a":1}`)))
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	if string(body) != `{"a":1}` {
		t.Fatalf("body = %s", body)
	}
	if _, err = decodeBody("gzip", strings.NewReader("not gzip")); err == nil {
		t.Fatal("expected an error for a corrupt gzip body")
	}
}

func TestDecodeBodyDeflate(t *testing.T) {
	payload := []byte(`{"access_token":"abc"}`)

	var wrapped bytes.Buffer
	zw := zlib.NewWriter(&wrapped)
	_, _ = zw.Write(payload)
	_ = zw.Close()

	var raw bytes.Buffer
	fw, err := flate.NewWriter(&raw, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter() error = %v", err)
	}
	_, _ = fw.Write(payload)
	_ = fw.Close()

	cases := map[string][]byte{
		"zlib wrapped": wrapped.Bytes(),
		"raw deflate":  raw.Bytes(),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			got, errDecode := decodeBody("deflate", bytes.NewReader(body))
			if errDecode != nil {
				t.Fatalf("decodeBody() error = %v", errDecode)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("body = %s, want %s", got, payload)
			}
		})
	}
}

func TestNewTokenStateSaturatesHugeExpiresIn(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []int64{maxExpiresIn, maxExpiresIn + 1, 1e10, 1<<63 - 1}
	for _, expiresIn := range cases {
		state := newTokenState(TokenResponse{AccessToken: "a", ExpiresIn: expiresIn}, "", now)
		if !state.Valid(now) {
			t.Errorf("expires_in %d: token should be valid, expiry = %v", expiresIn, state.Expiry)
		}
		if !state.Expiry.After(now.Add(100 * 365 * 24 * time.Hour)) {
			t.Errorf("expires_in %d: expiry = %v, want far in the future", expiresIn, state.Expiry)
		}
	}
}
