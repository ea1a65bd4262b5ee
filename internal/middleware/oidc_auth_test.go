package middleware

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOIDCHTTPClient_TrustsProvidedCA(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	caPath := filepath.Join(t.TempDir(), "root_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsServer.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	client, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	require.NoError(t, err)

	resp, err := client.Get(tlsServer.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestNewOIDCHTTPClient_FailsWithoutCAForSelfSignedServer(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	client, err := newOIDCHTTPClient(OIDCAuthConfig{})
	require.NoError(t, err)

	_, err = client.Get(tlsServer.URL)
	assert.Error(t, err)
}

func TestNewOIDCHTTPClient_RejectsInvalidCAFile(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "invalid_ca.crt")
	require.NoError(t, os.WriteFile(caPath, []byte("not a certificate"), 0o600))

	_, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	assert.Error(t, err)
}

func TestOIDCAuthMiddleware_Config(t *testing.T) {
	mw, err := OIDCAuthMiddleware(OIDCAuthConfig{}, nil)
	require.NoError(t, err)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "https://issuer.example.com"}, nil)
	assert.ErrorContains(t, err, "issuer/audience")

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "http://issuer.example.com", Audience: "reportgen"}, nil)
	assert.ErrorContains(t, err, "https")
}

const testIssuer = "https://issuer.example.com"

func signedToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestVerifyTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := oidc.NewVerifier(testIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}},
		&oidc.Config{ClientID: "reportgen"},
	)
	mw := verifyTokens(OIDCAuthConfig{IssuerURL: testIssuer, ClockSkew: time.Minute}, verifier)

	var seen AuthContext
	handler := mw(ReportUserMiddleware("roles")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AuthFromContext(r.Context())
		user := UserFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(user)
	})))

	valid := jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   "reportgen",
		"sub":   "alice",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": []string{"hr"},
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantError: "missing bearer token"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantError: "missing bearer token"},
		{name: "bad signature", header: "Bearer " + signedToken(t, other, valid), wantStatus: http.StatusUnauthorized, wantError: "invalid token"},
		{name: "valid", header: "Bearer " + signedToken(t, key, valid), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/reports/payroll", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				var body ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body.Error)
				return
			}
			assert.Equal(t, "alice", seen.Subject)
			assert.Equal(t, []string{"reportgen"}, seen.Audience)
			assert.JSONEq(t, `{"ID":"alice","Roles":["hr"]}`, rec.Body.String())
		})
	}
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		claims  map[string]interface{}
		wantErr bool
	}{
		{name: "no times", claims: map[string]interface{}{}},
		{name: "expired within skew", claims: map[string]interface{}{"exp": float64(now.Add(-30 * time.Second).Unix())}},
		{name: "expired beyond skew", claims: map[string]interface{}{"exp": float64(now.Add(-5 * time.Minute).Unix())}, wantErr: true},
		{name: "not yet valid", claims: map[string]interface{}{"nbf": json.Number("99999999999")}, wantErr: true},
		{name: "string exp", claims: map[string]interface{}{"exp": "99999999999"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTimeClaims(tt.claims, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": float64(0)}, 0))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Equal(t, "", bearerToken("abc"))
	assert.Equal(t, "", bearerToken("Bearer"))
}
