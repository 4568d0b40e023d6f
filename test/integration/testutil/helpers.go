//go:build integration

package testutil

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/attaboy/seamless/internal/auth"
	"github.com/attaboy/seamless/internal/provider"
	"github.com/shopspring/decimal"
)

// Launch registers an aix player through the operator API and funds its wallet.
func (env *TestEnv) Launch(playID string, balance int64) string {
	env.t.Helper()
	body, _ := json.Marshal(map[string]string{"play_id": playID, "username": "user-" + playID, "currency": "THB"})
	req, _ := http.NewRequest(http.MethodPost, env.Server.URL+"/operator/aix/launch", bytes.NewReader(body))
	req.Header.Set(auth.OperatorSecretHeader, TestLaunchSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("launch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("launch: status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		env.t.Fatalf("decode launch: %v", err)
	}
	env.Core.SetBalance(playID, decimal.NewFromInt(balance))
	return out.Token
}

// AIX posts a signed aix callback and decodes the envelope.
func (env *TestEnv) AIX(path string, body map[string]string) provider.AIXResponse {
	env.t.Helper()
	raw, _ := json.Marshal(body)
	mac := hmac.New(sha256.New, []byte(TestAIXSecret))
	mac.Write(raw)

	req, _ := http.NewRequest(http.MethodPost, env.Server.URL+"/aix"+path, bytes.NewReader(raw))
	req.Header.Set(provider.AIXSignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("aix %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out provider.AIXResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		env.t.Fatalf("decode aix %s: %v", path, err)
	}
	return out
}

// CountRows returns the number of rows in table.
func (env *TestEnv) CountRows(table string) int {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var n int
	if err := env.Pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		env.t.Fatalf("count %s: %v", table, err)
	}
	return n
}
