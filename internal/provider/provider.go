// Package provider holds the per-provider adapters: request parsing,
// authenticity checks, id strategy and the response envelope with each
// provider's error-code vocabulary. The settlement protocol itself lives in
// package settlement.
package provider

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/shopspring/decimal"
)

// MaxBodySize caps every provider callback body.
const MaxBodySize = 1 << 20

// Names of the built-in providers.
const (
	NameAIX = "aix"
	NameORS = "ors"
	NameSBO = "sbo"
)

// readBody reads the request body up to maxSize bytes.
func readBody(r *http.Request, maxSize int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, domain.ErrValidation("request body too large")
	}
	return body, nil
}

// decodeBody reads and unmarshals a JSON body, returning the raw bytes for
// signature checks.
func decodeBody(r *http.Request, dst any) ([]byte, error) {
	body, err := readBody(r, MaxBodySize)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return body, domain.ErrValidation("malformed JSON body")
	}
	return body, nil
}

// hmacSHA256Hex returns the hex HMAC-SHA256 of payload under key.
func hmacSHA256Hex(key string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// signingString joins fields as k=v pairs in key order with '&', skipping
// exclude and empty values.
func signingString(fields map[string]string, exclude string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == exclude || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// md5Hex returns the lower-case hex MD5 of s.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// flattenFields turns a JSON object into signable strings. String values are
// unquoted; everything else keeps its compact JSON text.
func flattenFields(body []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		out[k] = compactJSON(v)
	}
	return out, nil
}

func compactJSON(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// parseAmount parses a provider decimal amount. Empty is rejected.
func parseAmount(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, domain.ErrValidation(field + " is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.ErrValidation(fmt.Sprintf("%s is not a decimal: %q", field, s))
	}
	return d, nil
}

// formatAmount renders a balance with two decimals.
func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// writeJSON writes v with the given status. Providers expect 200 for
// business errors, so callers pass http.StatusOK unless the request was
// unparseable.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
