package payos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/gateway"
)

// Sign computes the PayOS checksum: HMAC-SHA256 over "k1=v1&k2=v2" with keys
// sorted alphabetically, hex encoded.
func Sign(checksumKey string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
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

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookBody struct {
	Code      string                     `json:"code"`
	Desc      string                     `json:"desc"`
	Success   bool                       `json:"success"`
	Data      map[string]json.RawMessage `json:"data"`
	Signature string                     `json:"signature"`
}

// VerifyWebhook checks the signature over the data object and reports the
// order as PAID when the provider marks the transfer successful.
func (c *Client) VerifyWebhook(body []byte) (*gateway.WebhookEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if wb.Signature == "" || len(wb.Data) == 0 {
		return nil, gateway.ErrInvalidSignature
	}

	fields := make(map[string]string, len(wb.Data))
	for k, raw := range wb.Data {
		fields[k] = flattenValue(raw)
	}

	expected := Sign(c.checksumKey, fields)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(wb.Signature))) {
		c.log.Warn("Rejected webhook with bad signature")
		return nil, gateway.ErrInvalidSignature
	}

	orderCode, ok := fields["orderCode"]
	if !ok || orderCode == "" {
		return nil, fmt.Errorf("webhook missing orderCode")
	}

	amount, _ := strconv.ParseInt(fields["amount"], 10, 64)

	event := &gateway.WebhookEvent{
		OrderID: orderCode,
		Status:  entity.PaymentStatusPending,
		Amount:  amount,
	}
	if wb.Code == codeSuccess && fields["code"] == codeSuccess {
		event.Status = entity.PaymentStatusPaid
	}

	return event, nil
}

// flattenValue renders a JSON value the way PayOS does when signing: strings
// unquoted, null as empty, everything else verbatim.
func flattenValue(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "null" || trimmed == "":
		return ""
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return trimmed
}
