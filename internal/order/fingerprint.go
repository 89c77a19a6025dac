package order

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DomainOrder separates order fingerprints from any other hash the
// repository computes. The version suffix allows a future format change.
const DomainOrder = "ordersync/order/v1"

// Fingerprint returns a stable hash of an order's content. Revision is
// excluded so two deliveries of the same state compare equal whatever
// revision the engine inferred for them.
//
// Strings are NFC normalized, object keys sorted and money rendered as a
// fixed decimal string, so the result does not depend on how the payload
// was encoded on the wire.
func Fingerprint(o Order) string {
	lines := make([]any, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = map[string]any{
			"item_id":    l.ItemID,
			"item_name":  l.ItemName,
			"quantity":   int64(l.Quantity),
			"unit_price": l.UnitPrice.StringFixed(2),
		}
	}
	obj := map[string]any{
		"id":               o.ID,
		"status":           string(o.Status),
		"placed_at":        o.PlacedAt.UTC().Format(time.RFC3339Nano),
		"total":            o.Total.StringFixed(2),
		"lines":            lines,
		"contact":          o.Contact,
		"delivery_address": o.DeliveryAddress,
		"delivery_notes":   o.DeliveryNotes,
		"kind":             o.Kind,
		"payment_method":   o.PaymentMethod,
	}

	data, err := marshalCanonical(obj)
	if err != nil {
		// Every value above is a string, int64, slice or map.
		panic(fmt.Sprintf("order fingerprint: %v", err))
	}
	return hashWithDomain(DomainOrder, data)
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return marshalCanonicalString(val)
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalCanonical(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			b, err := marshalCanonical(val[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString NFC-normalizes s and encodes it without HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
