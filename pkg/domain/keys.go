package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncodeKey renders a scalar value as a type tagged string so that values
// compare by value equality: int(1) and int64(1) encode identically while the
// string "1" does not.
func EncodeKey(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return "s:" + x, nil
	case int:
		return "i:" + strconv.FormatInt(int64(x), 10), nil
	case int32:
		return "i:" + strconv.FormatInt(int64(x), 10), nil
	case int64:
		return "i:" + strconv.FormatInt(x, 10), nil
	case uint32:
		return "i:" + strconv.FormatInt(int64(x), 10), nil
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return "b:" + strconv.FormatBool(x), nil
	case uuid.UUID:
		return "u:" + x.String(), nil
	case decimal.Decimal:
		return "d:" + x.String(), nil
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano), nil
	case nil:
		return "", fmt.Errorf("nil key")
	default:
		return "", fmt.Errorf("unsupported key type %T", v)
	}
}

// DecodeKey reverses EncodeKey.
func DecodeKey(k string) (any, error) {
	tag, body, ok := strings.Cut(k, ":")
	if !ok {
		return nil, fmt.Errorf("malformed key %q", k)
	}
	switch tag {
	case "s":
		return body, nil
	case "i":
		return strconv.ParseInt(body, 10, 64)
	case "f":
		return strconv.ParseFloat(body, 64)
	case "b":
		return strconv.ParseBool(body)
	case "u":
		return uuid.Parse(body)
	case "d":
		return decimal.NewFromString(body)
	case "t":
		return time.Parse(time.RFC3339Nano, body)
	default:
		return nil, fmt.Errorf("malformed key %q", k)
	}
}
