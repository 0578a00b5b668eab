package spam

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token freshness window, in whole minutes relative to now. A token may be
// minted slightly in the future to absorb clock skew between browser and server.
const (
	MaxTokenSkew = 2
	MaxTokenAge  = 30
)

var (
	ErrTokenEncoding = errors.New("token is not valid base64")
	ErrTokenShape    = errors.New("token must be nonce:minute")
	ErrTokenExpired  = errors.New("token outside freshness window")
)

// NewToken mints a freshness token for the given render time.
func NewToken(at time.Time) string {
	return EncodeToken(uuid.NewString(), at)
}

// EncodeToken encodes nonce and the unix minute of at as base64("nonce:minute").
func EncodeToken(nonce string, at time.Time) string {
	raw := nonce + ":" + strconv.FormatInt(unixMinute(at), 10)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// CheckToken validates token against now.
func CheckToken(token string, now time.Time) error {
	raw, err := decodeBase64(token)
	if err != nil {
		return ErrTokenEncoding
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 2 {
		return ErrTokenShape
	}
	minute, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenShape, err)
	}
	diff := unixMinute(now) - minute
	if diff < -MaxTokenSkew || diff > MaxTokenAge {
		return ErrTokenExpired
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, ErrTokenEncoding
}

func unixMinute(t time.Time) int64 {
	return t.Unix() / 60
}
