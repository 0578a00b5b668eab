// Package signing issues and verifies HMAC signed links to stored
// attachments. Links either carry an expiry or never expire.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrMissingParams = errors.New("missing link parameters")
	ErrExpired       = errors.New("link expired")
	ErrBadSignature  = errors.New("invalid signature")
)

// Signer generates and validates signatures over an object key and expiry.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for key expiring at expiresUnix.
func (s *Signer) Sign(key string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expiresUnix, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Query returns the key, expires and signature query parameters for a link
// valid until now+ttl. A ttl of zero or less yields a link without expiry.
func (s *Signer) Query(key string, now time.Time, ttl time.Duration) url.Values {
	q := url.Values{}
	q.Set("key", key)
	if ttl <= 0 {
		q.Set("signature", s.Sign(key, 0))
		return q
	}
	expires := now.Add(ttl).Unix()
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.Sign(key, expires))
	return q
}

// Verify checks a query produced by Query and returns the signed key. A query
// without an expires parameter must carry the non-expiring signature.
func (s *Signer) Verify(q url.Values, now time.Time) (string, error) {
	key, expires, signature := q.Get("key"), q.Get("expires"), q.Get("signature")
	if key == "" || signature == "" {
		return "", ErrMissingParams
	}
	var exp int64
	if q.Has("expires") {
		var err error
		exp, err = strconv.ParseInt(expires, 10, 64)
		if err != nil {
			return "", ErrMissingParams
		}
		if time.Unix(exp, 0).Before(now) {
			return "", ErrExpired
		}
	}
	// hmac.Equal compares in constant time.
	if !hmac.Equal([]byte(s.Sign(key, exp)), []byte(signature)) {
		return "", ErrBadSignature
	}
	return key, nil
}
