package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by every signed request.
const (
	HeaderAPIKey    = "X-EQB-API-KEY"
	HeaderTimestamp = "X-EQB-TIMESTAMP"
	HeaderSignature = "X-EQB-SIGNATURE"
)

// Signer produces the HMAC headers the brokerage API expects. The signature
// is base64(HMAC-SHA256(secret, timestamp+method+requestURI+body)).
type Signer struct {
	Key    string
	Secret string
}

// Headers signs a request at the current time.
func (s *Signer) Headers(method, requestURI, body string) map[string]string {
	return s.HeadersAt(method, requestURI, body, time.Now().Unix())
}

// HeadersAt signs a request with the given Unix timestamp.
func (s *Signer) HeadersAt(method, requestURI, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderAPIKey:    s.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(s.Secret, ts+method+requestURI+body),
	}
}

// Sign returns base64(HMAC-SHA256(secret, message)).
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String redacts the credentials.
func (s *Signer) String() string {
	redact := func(v string) string {
		if len(v) <= 4 {
			return "****"
		}
		return v[:4] + "****"
	}
	return fmt.Sprintf("Signer{key=%s, secret=%s}", redact(s.Key), redact(s.Secret))
}
