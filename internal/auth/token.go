package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat   = errors.New("invalid token format")
	ErrTokenSig      = errors.New("invalid token signature")
	ErrTokenExp      = errors.New("token expired")
	ErrTokenDevice   = errors.New("device id mismatch")
	ErrTokenMissing  = errors.New("missing bearer token")
	ErrNoTokenSecret = errors.New("token secret not configured")
)

// GenerateDeviceToken builds a token bound to a device (panel or signal
// source) and an expiry.
// Format: base64url(device_id + "." + exp_unix + "." + hex(hmac_sha256(secret, device_id+"."+exp)))
func GenerateDeviceToken(secret, deviceID string, expUnix int64) (string, error) {
	if secret == "" {
		return "", ErrNoTokenSecret
	}
	if deviceID == "" || strings.Contains(deviceID, ".") {
		return "", ErrTokenFormat
	}
	msg := deviceID + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateDeviceToken returns the embedded device id and expiry. An empty
// expectDevice accepts any device.
func ValidateDeviceToken(secret, token, expectDevice string, now time.Time, skewSeconds int) (string, int64, error) {
	if secret == "" {
		return "", 0, ErrNoTokenSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return "", 0, ErrTokenFormat
	}
	device, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if expectDevice != "" && device != expectDevice {
		return "", 0, ErrTokenDevice
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	want, _ := hex.DecodeString(sign(secret, device+"."+expStr))
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}
	if now.Unix() > exp+int64(skewSeconds) {
		return "", 0, ErrTokenExp
	}
	return device, exp, nil
}

// BearerToken extracts the token from an Authorization header value, or from
// the token query parameter for browser WebSocket clients.
func BearerToken(r *http.Request) (string, error) {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer "), nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", ErrTokenMissing
}
