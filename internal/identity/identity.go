// Package identity assigns each browser an anonymous device identity.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/nero-labs/internal/shared"
)

const (
	DeviceCookieName   = "nero_device_id"
	DeviceHeaderName   = "X-Nero-Device-ID"
	deviceCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const deviceIDKey contextKey = iota

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithDeviceID returns a copy of ctx carrying id.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey, id)
}

// NewDeviceID returns a fresh random device ID.
func NewDeviceID() string {
	return "dev_" + shared.RandomHex(16)
}

// IsValidDeviceID reports whether id has the shape NewDeviceID produces.
func IsValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// deviceIDFromRequest prefers the cookie and accepts the header for non-browser clients.
func deviceIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie(DeviceCookieName); err == nil && IsValidDeviceID(c.Value) {
		return c.Value
	}
	if h := r.Header.Get(DeviceHeaderName); IsValidDeviceID(h) {
		return h
	}
	return ""
}

// Middleware injects the device ID, minting and setting a cookie when absent.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := deviceIDFromRequest(r)
			if id == "" {
				id = NewDeviceID()
			}
			// Refresh the expiry on every request.
			setDeviceCookie(w, id, isDev)
			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), id)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
