/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"crypto/subtle"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/internal/apierror"
)

// SecretKeyHeader carries the API secret on every request.
const SecretKeyHeader = "X-Inspectsync-Key"

const defaultLimiterTTL = 3 * time.Hour

func abort(c *gin.Context, err apierror.APIError) {
	c.AbortWithStatusJSON(apierror.MapErrorToHTTPStatus(err), err)
}

// newLimiter builds a per-client limiter, or returns nil when rate limiting
// is not configured.
func newLimiter(cfg config.RateLimitConfig) *limiter.Limiter {
	if cfg.RequestsPerSecond == nil || cfg.Burst == nil {
		return nil
	}

	ttl := defaultLimiterTTL
	if cfg.CleanupIntervalSec != nil && *cfg.CleanupIntervalSec > 0 {
		ttl = time.Duration(*cfg.CleanupIntervalSec) * time.Second
	}

	lmt := tollbooth.NewLimiter(*cfg.RequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	})
	lmt.SetBurst(*cfg.Burst)
	// The service runs on a plant LAN without a proxy in front of it.
	lmt.SetIPLookups([]string{"RemoteAddr"})
	return lmt
}

// RateLimitMiddleware limits requests per client address. It passes every
// request through when rate_limit is not set.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	lmt := newLimiter(conf.RateLimit)
	if lmt == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			abort(c, apierror.NewAPIError(apierror.ErrRateLimited, httpError.Message, nil))
			return
		}
		c.Next()
	}
}

// SecretKeyAuthMiddleware checks SecretKeyHeader against server.secret_key
// from the current snapshot, so a reset applies without a restart.
func SecretKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil {
			abort(c, apierror.NewAPIError(apierror.ErrUnavailable, "configuration not loaded", err))
			return
		}
		if conf.Server.SecretKey == "" {
			abort(c, apierror.NewAPIError(apierror.ErrUnavailable, "secret key is not configured", nil))
			return
		}

		switch clientSecret := c.GetHeader(SecretKeyHeader); {
		case clientSecret == "":
			abort(c, apierror.NewAPIError(apierror.ErrUnauthorized, "missing secret key", nil))
		case subtle.ConstantTimeCompare([]byte(conf.Server.SecretKey), []byte(clientSecret)) != 1:
			abort(c, apierror.NewAPIError(apierror.ErrUnauthorized, "invalid secret key", nil))
		default:
			c.Next()
		}
	}
}
