package redirect

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// Resolver redirects a request when a rule matches its canonical URL and otherwise hands it
// to the next handler unchanged.
func (s *Service) Resolver(status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, ok := s.Lookup(c.Request.URL.RequestURI())
		if !ok {
			s.Metrics.MissCnt(1)
			c.Next()
			return
		}
		s.Metrics.HitCnt(1)
		slog.Debug("request redirected.", slog.String("uri", c.Request.URL.RequestURI()),
			slog.String("target", rule.NewURL))
		c.Redirect(status, rule.NewURL)
		c.Abort()
	}
}
