package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/deemkeen/federation/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxPayloadSize bounds inbound activities and envelopes
const maxPayloadSize = 1 * 1024 * 1024

// Router serves the inbox endpoints until the server fails.
func Router(ctx context.Context, conf *util.AppConfig, recv *Receiver) error {
	log.Printf("Starting federation receiver on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	// Stricter rate limit for inbox endpoints: 5 req/sec per IP
	inboxLimiter := NewRateLimiter(rate.Limit(5), 10)
	go globalLimiter.Run(ctx, 5*time.Minute)
	go inboxLimiter.Run(ctx, 5*time.Minute)

	g := newRouter(conf, recv, globalLimiter, inboxLimiter)
	return g.Run(fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort))
}

func newRouter(conf *util.AppConfig, recv *Receiver, globalLimiter, inboxLimiter *RateLimiter) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":      util.GetNameAndVersion(),
			"protocols": conf.ProtocolOrder(),
		})
	})

	inbox := g.Group("/", RateLimitMiddleware(inboxLimiter), MaxBytesMiddleware(maxPayloadSize))

	if conf.Conf.WithAp {
		inbox.POST("/inbox", func(c *gin.Context) {
			recv.Receive(c, "")
		})
		inbox.POST("/users/:actor/inbox", func(c *gin.Context) {
			actor := c.Param("actor")
			recv.Receive(c, fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, actor))
		})
	}

	if conf.Conf.WithDiaspora {
		inbox.POST("/receive/public", func(c *gin.Context) {
			recv.Receive(c, "")
		})
		inbox.POST("/receive/users/:guid", func(c *gin.Context) {
			recv.Receive(c, c.Param("guid"))
		})
	}

	return g
}
