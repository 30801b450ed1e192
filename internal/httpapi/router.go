package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/chat-batch-worker/internal/ingest"
)

// WorkerStatus is the part of the worker the health endpoint reports on.
type WorkerStatus interface {
	State() ingest.State
	Buffered() int
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string, data any) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    data,
	})
}

func NewRouter(w WorkerStatus) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, 40400, "route not found", nil)
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed", nil)
	})

	r.GET("/ping", func(c *gin.Context) { ok(c, "pong") })

	r.GET("/healthz", func(c *gin.Context) {
		state := w.State()
		status := gin.H{
			"state":    state.String(),
			"buffered": w.Buffered(),
		}
		if state != ingest.StateRunning {
			fail(c, http.StatusServiceUnavailable, 50300, "worker not running", status)
			return
		}
		ok(c, status)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
