// internal/api/router.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"template-publisher/internal/common/errors"
	"template-publisher/internal/common/logger"
	templatepublish "template-publisher/internal/workers/layer/template-publish"
)

// Invoker runs one publisher mode.
type Invoker interface {
	Invoke(ctx context.Context, mode string, input templatepublish.Input) templatepublish.Response
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// SetupRouter builds the HTTP trigger. Checks are run by /ready.
func SetupRouter(invoker Invoker, log logger.Logger, checks map[string]HealthCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/ready", readyHandler(checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	templates := router.Group("/api/v1/templates")
	{
		templates.POST("/push", invokeHandler(invoker, templatepublish.ModePush))
		templates.POST("/validate", invokeHandler(invoker, templatepublish.ModeValidate))
	}

	return router
}

// invokeHandler writes the invocation Response status and body as they are.
// An empty request body is the same as {}.
func invokeHandler(invoker Invoker, mode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			writeInputError(c, errors.NewInvalidInputError(err.Error()))
			return
		}

		variables := map[string]interface{}{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &variables); err != nil {
				writeInputError(c, errors.NewInvalidInputError("request body must be a JSON object"))
				return
			}
		}

		input, err := templatepublish.ParseInput(variables)
		if err != nil {
			writeInputError(c, errors.Normalize(err))
			return
		}

		resp := invoker.Invoke(c.Request.Context(), mode, input)
		c.JSON(resp.StatusCode, resp.Body)
	}
}

func writeInputError(c *gin.Context, stdErr *errors.StandardError) {
	msg := stdErr.Message
	if stdErr.Details != "" {
		msg += ": " + stdErr.Details
	}
	c.JSON(errors.HTTPStatus(stdErr.Code), templatepublish.ResponseBody{
		Error: msg,
		Code:  string(stdErr.Code),
	})
}

func readyHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		c.JSON(status, gin.H{
			"status": state,
			"checks": results,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		log.Info("HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
