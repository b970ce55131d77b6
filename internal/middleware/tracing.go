package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Context keys handlers set so the request span can carry the deployment it produced.
const (
	DeploymentIDKey     = "deployment_id"
	DeploymentStatusKey = "deployment_status"
)

// routeOperations names request spans after what the route does for a deployment.
var routeOperations = map[string]string{
	"/api/generate-and-deploy-task": "deployment.run",
	"/api/status/:repoName":         "deployment.status",
	"/api/status":                   "service.status",
	"/api/health":                   "service.health",
	"/health":                       "service.health",
}

// TracingMiddleware continues the caller's W3C trace and wraps the handler chain in a
// server span named after the route's operation. Unmatched paths share one span name.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "autodeploy"
	}
	tracer := otel.Tracer(serviceName + "/http")

	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("url.path", c.Request.URL.Path),
		}
		if id := c.GetString("request_id"); id != "" {
			attrs = append(attrs, attribute.String("autodeploy.request_id", id))
		}
		if repo := c.Param("repoName"); repo != "" {
			attrs = append(attrs, attribute.String("autodeploy.repo_name", repo))
		}
		ctx, span := tracer.Start(ctx, spanName(c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if id := c.GetString(DeploymentIDKey); id != "" {
			span.SetAttributes(
				attribute.String("autodeploy.deployment_id", id),
				attribute.String("autodeploy.deployment_status", c.GetString(DeploymentStatusKey)),
			)
		}
		switch {
		case status >= http.StatusInternalServerError:
			span.SetStatus(codes.Error, http.StatusText(status))
		case status == http.StatusTooManyRequests:
			span.AddEvent("rate_limited", trace.WithAttributes(attribute.String("retry_after", c.Writer.Header().Get("Retry-After"))))
		}
		span.End()
	}
}

func spanName(method, route string) string {
	if op, ok := routeOperations[route]; ok {
		return op
	}
	if route == "" {
		return "HTTP " + method + " unmatched"
	}
	return "HTTP " + method + " " + route
}
