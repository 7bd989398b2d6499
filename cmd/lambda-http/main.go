package main

// The HTTP API as a Lambda behind an API Gateway HTTP API (payload v2):
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/shared/telemetry"
)

// proxy is built once per execution environment and reused across warm
// invocations. A failed build is retried on the next cold start only.
var (
	proxyOnce sync.Once
	proxy     *ginadapter.GinLambdaV2
	proxyErr  error
)

func buildProxy() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	app, err := bootstrap.Build(cfg)
	if err != nil {
		proxyErr = err
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": err.Error()})
		return
	}
	proxy = ginadapter.NewV2(app.Router)
}

func unavailable(code string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{Code: code, Message: "service unavailable"}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json", "Retry-After": "1"},
	}
}

func handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	proxyOnce.Do(buildProxy)
	if proxyErr != nil || proxy == nil {
		return unavailable("bootstrap_failed"), nil
	}
	return proxy.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handle)
}
