package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/mmynk/payouts/internal/metrics"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// and counts it by status code.
// It logs the procedure name, caller, duration, and any error codes/messages.
// Install it outside RequireAuth so rejected tokens are logged too.
func LoggingInterceptor(m *metrics.Collector) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			duration := time.Since(start).Milliseconds()
			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					m.RPC(procedure, connectErr.Code().String())
					slog.Warn("RPC error",
						"procedure", procedure,
						"code", connectErr.Code(),
						"error", connectErr.Message(),
						"duration_ms", duration,
					)
				} else {
					m.RPC(procedure, connect.CodeUnknown.String())
					slog.Error("RPC error",
						"procedure", procedure,
						"error", err,
						"duration_ms", duration,
					)
				}
			} else {
				m.RPC(procedure, "ok")
				slog.Info("RPC ok",
					"procedure", procedure,
					"duration_ms", duration,
				)
			}

			return resp, err
		}
	}
}
