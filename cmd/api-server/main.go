// Command api-server serves the stockroom product and order API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	stockroom "github.com/xenking/stockroom/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := stockroom.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		return stockroom.Run(ctx, lg, t, cfg)
	})
}
