package daemonserver

import (
	"vision-wallet/go-backend/internal/adapters/rpc"
	"vision-wallet/go-backend/internal/composition/daemon"
)

// NewRPCServer wires the custody service of app into the JSON-RPC transport.
func NewRPCServer(app *daemon.App) (*rpc.Server, error) {
	opts := []rpc.Option{rpc.WithLogger(app.Logger)}
	if app.Registry != nil {
		opts = append(opts, rpc.WithMetricsGatherer(app.Registry))
	}
	return rpc.NewServer(app.Config.RPC, app.Service, opts...)
}
