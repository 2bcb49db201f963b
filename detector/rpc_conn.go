package detector

import (
	"context"
	"net/rpc"
	"time"
)

// DialWithRetry attempts to connect to the RPC server until it succeeds or ctx is done
func (hr *HeaderResolver) DialWithRetry(ctx context.Context, retryInterval time.Duration) error {
	for {
		hr.DomainLogger.RPCConnectionInitiated(hr.ServerAddr)

		client, err := rpc.Dial("tcp", hr.ServerAddr)
		if err == nil {
			hr.DomainLogger.RPCConnectionEstablished(hr.ServerAddr)
			hr.RpcClient = client
			return nil
		}

		hr.DomainLogger.RPCConnectionFailed(hr.ServerAddr, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
