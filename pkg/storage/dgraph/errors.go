package dgraph

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/dgo/v240"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jsonload/jsonload/pkg/storage"
)

// fromGRPCError converts an error returned by dgo to a storage error. Conflicts and
// overload signals map to the retryable storage sentinels; every other error is
// returned as a fatal error that keeps the original message.
func fromGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, dgo.ErrAborted) {
		return fmt.Errorf("%w: %v", storage.ErrTransactionConflict, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		// Not a gRPC status error, return as-is
		return err
	}

	switch st.Code() {
	case codes.Aborted:
		return fmt.Errorf("%w: %s", storage.ErrTransactionConflict, st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", storage.ErrTransactionThrottled, st.Message())
	default:
		return fmt.Errorf("dgraph error (code=%s): %s", st.Code(), st.Message())
	}
}
