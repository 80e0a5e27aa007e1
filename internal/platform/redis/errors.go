package redis

import (
	"errors"
	"fmt"
	"io"
	"net"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/genqueue/internal/store"
)

// mapError marks connection-level failures as store.ErrUnavailable. Command
// errors from the server are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
