package redis

import (
	"context"
	stderrors "errors"
	"net"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/errors"
)

// classify maps a go-redis error onto the coordkit taxonomy.
// A nil reply (goredis.Nil) is not an error at this layer and must be
// handled by the caller before classify is reached.
func classify(service, command string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(command).WithCause(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Timeout(command).WithCause(err)
	}

	// Replies the server sent back (WRONGTYPE, NOSCRIPT, ERR ...) are command
	// failures. Everything else go-redis surfaces is transport or pool trouble.
	var replyErr goredis.Error
	if stderrors.As(err, &replyErr) {
		return errors.StoreCommand(command, err)
	}
	return errors.ConnectionFailed(service, err)
}

// IsConnection reports whether err is a transport failure.
func IsConnection(err error) bool {
	return errors.HasCode(err, errors.ErrCodeConnectionFailed)
}

// IsCommand reports whether err is a command the store rejected.
func IsCommand(err error) bool {
	return errors.HasCode(err, errors.ErrCodeStoreCommand)
}
