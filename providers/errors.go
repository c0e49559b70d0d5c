package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// WrapTransportErr ordnet einen Transportfehler in die Fehlertaxonomie ein.
func WrapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// CheckStatus ordnet einen HTTP-Status in die Fehlertaxonomie ein.
// 2xx liefert nil.
func CheckStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}
}
