package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/joblink/joblink-web/internal/ports"
)

// Known classes shared by logs, metrics and alerts.
const (
	ClassTimeout  = "timeout"
	ClassCanceled = "canceled"
	ClassNotFound = "not_found"
	ClassNetwork  = "network"
	ClassUnknown  = "unknown"
)

// Classify returns a low-cardinality name for err suitable for metric tags.
// Well known conditions map to the Class constants; anything else is named
// after its innermost concrete type, e.g. "pgconn_pgerror".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, ports.ErrRoleNotFound):
		return ClassNotFound
	}
	var opErr *net.OpError
	if goerrors.As(err, &opErr) {
		return ClassNetwork
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ClassUnknown
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return ClassUnknown
	}
	return name
}
