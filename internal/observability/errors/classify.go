// Package errors turns errors into short class names for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"os/exec"
	"reflect"
	"strings"

	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// Classify returns a low-cardinality class for err, or "" for nil.
//
// Application errors report their taxonomy code. Cancellation, timeouts,
// network failures and failed subprocesses get fixed names. Anything else is
// named after the innermost concrete type, e.g. "fs_patherror".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	var (
		exitErr *exec.ExitError
		opErr   *net.OpError
		dnsErr  *net.DNSError
	)
	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.As(err, &exitErr):
		return "exit_status"
	case goerrors.As(err, &opErr):
		if opErr.Timeout() {
			return "timeout"
		}
		return "network"
	case goerrors.As(err, &dnsErr):
		return "network"
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
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
}
