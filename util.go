package fstreedb

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime/debug"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexstr(b))
}

// keyString renders a collected key the way paths are printed, /a/b/.
func keyString(key []byte) string {
	segs, err := SplitKey(key)
	if err != nil {
		return hexstr(key)
	}
	s := "/"
	for _, seg := range segs[1:] {
		s += string(seg) + "/"
	}
	return s
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func (p panicked) Unwrap() error {
	if err, ok := p.reason.(error); ok {
		return err
	}
	return nil
}

func safelyCall[A any](fn func(A) error, arg A) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(arg)
}
