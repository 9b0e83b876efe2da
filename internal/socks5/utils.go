package socks5

import (
	"context"
	"io"
	"sync"
)

var bufPool512 = sync.Pool{
	New: func() interface{} {
		return make([]byte, 512)
	},
}

// from https://ixday.github.io/post/golang-cancel-copy/

type readerFunc func(p []byte) (n int, err error)

func (rf readerFunc) Read(p []byte) (n int, err error) { return rf(p) }

// copyWithCtx is a blocking io.Copy that stops before the next read once ctx
// is done. Each read waits for the previous write, so a slow dst slows src.
func copyWithCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, readerFunc(func(p []byte) (n int, err error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
			return src.Read(p)
		}
	}))
}
