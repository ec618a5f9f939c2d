package testutil

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// relay copies between left and right until either direction ends or ctx is
// canceled, then closes both.
func relay(ctx context.Context, left, right io.ReadWriteCloser) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(left, right)
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(right, left)
		return err
	})
	return g.Wait()
}
