package scraper

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Confirmer blocks until an operator acknowledges prompt.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) error
}

// LineConfirmer prints the prompt to W and waits for a line on R.
type LineConfirmer struct {
	R io.Reader
	W io.Writer
}

func (c LineConfirmer) Confirm(ctx context.Context, prompt string) error {
	fmt.Fprintln(c.W, prompt)

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(c.R).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
