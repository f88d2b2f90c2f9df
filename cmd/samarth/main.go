package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/seanankenbruck/samarth-qa/internal/cli"
	"github.com/seanankenbruck/samarth-qa/internal/errors"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		var enhanced *errors.EnhancedError
		if stderrors.As(err, &enhanced) {
			fmt.Fprintln(os.Stderr, "Error:", enhanced.UserMessage())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
