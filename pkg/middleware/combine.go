package middleware

import (
	"context"
	"time"

	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/spa"
)

type observers []spa.Observer

// Combine fans navigation notifications out to several observers. Each
// observer sees the context returned by the one before it; finish
// notifications run in reverse order so spans close inside out.
func Combine(obs ...spa.Observer) spa.Observer {
	var out observers
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (o observers) NavigationStarted(ctx context.Context, path string) context.Context {
	for _, ob := range o {
		ctx = ob.NavigationStarted(ctx, path)
	}
	return ctx
}

func (o observers) NavigationFinished(ctx context.Context, path string, result spa.Result, err error, elapsed time.Duration) {
	for i := len(o) - 1; i >= 0; i-- {
		o[i].NavigationFinished(ctx, path, result, err, elapsed)
	}
}

// FetchHooks fans fetch events out to several hooks. Nil hooks are
// skipped.
func FetchHooks(hooks ...func(fetch.Event)) func(fetch.Event) {
	return func(e fetch.Event) {
		for _, h := range hooks {
			if h != nil {
				h(e)
			}
		}
	}
}
