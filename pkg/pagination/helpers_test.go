package pagination

import (
	"context"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/ratelimit"
	"github.com/rs/zerolog"
)

func newCountingPacer(count *int) *ratelimit.Pacer {
	return ratelimit.NewPacer(ratelimit.ScopePage, time.Second, zerolog.Nop()).
		WithSleep(func(context.Context, time.Duration) error {
			*count++
			return nil
		})
}
