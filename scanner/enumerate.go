package scanner

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Enumerate measures the array and then fetches every element in parallel.
// The indices are known valid once Length returns, so a fetch error is a
// real failure and is returned as is.
func (s *Scanner) Enumerate(ctx context.Context, access Accessor) ([]common.Address, error) {
	res, err := s.Length(ctx, access)
	if err != nil {
		return nil, err
	}

	out := make([]common.Address, res.Length)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range out {
		g.Go(func() error {
			addr, err := access(gctx, uint64(i))
			if err != nil {
				return err
			}
			out[i] = addr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug().Int("count", len(out)).Msg("Array enumerated")
	return out, nil
}
