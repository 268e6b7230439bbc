// Example settlements: watch Plinko bets with automatic ABI decoding.
//
// Usage:
//
//	BASE_RPC_URL=https://mainnet.base.org PLINKO_ADDRESS=0x... [PLAYER=0x...] go run ./example/settlements
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom"
	"github.com/hedeqiang/fathom/chain/base"
	"github.com/hedeqiang/fathom/decoder"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	mw "github.com/hedeqiang/fathom/middleware"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/tracker"
)

func main() {
	rpcURL := os.Getenv("BASE_RPC_URL")
	game := os.Getenv("PLINKO_ADDRESS")
	if rpcURL == "" || game == "" {
		log.Fatal("BASE_RPC_URL and PLINKO_ADDRESS environment variables are required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	f := fathom.New(
		fathom.WithLogger(logger),
		fathom.WithLogLevel("debug"),
		fathom.WithRetry(retry.Exponential(3)),
		fathom.WithPollInterval(2*time.Second),
		fathom.WithConfirmations(1),
	)

	if err := f.AddChain(base.New(rpcURL)); err != nil {
		log.Fatal(err)
	}

	f.Use(mw.NewLogger(logger))

	// Register both bet events for decoding
	for _, sig := range tracker.PlinkoSpec().Signatures {
		if err := f.RegisterEvent(sig); err != nil {
			log.Fatal(err)
		}
	}

	q := filter.NewQuery(filter.WithAddresses(event.MustHexToAddress(game)))

	// Skip reorged logs; optionally follow one player (topic 1)
	only := filter.Canonical
	if p := os.Getenv("PLAYER"); p != "" {
		only = filter.AllOf(filter.Canonical, filter.NewIndexedAddressFilter(1, event.MustHexToAddress(p)))
	}

	// Only successfully decoded events reach the handler
	stop, err := f.WatchDecoded("base", q, func(ev *decoder.DecodedEvent) {
		if !only.Match(ev.Raw) {
			return
		}
		player, _ := ev.Address("player")
		seq, _ := ev.Uint64("seq")
		stake, _ := ev.BigInt("stakeWei")

		switch ev.Name {
		case "BetRequested":
			fmt.Printf("[Requested] #%d %s staked %s ETH (block %d)\n",
				seq, player.Hex(), formatUnits(stake, 18), ev.Raw.BlockNumber)

		case "BetSettled":
			payout, _ := ev.BigInt("payout")
			bin, _ := ev.BigInt("bin")
			fmt.Printf("[Settled]   #%d %s bin=%s payout=%s ETH (block %d)\n",
				seq, player.Hex(), bin, formatUnits(payout, 18), ev.Raw.BlockNumber)
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	defer stop()

	fmt.Println("Listening for Plinko bets... Press Ctrl+C to stop.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// formatUnits formats a big.Int with the given decimal places.
func formatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Div(value, divisor)
	frac := new(big.Int).Mod(value, divisor)
	return fmt.Sprintf("%s.%0*s", whole.String(), decimals, frac.String())
}
