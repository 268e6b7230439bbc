// Example replay: backfill settled Plinko bets over a block range.
//
// Usage:
//
//	BASE_RPC_URL=https://mainnet.base.org PLINKO_ADDRESS=0x... FROM_BLOCK=21000000 TO_BLOCK=21010000 go run ./example/replay
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/hedeqiang/fathom/chain/base"
	"github.com/hedeqiang/fathom/decoder"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/tracker"
	"github.com/hedeqiang/fathom/watcher"
)

func main() {
	rpcURL := os.Getenv("BASE_RPC_URL")
	game := os.Getenv("PLINKO_ADDRESS")
	if rpcURL == "" || game == "" {
		log.Fatal("BASE_RPC_URL and PLINKO_ADDRESS environment variables are required")
	}
	from, err := strconv.ParseUint(os.Getenv("FROM_BLOCK"), 10, 64)
	if err != nil {
		log.Fatalf("FROM_BLOCK: %v", err)
	}
	to, err := strconv.ParseUint(os.Getenv("TO_BLOCK"), 10, 64)
	if err != nil {
		log.Fatalf("TO_BLOCK: %v", err)
	}

	dec := decoder.NewABIDecoder()
	for _, sig := range tracker.PlinkoSpec().Signatures {
		if err := dec.Register(sig); err != nil {
			log.Fatal(err)
		}
	}
	settled, _ := dec.Topic("BetSettled")

	q := filter.NewQuery(
		filter.WithAddresses(event.MustHexToAddress(game)),
		filter.WithEvents(settled),
		filter.WithBlockRange(from, to),
	)

	// Fetch 500 blocks per eth_getLogs call
	batch, err := watcher.NewReplay(base.New(rpcURL), q, 500).Collect(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	for i, l := range batch.Logs {
		ev, err := dec.Decode(l)
		if err != nil {
			log.Printf("skip %s#%d: %v", l.TxHash.Hex(), l.LogIndex, err)
			continue
		}
		fmt.Printf("#%d [block %d] %s\n", i+1, l.BlockNumber, ev)
	}

	fmt.Printf("Done. %d settlements in blocks %d-%d\n", batch.Len(), batch.FromBlock, batch.ToBlock)
}
