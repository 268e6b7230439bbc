// Example leaderboard: list every entrant of a raffle contract.
//
// The raffle exposes entrants(uint256) returns (address) but no length, so
// the array is sized by probing before it is read.
//
// Usage:
//
//	PHAROS_RPC_URL=https://... RAFFLE_ADDRESS=0x... go run ./example/leaderboard
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom"
	"github.com/hedeqiang/fathom/chain/ethereum"
	"github.com/hedeqiang/fathom/event"
)

func main() {
	rpcURL := os.Getenv("PHAROS_RPC_URL")
	raffle := os.Getenv("RAFFLE_ADDRESS")
	if rpcURL == "" || raffle == "" {
		log.Fatal("PHAROS_RPC_URL and RAFFLE_ADDRESS environment variables are required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// 1. Create the SDK and register the chain
	f := fathom.New(fathom.WithLogger(logger), fathom.WithLogLevel("info"))
	if err := f.AddChain(ethereum.NewWithID("pharos", rpcURL)); err != nil {
		log.Fatal(err)
	}
	defer f.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	contract := event.MustHexToAddress(raffle)

	// 2. Size the array
	res, err := f.Length(ctx, "pharos", contract, "entrants")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Raffle %s has %d entrants (%d probes)\n", contract.Hex(), res.Length, res.Probes)

	// 3. Read it at one block
	entrants, err := f.Entrants(ctx, "pharos", contract, "entrants")
	if err != nil {
		log.Fatal(err)
	}

	counts := make(map[event.Address]int, len(entrants))
	for _, a := range entrants {
		counts[a]++
	}
	for i, a := range entrants {
		fmt.Printf("%4d  %s  tickets=%d\n", i, a.Hex(), counts[a])
	}
}
