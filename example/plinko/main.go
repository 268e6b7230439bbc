// Example plinko: place a bet and wait for the entropy callback to settle it.
//
// Usage:
//
//	BASE_WS_URL=wss://... PLINKO_ADDRESS=0x... PRIVATE_KEY=0x... go run ./example/plinko
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom"
	"github.com/hedeqiang/fathom/chain/base"
	"github.com/hedeqiang/fathom/signer"
	"github.com/hedeqiang/fathom/tracker"
)

const plinkoABI = `[{"type":"function","name":"play","stateMutability":"payable",
  "inputs":[{"name":"rows","type":"uint8"},{"name":"userRandom","type":"bytes32"}],"outputs":[]}]`

// settlement mirrors BetSettled's payload.
type settlement struct {
	Seq    uint64
	Bin    *big.Int
	Payout *big.Int
}

func main() {
	rpcURL := os.Getenv("BASE_WS_URL")
	game := os.Getenv("PLINKO_ADDRESS")
	key := os.Getenv("PRIVATE_KEY")
	if rpcURL == "" || game == "" || key == "" {
		log.Fatal("BASE_WS_URL, PLINKO_ADDRESS and PRIVATE_KEY environment variables are required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// 1. Create the SDK; settle within 10s x 30 polls
	f := fathom.New(
		fathom.WithLogger(logger),
		fathom.WithTrackerTimeout(10*time.Second, 30),
	)
	if err := f.AddChain(base.New(rpcURL)); err != nil {
		log.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 2. Tracker and wallet
	contract := common.HexToAddress(game)
	t, err := f.NewTracker("base", contract, tracker.PlinkoSpec())
	if err != nil {
		log.Fatal(err)
	}
	wallet, err := f.Wallet("base", key)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Encode play(rows, userRandom)
	parsed, err := gethabi.JSON(strings.NewReader(plinkoABI))
	if err != nil {
		log.Fatal(err)
	}
	userRandom := crypto.Keccak256Hash([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	data, err := parsed.Pack("play", uint8(12), [32]byte(userRandom))
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Submit and wait
	req, err := t.Track(ctx, wallet, signer.Call{
		To:    contract,
		Data:  data,
		Value: big.NewInt(1e15),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Bet submitted: tx=%s\n", req.TxHash.Hex())

	rec, err := req.Wait(ctx)
	switch {
	case errors.Is(err, tracker.ErrTimeout):
		fmt.Println("Bet was not settled in time; check the contract later.")
		return
	case err != nil:
		log.Fatal(err)
	}

	var s settlement
	if err := rec.Bind(&s); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Bet %d settled: bin=%s payout=%s wei (block %d)\n",
		s.Seq, s.Bin, s.Payout, rec.Raw.BlockNumber)
}
