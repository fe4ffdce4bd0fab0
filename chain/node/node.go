// Package node wires the three PoE engines, the bank ledger, the
// metrics server and the event stream into a single running process,
// adapted from the teacher's Node/Config/NewNode/Start/Stop shape
// (chain/node/node.go): same ctx/cancel/wg lifecycle and ticker-driven
// background loop, driving end-block maintenance instead of mining.
package node

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"poe-core/chain/config"
	"poe-core/internal/engagement"
	"poe-core/internal/eventstream"
	"poe-core/internal/hostiface"
	"poe-core/internal/ledger"
	"poe-core/internal/metrics"
	"poe-core/internal/poetypes"
	"poe-core/internal/stake"
	"poe-core/internal/storage"
	"poe-core/internal/storage/leveldbstore"
	"poe-core/internal/validator"
)

// Config represents node configuration.
type Config struct {
	DataDir        string
	GenesisPath    string
	ListenAddr     string // ws event-stream bind address
	RPCAddr        string // JSON dispatch bind address
	MetricsAddr    string
	EpochRewardAmt string // decimal string, may be empty for no epoch reward
	EndBlockPeriod time.Duration
	AllowedOrigins []string
}

// DefaultConfig returns default node configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        "./data",
		ListenAddr:     "0.0.0.0:26657",
		RPCAddr:        "0.0.0.0:26658",
		MetricsAddr:    "0.0.0.0:9090",
		EndBlockPeriod: 2 * time.Second,
	}
}

// Node is a running PoE chain process: the three engines, the bank
// ledger they emit Msgs against, and the metrics/event-stream servers
// exposing their state.
type Node struct {
	cfg *Config

	store      storage.KVStore
	Bank       *ledger.Ledger
	Engagement *engagement.Engine
	Stake      *stake.Engine
	Validator  *validator.Engine

	metrics  *metrics.Server
	events   *eventstream.Hub
	rpc      *RPCServer
	wsServer *http.Server

	height uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	running bool
}

// NewNode constructs a node: opens the on-disk store, loads (or
// defaults) the genesis document, restores persisted engine state if
// present, and otherwise instantiates fresh engines from genesis.
func NewNode(cfg *Config) (*Node, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	store, err := leveldbstore.Open(cfg.DataDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open data store: %w", err)
	}

	genesis := config.DefaultGenesisConfig()
	if cfg.GenesisPath != "" {
		genesis, err = config.LoadGenesisConfig(cfg.GenesisPath)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to load genesis: %w", err)
		}
	} else if err := genesis.Validate(); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid default genesis: %w", err)
	}

	n := &Node{
		cfg:    cfg,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := n.initEngines(genesis); err != nil {
		cancel()
		return nil, err
	}

	n.metrics = metrics.NewServer(metrics.Config{ListenAddr: cfg.MetricsAddr})
	n.events = eventstream.New(cfg.AllowedOrigins)
	n.rpc = NewRPCServer(n, cfg.RPCAddr)

	return n, nil
}

// slashTargets returns the SlashFunc closures the validator engine
// forwards double-sign and admin slashes through, avoiding an import
// cycle between the validator package and its sibling engines.
func (n *Node) slashTargets() []validator.SlashFunc {
	return []validator.SlashFunc{n.Engagement.Slash, n.Stake.Slash}
}

// initEngines either restores all three engines from the data store,
// or instantiates them fresh from genesis and seeds the bank ledger's
// initial balances.
func (n *Node) initEngines(genesis *config.GenesisConfig) error {
	n.Bank = ledger.New(n.store)

	members := make([]engagement.MemberPoints, 0, len(genesis.Engagement.InitialMembers))
	for _, m := range genesis.Engagement.InitialMembers {
		members = append(members, engagement.MemberPoints{Addr: m.Addr, Points: m.Points})
	}
	n.Engagement = engagement.New(engagement.Config{
		Denom:           genesis.Engagement.Denom,
		Admin:           genesis.Engagement.Admin,
		Self:            selfAddress(genesis.ChainID, "engagement"),
		InitialMembers:  members,
		HalflifeSeconds: genesis.Engagement.HalflifeSeconds,
	}, n.Bank, 0)

	stakeCfg, err := genesis.StakeConfig()
	if err != nil {
		return fmt.Errorf("stake config: %w", err)
	}
	n.Stake = stake.New(stake.InitParams{
		Config: stakeCfg,
		Admin:  genesis.Stake.Admin,
	})

	n.Validator = validator.New(validator.InitParams{
		Config:     genesis.ValidatorConfig(),
		Admin:      genesis.Validator.Admin,
		Self:       selfAddress(genesis.ChainID, "validator"),
		Membership: n.Stake,
	})

	// The validator engine's own address is the only party allowed to
	// forward slashes into the sibling engines.
	if err := n.Engagement.Slashers.Add(n.Validator.Self); err != nil {
		return fmt.Errorf("register validator as engagement slasher: %w", err)
	}
	if err := n.Stake.Slashers.Add(n.Validator.Self); err != nil {
		return fmt.Errorf("register validator as stake slasher: %w", err)
	}

	restored, err := n.tryRestore()
	if err != nil {
		return err
	}
	if restored {
		return nil
	}

	allocations, err := genesis.BankAllocations()
	if err != nil {
		return fmt.Errorf("bank allocations: %w", err)
	}
	for addr, amount := range allocations {
		if err := n.Bank.SetBalance(addr, genesis.Engagement.Denom, amount); err != nil {
			return fmt.Errorf("seed balance for %s: %w", addr.Hex(), err)
		}
	}
	return nil
}

// tryRestore loads prior engine state from the data store, returning
// true if state was found and restored. Used to resume a node across
// restarts instead of re-running genesis.
func (n *Node) tryRestore() (bool, error) {
	_, ok, err := n.store.Get([]byte(storage.KeyEpoch))
	if err != nil {
		return false, fmt.Errorf("check restore marker: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := n.Engagement.Restore(n.store, n.height); err != nil {
		return false, fmt.Errorf("restore engagement: %w", err)
	}
	if err := n.Stake.Restore(n.store, n.height); err != nil {
		return false, fmt.Errorf("restore stake: %w", err)
	}
	if err := n.Validator.Restore(n.store); err != nil {
		return false, fmt.Errorf("restore validator: %w", err)
	}
	return true, nil
}

func selfAddress(chainID, component string) poetypes.Address {
	var a poetypes.Address
	seed := chainID + "/" + component
	copy(a[:], seed)
	return a
}

// Start brings up the metrics server, the event-stream websocket
// server, and the end-block scheduler loop.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("node already running")
	}

	log.Printf("starting poe node, data dir %s", n.cfg.DataDir)

	if err := n.metrics.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if err := n.rpc.Start(); err != nil {
		return fmt.Errorf("failed to start rpc server: %w", err)
	}

	router := mux.NewRouter()
	n.events.Mount(router, "/ws")
	n.wsServer = &http.Server{Addr: n.cfg.ListenAddr, Handler: router}
	n.wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer n.wg.Done()
		if err := n.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start event stream server: %w", err)
	case <-time.After(50 * time.Millisecond):
	}

	n.startEndBlockLoop()

	n.running = true
	log.Printf("poe node started")
	return nil
}

// Stop cancels the end-block loop, waits for it to drain, persists
// engine state, and shuts down the metrics and event-stream servers.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	log.Printf("stopping poe node...")
	n.cancel()
	n.wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	n.rpc.Stop()
	if n.wsServer != nil {
		_ = n.wsServer.Shutdown(shutdownCtx)
	}
	if err := n.metrics.Stop(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}

	if err := n.persistAll(); err != nil {
		log.Printf("persist on shutdown: %v", err)
	}
	n.events.Close()
	if err := n.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}

	n.running = false
	log.Printf("poe node stopped")
	return nil
}

func (n *Node) persistAll() error {
	if err := n.Engagement.Persist(n.store); err != nil {
		return fmt.Errorf("persist engagement: %w", err)
	}
	if err := n.Stake.Persist(n.store); err != nil {
		return fmt.Errorf("persist stake: %w", err)
	}
	if err := n.Validator.Persist(n.store); err != nil {
		return fmt.Errorf("persist validator: %w", err)
	}
	return nil
}

// startEndBlockLoop runs the periodic maintenance tick: auto-release
// matured unbonding claims, recompute the active validator set on
// epoch boundaries and distribute epoch rewards, and jail validators
// that have gone quiet since the last epoch. Grounded on the teacher's
// startMultiValidatorConsensus/produceConsensusBlock ticker loop, with
// block production replaced by these three maintenance operations.
func (n *Node) startEndBlockLoop() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.periodOrDefault())
		defer ticker.Stop()

		for {
			select {
			case <-n.ctx.Done():
				return
			case <-ticker.C:
				n.runEndBlock()
			}
		}
	}()
}

func (n *Node) periodOrDefault() time.Duration {
	if n.cfg.EndBlockPeriod <= 0 {
		return 2 * time.Second
	}
	return n.cfg.EndBlockPeriod
}

func (n *Node) runEndBlock() {
	now := time.Now().Unix()
	n.height++
	height := n.height

	if resp := n.Stake.AutoRelease(now); resp != nil {
		n.applyResponse(resp)
	}

	var epochReward *big.Int
	if n.cfg.EpochRewardAmt != "" {
		if v, ok := new(big.Int).SetString(n.cfg.EpochRewardAmt, 10); ok {
			epochReward = v
		}
	}
	resp, err := n.Validator.EndBlock(now, height, epochReward, nil)
	if err != nil {
		log.Printf("end block: %v", err)
	} else if resp != nil {
		n.applyResponse(resp)
	}

	if resp := n.Validator.CheckOfflineValidators(height, now); resp != nil {
		n.applyResponse(resp)
	}

	n.updateMetrics()
}

// applyResponse dispatches an engine response's host messages against
// the bank ledger and republishes its events on the event stream, in
// emission order, mirroring the host contract described for
// hostiface.Response.
func (n *Node) applyResponse(resp *hostiface.Response) {
	for _, msg := range resp.Messages {
		if err := n.applyMsg(msg); err != nil {
			log.Printf("apply message %s: %v", msg.Kind, err)
		}
	}
	for _, ev := range resp.Events {
		n.events.Publish(ev)
	}
}

func (n *Node) applyMsg(msg hostiface.Msg) error {
	switch msg.Kind {
	case hostiface.MsgBankSend, hostiface.MsgDistribute:
		return n.Bank.Credit(msg.To, msg.Denom, msg.Amount)
	case hostiface.MsgBankBurn:
		return n.Bank.Burn(msg.To, msg.Denom, msg.Amount)
	case hostiface.MsgDelegate, hostiface.MsgUndelegate, hostiface.MsgHook:
		// Delegation/undelegation and hook dispatch are modeled as
		// outbound notifications the host forwards to other
		// contracts; this single-process node has no further
		// contract to forward them to.
		return nil
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}

func (n *Node) updateMetrics() {
	n.metrics.EngagementTotalPoints.Set(float64(n.Engagement.TotalPoints()))
	n.metrics.StakeTotalLiquid.Set(bigIntToFloat(n.sumStake()))
	n.metrics.ValidatorActiveCount.Set(float64(len(n.Validator.ListActiveValidators())))
	n.metrics.ValidatorJailedCount.Set(float64(len(n.Validator.ListJailedValidators(nil, 100))))
	n.metrics.EpochNumber.Set(float64(n.Validator.EpochQuery(time.Now().Unix()).CurrentEpoch))
}

// sumStake approximates total bonded stake from the first page of
// members; a full accounting would need a dedicated running total on
// the engine, which spec.md does not define as a query.
func (n *Node) sumStake() *big.Int {
	total := new(big.Int)
	for _, m := range n.Stake.ListMembers(nil, 100) {
		info := n.Stake.Staked(m.Addr)
		total.Add(total, info.Stake)
	}
	return total
}

func bigIntToFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}
