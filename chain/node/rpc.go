package node

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"poe-core/internal/engagement"
	"poe-core/internal/hostiface"
	"poe-core/internal/poetypes"
	"poe-core/internal/validator"
)

// Request is a JSON message-dispatch request: a method name and its
// opaque params, adapted from the teacher's JSONRPCRequest shape but
// addressed to one of the three engines rather than an Ethereum node.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     interface{}     `json:"id"`
}

// Response mirrors Request with a result or an error, never both.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
	ID     interface{} `json:"id"`
}

// Error is a dispatch failure.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RateLimiter is a simple per-client token bucket, adapted from the
// teacher's RPCServer.RateLimiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*clientBucket
	limit    int
	window   time.Duration
}

type clientBucket struct {
	count     int
	resetTime time.Time
}

func newRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{requests: make(map[string]*clientBucket), limit: limit, window: window}
}

func (r *RateLimiter) allow(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.requests[client]
	if !ok || time.Now().After(b.resetTime) {
		r.requests[client] = &clientBucket{count: 1, resetTime: time.Now().Add(r.window)}
		return true
	}
	if b.count >= r.limit {
		return false
	}
	b.count++
	return true
}

// RPCServer dispatches Execute/Sudo/Query operations against a Node's
// three engines over plain JSON-over-HTTP, adapted from the teacher's
// RPCServer (chain/node/rpc.go): same methods-map-plus-handleHTTP
// shape and rate limiter, new method set for the PoE domain instead of
// eth_*/quantum_* JSON-RPC.
type RPCServer struct {
	node        *Node
	httpServer  *http.Server
	rateLimiter *RateLimiter
	methods     map[string]func(json.RawMessage) (interface{}, error)
}

// NewRPCServer builds the dispatcher and registers every method.
func NewRPCServer(n *Node, listenAddr string) *RPCServer {
	s := &RPCServer{
		node:        n,
		rateLimiter: newRateLimiter(300, time.Minute),
		methods:     make(map[string]func(json.RawMessage) (interface{}, error)),
	}
	s.registerMethods()

	router := mux.NewRouter()
	router.HandleFunc("/rpc", s.handleHTTP).Methods(http.MethodPost)
	s.httpServer = &http.Server{Addr: listenAddr, Handler: router}
	return s
}

func (s *RPCServer) registerMethods() {
	s.methods["engagement.member"] = s.engagementMember
	s.methods["engagement.totalPoints"] = s.engagementTotalPoints
	s.methods["engagement.updateMembers"] = s.engagementUpdateMembers
	s.methods["engagement.distributeRewards"] = s.engagementDistributeRewards
	s.methods["engagement.withdrawRewards"] = s.engagementWithdrawRewards

	s.methods["stake.staked"] = s.stakeStaked
	s.methods["stake.bond"] = s.stakeBond
	s.methods["stake.beginUnbond"] = s.stakeBeginUnbond
	s.methods["stake.claim"] = s.stakeClaim
	s.methods["stake.claims"] = s.stakeClaims
	s.methods["stake.config"] = s.stakeConfig

	s.methods["validator.get"] = s.validatorGet
	s.methods["validator.listActive"] = s.validatorListActive
	s.methods["validator.epoch"] = s.validatorEpoch
	s.methods["validator.registerKey"] = s.validatorRegisterKey
	s.methods["validator.jail"] = s.validatorJail
	s.methods["validator.unjail"] = s.validatorUnjail
	s.methods["validator.doubleSign"] = s.validatorDoubleSign
}

// Start binds the HTTP listener in the background.
func (s *RPCServer) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Stop shuts the HTTP listener down.
func (s *RPCServer) Stop() {
	_ = s.httpServer.Close()
}

func (s *RPCServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.rateLimiter.allow(r.RemoteAddr) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &Error{Code: -32700, Message: "parse error"}, nil)
		return
	}

	method, ok := s.methods[req.Method]
	if !ok {
		s.writeError(w, &Error{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}, req.ID)
		return
	}

	result, err := method(req.Params)
	if err != nil {
		s.writeError(w, &Error{Code: -32000, Message: err.Error()}, req.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{Result: result, ID: req.ID})
}

func (s *RPCServer) writeError(w http.ResponseWriter, rpcErr *Error, id interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(Response{Error: rpcErr, ID: id})
}

// applyAndRespond runs resp through the node's message/event pipeline
// before returning it as the RPC result, so side effects of a
// dispatched call are applied exactly once, in the same path as the
// end-block scheduler's own responses.
func (s *RPCServer) applyAndRespond(resp *hostiface.Response, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if resp != nil {
		s.node.applyResponse(resp)
	}
	return resp, nil
}

// --- engagement ---

type addrParams struct {
	Addr poetypes.Address `json:"addr"`
}

func (s *RPCServer) engagementMember(raw json.RawMessage) (interface{}, error) {
	var p addrParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return s.node.Engagement.Member(p.Addr), nil
}

func (s *RPCServer) engagementTotalPoints(_ json.RawMessage) (interface{}, error) {
	return s.node.Engagement.TotalPoints(), nil
}

func (s *RPCServer) engagementUpdateMembers(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller poetypes.Address          `json:"caller"`
		Add    []engagement.MemberPoints `json:"add"`
		Remove []poetypes.Address        `json:"remove"`
		Height uint64                    `json:"height"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Engagement.UpdateMembers(p.Caller, p.Add, p.Remove, p.Height)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) engagementDistributeRewards(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller poetypes.Address  `json:"caller"`
		Sender *poetypes.Address `json:"sender,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Engagement.DistributeRewards(p.Caller, p.Sender)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) engagementWithdrawRewards(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller   poetypes.Address  `json:"caller"`
		Owner    *poetypes.Address `json:"owner,omitempty"`
		Receiver *poetypes.Address `json:"receiver,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Engagement.WithdrawRewards(p.Caller, p.Owner, p.Receiver)
	return s.applyAndRespond(resp, err)
}

// --- stake ---

func (s *RPCServer) stakeStaked(raw json.RawMessage) (interface{}, error) {
	var p addrParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return s.node.Stake.Staked(p.Addr), nil
}

func (s *RPCServer) stakeBond(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Sender        poetypes.Address `json:"sender"`
		Funds         string           `json:"funds"`
		VestingTokens string           `json:"vesting_tokens"`
		Height        uint64           `json:"height"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	funds, err := parseDecimalString(p.Funds)
	if err != nil {
		return nil, fmt.Errorf("funds: %w", err)
	}
	vesting, err := parseDecimalString(p.VestingTokens)
	if err != nil {
		return nil, fmt.Errorf("vesting_tokens: %w", err)
	}
	resp, err := s.node.Stake.Bond(p.Sender, funds, vesting, p.Height)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) stakeBeginUnbond(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Sender poetypes.Address `json:"sender"`
		Amount string           `json:"amount"`
		Denom  string           `json:"denom"`
		Now    int64            `json:"now"`
		Height uint64           `json:"height"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	amount, err := parseDecimalString(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	resp, err := s.node.Stake.Unbond(p.Sender, amount, p.Denom, p.Now, p.Height)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) stakeClaim(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller poetypes.Address `json:"caller"`
		Now    int64            `json:"now"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Stake.Claim(p.Caller, p.Now)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) stakeClaims(raw json.RawMessage) (interface{}, error) {
	var p addrParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return s.node.Stake.ClaimsFor(p.Addr, nil, 100), nil
}

func (s *RPCServer) stakeConfig(_ json.RawMessage) (interface{}, error) {
	return s.node.Stake.ConfigQuery(), nil
}

// --- validator ---

func (s *RPCServer) validatorGet(raw json.RawMessage) (interface{}, error) {
	var p addrParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	view, ok := s.node.Validator.Validator(p.Addr)
	if !ok {
		return nil, fmt.Errorf("no such operator: %s", p.Addr.Hex())
	}
	return view, nil
}

func (s *RPCServer) validatorListActive(_ json.RawMessage) (interface{}, error) {
	return s.node.Validator.ListActiveValidators(), nil
}

func (s *RPCServer) validatorEpoch(_ json.RawMessage) (interface{}, error) {
	return s.node.Validator.EpochQuery(time.Now().Unix()), nil
}

func (s *RPCServer) validatorRegisterKey(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller   poetypes.Address            `json:"caller"`
		Pubkey   []byte                      `json:"pubkey"`
		Metadata validator.ValidatorMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Validator.RegisterValidatorKey(p.Caller, ed25519.PublicKey(p.Pubkey), p.Metadata)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) validatorJail(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller   poetypes.Address `json:"caller"`
		Operator poetypes.Address `json:"operator"`
		Seconds  *int64           `json:"seconds,omitempty"`
		Forever  bool             `json:"forever,omitempty"`
		Now      int64            `json:"now"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Validator.Jail(p.Caller, p.Operator, validator.JailDuration{Seconds: p.Seconds, Forever: p.Forever}, p.Now)
	return s.applyAndRespond(resp, err)
}

func (s *RPCServer) validatorUnjail(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Caller   poetypes.Address  `json:"caller"`
		Operator *poetypes.Address `json:"operator,omitempty"`
		Now      int64             `json:"now"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Validator.Unjail(p.Caller, p.Operator, p.Now)
	return s.applyAndRespond(resp, err)
}

// validatorDoubleSign is the host's evidence-submission endpoint: it
// forwards the configured slash ratio into the engagement and stake
// engines via the SlashFunc closures wired at node construction.
func (s *RPCServer) validatorDoubleSign(raw json.RawMessage) (interface{}, error) {
	var p struct {
		Operator poetypes.Address `json:"operator"`
		Height   uint64           `json:"height"`
		Now      int64            `json:"now"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	resp, err := s.node.Validator.DoubleSign(p.Operator, p.Height, p.Now, s.node.slashTargets())
	return s.applyAndRespond(resp, err)
}

func parseDecimalString(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
