// Package room hosts the per-room session server: websocket connection
// lifecycle, subscription dispatch, the periodic refresh pipeline, and
// the HTTP query fallback.
//
// Each room owns its metadata view, price cache, merged-balance map and
// subscription registry. Rooms share nothing with each other.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/contractid"
	"github.com/r0zar/charisma-sub000/internal/domain"
	"github.com/r0zar/charisma-sub000/internal/metadata"
	"github.com/r0zar/charisma-sub000/internal/observability"
	"github.com/r0zar/charisma-sub000/internal/prices"
	"github.com/r0zar/charisma-sub000/internal/reconcile"
	"github.com/r0zar/charisma-sub000/internal/stacks"
	"github.com/r0zar/charisma-sub000/internal/storage"
	"github.com/r0zar/charisma-sub000/internal/subscription"
)

// ChainClient is the upstream needed for balance refreshes: account
// balances over HTTP plus read-only subnet get-balance calls.
// *stacks.Client satisfies it.
type ChainClient interface {
	AccountBalances(ctx context.Context, principal string) (*stacks.AccountBalancesResponse, error)
	GetSubnetBalance(ctx context.Context, contractID, userID string) (uint64, error)
}

// NativeTokenID is the sentinel contract id for the chain's native asset.
const NativeTokenID = metadata.NativeContractID

// Config holds per-room settings fixed at construction.
type Config struct {
	ID              string
	Mode            SchedulingMode
	RefreshInterval time.Duration
	InitTimeout     time.Duration
	IsLocalDev      bool
}

// Deps are the collaborators a room needs. Alarms is required only for
// ModeDurable; History is optional.
type Deps struct {
	Chain    ChainClient
	Metadata *metadata.Store
	Alarms   storage.AlarmStore
	History  storage.HistorySink
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

type initState int

const (
	initUninitialized initState = iota
	initInitializing
	initReady
	initFailed
)

// Room is one independent session server instance.
type Room struct {
	cfg     Config
	chain   ChainClient
	meta    *metadata.Store
	history storage.HistorySink
	logger  *zap.Logger
	metrics *observability.Metrics

	prices    *prices.Cache
	engine    *reconcile.Engine
	subs      *subscription.Registry
	scheduler Scheduler
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*conn
	balances map[domain.BalanceKey]*domain.MergedBalance
	knownIDs map[string]struct{}
	state    initState
	initCh   chan struct{}
	connSeq  uint64

	refreshMu sync.Mutex // serializes refresh cycles
}

// New constructs a room and restores any persisted alarm in durable mode.
func New(cfg Config, deps Deps) (*Room, error) {
	if cfg.ID == "" {
		return nil, errors.New("room id is required")
	}
	if deps.Chain == nil || deps.Metadata == nil {
		return nil, errors.New("chain client and metadata store are required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 60 * time.Second
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("room", cfg.ID))

	r := &Room{
		cfg:     cfg,
		chain:   deps.Chain,
		meta:    deps.Metadata,
		history: deps.History,
		logger:  logger,
		metrics: deps.Metrics,
		prices:  prices.NewCache(logger),
		engine:  reconcile.NewEngine(logger),
		subs:    subscription.NewRegistry(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:    make(map[string]*conn),
		balances: make(map[domain.BalanceKey]*domain.MergedBalance),
		knownIDs: make(map[string]struct{}),
	}

	switch cfg.Mode {
	case ModeDurable:
		if deps.Alarms == nil {
			return nil, errors.New("durable scheduling requires an alarm store")
		}
		ds := NewDurableScheduler(cfg.ID, deps.Alarms, logger, r.onScheduledFire)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		restored, err := ds.Restore(ctx)
		cancel()
		if err != nil {
			logger.Warn("failed to restore alarm", zap.Error(err))
		}
		if !restored {
			ds.ScheduleNext(cfg.RefreshInterval)
		}
		r.scheduler = ds
	case ModeInterval, "":
		r.cfg.Mode = ModeInterval
		r.scheduler = NewIntervalScheduler(r.onScheduledFire)
	default:
		return nil, fmt.Errorf("unknown scheduling mode %q", cfg.Mode)
	}

	r.ensureInit()
	return r, nil
}

// Close stops scheduling and disconnects every client.
func (r *Room) Close() {
	r.scheduler.Stop()
	r.mu.Lock()
	conns := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

// ensureInit starts the async metadata load unless one is already
// running or finished. A failed load is reset so the next trigger
// retries instead of staying failed forever.
func (r *Room) ensureInit() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case initReady, initInitializing:
		return r.initCh
	}
	r.state = initInitializing
	r.initCh = make(chan struct{})
	ch := r.initCh

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.InitTimeout)
		defer cancel()
		err := r.meta.Refresh(ctx)

		r.mu.Lock()
		if err != nil {
			r.state = initFailed
			r.logger.Warn("initialization failed, will retry on next trigger", zap.Error(err))
		} else {
			r.state = initReady
			for _, rec := range r.meta.Snapshot() {
				r.knownIDs[rec.ContractID] = struct{}{}
			}
			r.logger.Info("room initialized", zap.Int("tokens", r.meta.Count()))
		}
		r.mu.Unlock()
		close(ch)
	}()
	return ch
}

// waitUntilReady blocks until initialization completes or ctx expires.
func (r *Room) waitUntilReady(ctx context.Context) error {
	ch := r.ensureInit()
	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	ready := r.state == initReady
	r.mu.Unlock()
	if !ready {
		return errors.New("room initialization failed")
	}
	return nil
}

func (r *Room) onScheduledFire() {
	r.runRefreshCycle("scheduled", nil)
}

// runRefreshCycle drives one full refresh: metadata, watched-user
// balances, prices, then diff broadcast. Rescheduling happens in a defer
// so one failed fetch can never silently stop the schedule.
func (r *Room) runRefreshCycle(trigger string, scopeUsers []string) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := time.Now()
	status := "ok"
	defer func() {
		if r.metrics != nil {
			r.metrics.RefreshCycles.WithLabelValues(r.cfg.ID, trigger, status).Inc()
			r.metrics.RefreshDuration.WithLabelValues(r.cfg.ID).Observe(time.Since(start).Seconds())
		}
		if trigger == "scheduled" && r.shouldReschedule() {
			r.scheduler.ScheduleNext(r.cfg.RefreshInterval)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RefreshInterval)
	defer cancel()

	if err := r.waitUntilReady(ctx); err != nil {
		status = "init_failed"
		r.logger.Warn("refresh skipped, room not ready", zap.String("trigger", trigger), zap.Error(err))
		return
	}

	newTokens := r.refreshMetadata(ctx)
	staged := r.prices.Update(time.Now().UnixMilli(), r.meta.Prices(), "aggregator")
	touched := r.refreshBalances(ctx, scopeUsers)

	r.broadcastNewTokens(newTokens)
	r.broadcastBalances(touched)
	r.broadcastPrices(staged)
	r.prices.Commit(staged)

	r.appendHistory(ctx, staged, touched)
	r.updateStateMetrics()

	r.logger.Debug("refresh cycle complete",
		zap.String("trigger", trigger),
		zap.Int("new_tokens", len(newTokens)),
		zap.Int("price_updates", len(staged)),
		zap.Int("balance_updates", len(touched)),
		zap.Duration("elapsed", time.Since(start)))
}

func (r *Room) shouldReschedule() bool {
	if r.cfg.Mode == ModeDurable {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) > 0
}

// refreshMetadata re-pulls the token list and returns records not seen
// before, for incremental TOKEN_METADATA broadcast.
func (r *Room) refreshMetadata(ctx context.Context) []*domain.TokenRecord {
	if err := r.meta.Refresh(ctx); err != nil {
		if r.metrics != nil {
			r.metrics.FetchErrors.WithLabelValues(r.cfg.ID, "metadata").Inc()
		}
		r.logger.Warn("metadata refresh failed, keeping previous snapshot", zap.Error(err))
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var fresh []*domain.TokenRecord
	for _, rec := range r.meta.Snapshot() {
		if _, ok := r.knownIDs[rec.ContractID]; !ok {
			r.knownIDs[rec.ContractID] = struct{}{}
			fresh = append(fresh, rec)
		}
	}
	return fresh
}

// refreshBalances fans out per-user fetches for the watched set (or the
// supplied scope), reconciles the observations and returns the touched
// merged balances. One user's failure never affects the others.
func (r *Room) refreshBalances(ctx context.Context, scopeUsers []string) []*domain.MergedBalance {
	users := scopeUsers
	if len(users) == 0 {
		users = r.subs.WatchedUsers()
	}
	if len(users) == 0 {
		return nil
	}
	subnetTokens := r.meta.ValidSubnetTokens()

	var (
		obsMu        sync.Mutex
		observations []domain.RawBalanceObservation
		failed       int
	)
	var wg sync.WaitGroup
	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			obs, err := r.fetchUserBalances(ctx, userID, subnetTokens)
			obsMu.Lock()
			defer obsMu.Unlock()
			if err != nil {
				failed++
				return
			}
			observations = append(observations, obs...)
		}(userID)
	}
	wg.Wait()

	if failed > 0 {
		r.logger.Warn("balance fetch partially failed",
			zap.Int("failed", failed), zap.Int("succeeded", len(users)-failed))
	}
	if len(observations) == 0 {
		return nil
	}

	nowMs := time.Now().UnixMilli()
	r.mu.Lock()
	touched := r.engine.Reconcile(nowMs, observations, r.meta, r.balances)
	out := make([]*domain.MergedBalance, len(touched))
	for i, b := range touched {
		out[i] = b.Clone()
	}
	r.mu.Unlock()
	return out
}

// fetchUserBalances combines the account-balance API result with the
// subnet read-only calls into one observation list for a user.
func (r *Room) fetchUserBalances(ctx context.Context, userID string, subnetTokens []*domain.TokenRecord) ([]domain.RawBalanceObservation, error) {
	resp, err := r.chain.AccountBalances(ctx, userID)
	if err != nil {
		if r.metrics != nil {
			r.metrics.FetchErrors.WithLabelValues(r.cfg.ID, "chain-api").Inc()
		}
		r.logger.Warn("account balance fetch failed",
			zap.String("user", userID), zap.Error(err))
		return nil, err
	}

	nowMs := time.Now().UnixMilli()
	var obs []domain.RawBalanceObservation
	if bal, err := strconv.ParseUint(resp.Stx.Balance, 10, 64); err == nil {
		obs = append(obs, domain.RawBalanceObservation{
			UserID:        userID,
			ContractID:    NativeTokenID,
			Balance:       bal,
			TotalSent:     resp.Stx.TotalSent,
			TotalReceived: resp.Stx.TotalReceived,
			TimestampMs:   nowMs,
			Source:        domain.SourceChainAPI,
		})
	}
	for assetID, entry := range resp.FungibleTokens {
		bal, err := strconv.ParseUint(entry.Balance, 10, 64)
		if err != nil {
			r.logger.Warn("unparseable balance, skipping",
				zap.String("user", userID), zap.String("asset", assetID))
			continue
		}
		obs = append(obs, domain.RawBalanceObservation{
			UserID:        userID,
			ContractID:    assetID,
			Balance:       bal,
			TotalSent:     entry.TotalSent,
			TotalReceived: entry.TotalReceived,
			TimestampMs:   nowMs,
			Source:        domain.SourceChainAPI,
		})
	}

	obs = append(obs, reconcile.FetchSubnetBalances(ctx, r.chain, userID, subnetTokens, r.logger)...)
	return obs, nil
}

func (r *Room) appendHistory(ctx context.Context, staged []domain.PriceEntry, touched []*domain.MergedBalance) {
	if r.history == nil {
		return
	}
	if len(staged) > 0 {
		if err := r.history.AppendPrices(ctx, r.cfg.ID, staged); err != nil {
			r.logger.Warn("price history append failed", zap.Error(err))
		}
	}
	if len(touched) > 0 {
		if err := r.history.AppendBalances(ctx, r.cfg.ID, touched); err != nil {
			r.logger.Warn("balance history append failed", zap.Error(err))
		}
	}
}

func (r *Room) updateStateMetrics() {
	if r.metrics == nil {
		return
	}
	r.mu.Lock()
	balances := len(r.balances)
	r.mu.Unlock()
	r.metrics.MetadataTokens.WithLabelValues(r.cfg.ID).Set(float64(r.meta.Count()))
	r.metrics.CachedPrices.WithLabelValues(r.cfg.ID).Set(float64(r.prices.Count()))
	r.metrics.MergedBalances.WithLabelValues(r.cfg.ID).Set(float64(balances))
	r.metrics.WatchedUsers.WithLabelValues(r.cfg.ID).Set(float64(len(r.subs.WatchedUsers())))
	r.metrics.WatchedContracts.WithLabelValues(r.cfg.ID).Set(float64(len(r.subs.WatchedContracts())))
}

// --- broadcast ---

func (r *Room) snapshotConns() []*conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Room) send(c *conn, msgType string, v any) {
	if !c.sendJSON(v) {
		r.logger.Warn("dropping slow client", zap.String("client", c.id))
		c.ws.Close()
		return
	}
	if r.metrics != nil {
		r.metrics.MessagesOut.WithLabelValues(r.cfg.ID, msgType).Inc()
	}
}

func (r *Room) sendError(c *conn, message string) {
	r.send(c, MsgError, ErrorMessage{Type: MsgError, Message: message})
	if r.metrics != nil {
		r.metrics.ProtocolErrors.WithLabelValues(r.cfg.ID).Inc()
	}
}

func (r *Room) broadcastNewTokens(records []*domain.TokenRecord) {
	if len(records) == 0 {
		return
	}
	now := time.Now().UnixMilli()
	for _, c := range r.snapshotConns() {
		for _, rec := range records {
			if !r.subs.WantsMetadata(c.id, rec.ContractID) {
				continue
			}
			r.send(c, MsgTokenMetadata, TokenMetadataMessage{
				Type:         MsgTokenMetadata,
				TokenPayload: tokenPayload(rec),
				Timestamp:    now,
			})
		}
	}
}

// broadcastBalances fans the touched balances out: each client gets one
// batch of everything it wants, then the individual updates.
func (r *Room) broadcastBalances(touched []*domain.MergedBalance) {
	if len(touched) == 0 {
		return
	}
	now := time.Now().UnixMilli()
	for _, c := range r.snapshotConns() {
		var mine []*domain.MergedBalance
		for _, b := range touched {
			if r.subs.WantsBalance(c.id, b.UserID, b.ContractID) {
				mine = append(mine, b)
			}
		}
		if len(mine) == 0 {
			continue
		}
		payloads := make([]BalancePayload, len(mine))
		for i, b := range mine {
			payloads[i] = balancePayload(b)
		}
		r.send(c, MsgBalanceBatch, BalanceBatchMessage{Type: MsgBalanceBatch, Balances: payloads, Timestamp: now})
		for _, p := range payloads {
			r.send(c, MsgBalanceUpdate, BalanceUpdateMessage{Type: MsgBalanceUpdate, BalancePayload: p, Timestamp: now})
		}
	}
	if r.metrics != nil {
		r.metrics.BalanceUpdatesEmitted.WithLabelValues(r.cfg.ID).Add(float64(len(touched)))
	}
}

func (r *Room) broadcastPrices(staged []domain.PriceEntry) {
	if len(staged) == 0 {
		return
	}
	now := time.Now().UnixMilli()
	for _, c := range r.snapshotConns() {
		var mine []domain.PriceEntry
		for _, e := range staged {
			if r.subs.WantsPrice(c.id, e.ContractID) {
				mine = append(mine, e)
			}
		}
		if len(mine) == 0 {
			continue
		}
		batch := make(map[string]float64, len(mine))
		for _, e := range mine {
			batch[e.ContractID] = e.Price
		}
		r.send(c, MsgPriceBatch, PriceBatchMessage{Type: MsgPriceBatch, Prices: batch, Timestamp: now})
		for _, e := range mine {
			r.send(c, MsgPriceUpdate, PriceUpdateMessage{
				Type: MsgPriceUpdate, ContractID: e.ContractID, Price: e.Price, Timestamp: e.TimestampMs,
			})
		}
	}
	if r.metrics != nil {
		r.metrics.PriceUpdatesEmitted.WithLabelValues(r.cfg.ID).Add(float64(len(staged)))
	}
}

// --- connection lifecycle ---

func (r *Room) attach(ws *websocket.Conn) {
	r.mu.Lock()
	r.connSeq++
	id := fmt.Sprintf("%s-%d", r.cfg.ID, r.connSeq)
	c := newConn(id, r, ws)
	first := len(r.conns) == 0
	r.conns[id] = c
	r.mu.Unlock()

	r.subs.Register(id, time.Now().UnixMilli())
	if r.metrics != nil {
		r.metrics.ConnectionsActive.WithLabelValues(r.cfg.ID).Inc()
	}
	r.logger.Info("client connected", zap.String("client", id))

	go c.writePump()

	// Connect-time snapshot goes out before any inbound message is
	// processed, so the read pump starts only after it is queued.
	r.send(c, MsgServerInfo, r.serverInfo())
	r.sendTokenSnapshot(c, time.Now().UnixMilli())
	go c.readPump()

	r.ensureInit()
	if first && r.cfg.Mode == ModeInterval {
		r.scheduler.ScheduleNext(r.cfg.RefreshInterval)
	}
}

func (r *Room) detach(c *conn) {
	r.mu.Lock()
	if _, ok := r.conns[c.id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c.id)
	last := len(r.conns) == 0
	r.mu.Unlock()

	c.close()
	r.subs.Drop(c.id)
	r.pruneUnwatched()
	if r.metrics != nil {
		r.metrics.ConnectionsActive.WithLabelValues(r.cfg.ID).Dec()
	}
	r.logger.Info("client disconnected", zap.String("client", c.id))

	if last && r.cfg.Mode == ModeInterval {
		r.scheduler.Stop()
	}
}

func (r *Room) serverInfo() ServerInfoMessage {
	r.mu.Lock()
	balances := len(r.balances)
	r.mu.Unlock()
	return ServerInfoMessage{
		Type:           MsgServerInfo,
		IsLocalDev:     r.cfg.IsLocalDev,
		MetadataLoaded: r.meta.Loaded(),
		MetadataCount:  r.meta.Count(),
		PriceCount:     r.prices.Count(),
		BalanceCount:   balances,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// --- message dispatch ---

func (r *Room) handleMessage(c *conn, data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		r.sendError(c, err.Error())
		return
	}
	if r.metrics != nil {
		r.metrics.MessagesIn.WithLabelValues(r.cfg.ID, msg.Type).Inc()
	}

	switch msg.Type {
	case MsgSubscribe:
		r.handleSubscribe(c, msg)
	case MsgUnsubscribe:
		r.handleUnsubscribe(c, msg)
	case MsgPing:
		r.send(c, MsgPong, PongMessage{Type: MsgPong, Timestamp: msg.Timestamp})
	case MsgManualUpdate, MsgRefresh:
		scope := make([]string, 0, len(msg.UserIDs))
		for _, id := range msg.UserIDs {
			if !contractid.IsValidPrincipal(id) {
				r.sendError(c, fmt.Sprintf("Invalid user ID format: %s", id))
				continue
			}
			scope = append(scope, id)
		}
		// A scoped request with no valid ids left has nothing to do.
		if len(msg.UserIDs) > 0 && len(scope) == 0 {
			return
		}
		go r.runRefreshCycle("manual", scope)
	}
}

func (r *Room) handleSubscribe(c *conn, msg *InboundMessage) {
	res := r.subs.Subscribe(c.id, msg.UserIDs, msg.ContractIDs, msg.IncludePrices, time.Now().UnixMilli())
	for _, e := range res.Errors {
		r.sendError(c, e)
	}

	now := time.Now().UnixMilli()
	r.sendTokenSnapshot(c, now)
	if res.SubscribeToAll || msg.IncludePrices {
		r.sendPriceSnapshot(c, now)
	}
	for _, userID := range res.AddedUserIDs {
		r.sendUserBalances(c, userID, now)
	}

	// New ids not yet covered by cached data get their own fetch instead
	// of waiting for the next scheduled cycle.
	if len(res.NewUserIDs) > 0 || len(res.NewContractIDs) > 0 {
		go r.runRefreshCycle("subscribe", res.NewUserIDs)
	}
}

func (r *Room) sendTokenSnapshot(c *conn, nowMs int64) {
	var payloads []TokenPayload
	for _, rec := range r.meta.Snapshot() {
		if r.subs.WantsMetadata(c.id, rec.ContractID) {
			payloads = append(payloads, tokenPayload(rec))
		}
	}
	if len(payloads) == 0 {
		return
	}
	r.send(c, MsgTokenBatch, TokenBatchMessage{Type: MsgTokenBatch, Tokens: payloads, Timestamp: nowMs})
}

func (r *Room) sendPriceSnapshot(c *conn, nowMs int64) {
	snap := r.prices.Snapshot()
	batch := make(map[string]float64)
	for id, e := range snap {
		if r.subs.WantsPrice(c.id, id) {
			batch[id] = e.Price
		}
	}
	if len(batch) == 0 {
		return
	}
	r.send(c, MsgPriceBatch, PriceBatchMessage{Type: MsgPriceBatch, Prices: batch, Timestamp: nowMs})
}

// sendUserBalances sends a user's cached merged balances, zero-filled
// for every known mainnet token without an entry yet, plus a portfolio
// combining balances with the token records they reference.
func (r *Room) sendUserBalances(c *conn, userID string, nowMs int64) {
	mainnet := r.meta.MainnetTokens()

	r.mu.Lock()
	payloads := make([]BalancePayload, 0, len(mainnet))
	for _, rec := range mainnet {
		key := domain.BalanceKey{UserID: userID, ContractID: rec.ContractID}
		if b, ok := r.balances[key]; ok {
			payloads = append(payloads, balancePayload(b))
			continue
		}
		payloads = append(payloads, BalancePayload{
			UserID:      userID,
			ContractID:  rec.ContractID,
			LastUpdated: nowMs,
		})
	}
	r.mu.Unlock()

	r.send(c, MsgBalanceBatch, BalanceBatchMessage{
		Type: MsgBalanceBatch, UserID: userID, Balances: payloads, Timestamp: nowMs,
	})

	tokens := make([]TokenPayload, len(mainnet))
	for i, rec := range mainnet {
		tokens[i] = tokenPayload(rec)
	}
	r.send(c, MsgUserPortfolio, UserPortfolioMessage{
		Type: MsgUserPortfolio, UserID: userID, Tokens: tokens, Balances: payloads, Timestamp: nowMs,
	})
}

func (r *Room) handleUnsubscribe(c *conn, msg *InboundMessage) {
	r.subs.Unsubscribe(c.id, msg.UserIDs, msg.ContractIDs, time.Now().UnixMilli())
	r.pruneUnwatched()
}

// pruneUnwatched drops merged balances for users no subscription
// references anymore. A subscribe-to-all connection references every
// user, so nothing is dropped while one remains.
func (r *Room) pruneUnwatched() {
	if r.subs.HasAllSubscriber() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make(map[string]struct{})
	for key := range r.balances {
		users[key.UserID] = struct{}{}
	}
	for u := range users {
		if !r.subs.IsUserWatched(u) {
			reconcile.DropUser(r.balances, u)
		}
	}
}

// --- HTTP ---

// ServeHTTP handles the room endpoint: websocket upgrades, GET snapshot
// queries and POST refresh triggers.
func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if websocket.IsWebSocketUpgrade(req) {
		ws, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		r.attach(ws)
		return
	}

	switch req.Method {
	case http.MethodGet:
		r.handleQuery(w, req)
	case http.MethodPost:
		go r.runRefreshCycle("http", nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "triggered",
			"timestamp": time.Now().UnixMilli(),
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Room) handleQuery(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), r.cfg.InitTimeout)
	defer cancel()
	if err := r.waitUntilReady(ctx); err != nil {
		http.Error(w, "room not ready", http.StatusServiceUnavailable)
		return
	}

	now := time.Now().UnixMilli()
	q := req.URL.Query()

	if users := q.Get("users"); users != "" {
		out := make(map[string][]BalancePayload)
		r.mu.Lock()
		for _, userID := range strings.Split(users, ",") {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				continue
			}
			entries := []BalancePayload{}
			for key, b := range r.balances {
				if key.UserID == userID {
					entries = append(entries, balancePayload(b))
				}
			}
			out[userID] = entries
		}
		r.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"balances": out, "serverTime": now})
		return
	}

	if tokens := q.Get("tokens"); tokens != "" {
		priceOut := make(map[string]float64)
		var metaOut []TokenPayload
		for _, id := range strings.Split(tokens, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if rec, ok := r.meta.Resolve(id); ok {
				metaOut = append(metaOut, tokenPayload(rec))
			}
			if e, ok := r.prices.Get(id); ok {
				priceOut[id] = e.Price
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metadata": metaOut, "prices": priceOut, "serverTime": now,
		})
		return
	}

	writeJSON(w, http.StatusOK, r.serverInfo())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
