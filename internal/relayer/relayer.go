// Package relayer implements Relayer (spec §4.8): for each accepted intent,
// reads the destination nonce, normalizes the amount, obtains an EIP-712
// signature, submits the destination transaction, and tracks it through the
// pending -> confirmed/failed state machine.
package relayer

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
	"github.com/pro123908/pepu-bridge-server/internal/contracts"
	"github.com/pro123908/pepu-bridge-server/internal/dedup"
	"github.com/pro123908/pepu-bridge-server/internal/model"
	"github.com/pro123908/pepu-bridge-server/internal/relayerr"
	"github.com/pro123908/pepu-bridge-server/internal/signer"
	"github.com/pro123908/pepu-bridge-server/internal/txstore"
)

// submitGasLimit is fixed per spec §4.8/§6: every executeBuy/withdraw call
// is submitted with gasLimit = 500000.
const submitGasLimit = 500000

// metricsRecorder is the minimal surface internal/metrics.Metrics exposes to
// this package, named locally so relayer doesn't need to import the
// concrete metrics type.
type metricsRecorder interface {
	RecordRelayOutcome(flow, status string)
	SetDedupIndexSize(size int)
}

// Relayer wires the Signer and both chains' ChainClients to TxStore and the
// DedupIndex. One instance serves both the Buy and Sell flows, since both
// read/write across the same pair of chains, just in opposite directions.
type Relayer struct {
	l1Client   chainclient.ChainClient
	l2Client   chainclient.ChainClient
	l1Bridge   common.Address
	l2Bridge   common.Address
	bridgeABI  abi.ABI
	erc20ABI   abi.ABI
	signer     *signer.Signer
	store      txstore.TxStore
	dedupIndex *dedup.Index
	metrics    metricsRecorder
	log        *zap.SugaredLogger
}

// Config carries everything New needs to wire a Relayer.
type Config struct {
	L1Client   chainclient.ChainClient
	L2Client   chainclient.ChainClient
	L1Bridge   common.Address
	L2Bridge   common.Address
	Store      txstore.TxStore
	DedupIndex *dedup.Index
	Signer     *signer.Signer
	Metrics    metricsRecorder
	Log        *zap.SugaredLogger
}

// New constructs a Relayer from cfg, parsing the bridge and ERC-20 ABIs once.
func New(cfg Config) (*Relayer, error) {
	bridgeABI, err := contracts.BridgeABI()
	if err != nil {
		return nil, relayerr.NewConfigError("parse bridge abi", err)
	}
	erc20ABI, err := contracts.ERC20ABI()
	if err != nil {
		return nil, relayerr.NewConfigError("parse erc20 abi", err)
	}

	return &Relayer{
		l1Client:   cfg.L1Client,
		l2Client:   cfg.L2Client,
		l1Bridge:   cfg.L1Bridge,
		l2Bridge:   cfg.L2Bridge,
		bridgeABI:  bridgeABI,
		erc20ABI:   erc20ABI,
		signer:     cfg.Signer,
		store:      cfg.Store,
		dedupIndex: cfg.DedupIndex,
		metrics:    cfg.Metrics,
		log:        cfg.Log,
	}, nil
}

// RelayBuy implements the Buy flow of spec §4.8: L1 AssetsBuy -> L2
// executeBuy. Matches the ingest.Dispatcher signature.
func (r *Relayer) RelayBuy(ctx context.Context, eventHash string, event chainclient.Event) {
	user, ok := addrArg(event.Args, "user")
	if !ok {
		r.log.Errorw("buy event missing user arg, abandoning", "eventHash", eventHash)
		return
	}
	assetIn, ok := addrArg(event.Args, "assetIn")
	if !ok {
		r.log.Errorw("buy event missing assetIn arg, abandoning", "eventHash", eventHash)
		return
	}
	amountIn, ok := bigArg(event.Args, "amountIn")
	if !ok {
		r.log.Errorw("buy event missing amountIn arg, abandoning", "eventHash", eventHash)
		return
	}
	l2TargetToken, ok := addrArg(event.Args, "l2TargetToken")
	if !ok {
		r.log.Errorw("buy event missing l2TargetToken arg, abandoning", "eventHash", eventHash)
		return
	}
	deadline, ok := bigArg(event.Args, "deadline")
	if !ok {
		r.log.Errorw("buy event missing deadline arg, abandoning", "eventHash", eventHash)
		return
	}

	// Step 1: nonce = destContract.usedNonces(user) + 1.
	nonce, err := r.readNonce(ctx, r.l2Client, r.l2Bridge, user)
	if err != nil {
		r.log.Errorw("failed to read usedNonces on L2, abandoning pass; backfiller will retry", "eventHash", eventHash, "err", err)
		return
	}

	// Step 2-3: decimals on source chain, lossy normalization to 18 decimals.
	decimals, err := r.readDecimals(ctx, r.l1Client, assetIn)
	if err != nil {
		r.log.Errorw("failed to read decimals on L1, abandoning pass; backfiller will retry", "eventHash", eventHash, "err", err)
		return
	}
	normalizedAmount := normalizeAmountLossy(amountIn, decimals)
	humanAmount := humanReadableAmount(amountIn, decimals)

	// Step 4: EIP-712 Buy signature; assetIn field is the zero address per
	// the documented (preserved) contract expectation, spec §4.8/§9.
	domainSeparator, err := r.readDomainSeparator(ctx, r.l2Client, r.l2Bridge)
	if err != nil {
		r.log.Errorw("failed to read L2 DOMAIN_SEPARATOR, abandoning pass; backfiller will retry", "eventHash", eventHash, "err", err)
		return
	}
	sig, err := r.signer.SignBuy(domainSeparator, signer.BuyIntent{
		User:     user,
		L2Token:  l2TargetToken,
		AssetIn:  common.Address{},
		Amount:   normalizedAmount,
		Nonce:    nonce,
		Deadline: deadline,
	})
	if err != nil {
		r.log.Errorw("buy signature mismatch, abandoning intent", "eventHash", eventHash, "err", err)
		return
	}

	// Step 5: submit executeBuy with a fixed gas limit.
	sentTx, err := r.l2Client.SendTx(ctx, r.l2Bridge, r.bridgeABI, contracts.MethodExecuteBuy,
		chainclient.SendOpts{GasLimit: submitGasLimit},
		user, l2TargetToken, normalizedAmount, big.NewInt(0), nonce, deadline, sig)
	if err != nil {
		if relayerr.IsSoftWarning(err) {
			r.metrics.RecordRelayOutcome("buy", "duplicate")
			r.log.Warnw("executeBuy already known, leaving to the owning attempt", "eventHash", eventHash, "err", err)
			return
		}
		r.metrics.RecordRelayOutcome("buy", "error")
		r.log.Errorw("executeBuy submission failed, no record created", "eventHash", eventHash, "err", err)
		return
	}

	// Step 6-7: record pending, add relayHash to dedup.
	record := &model.RelayRecord{
		ID:          uuid.NewString(),
		Chain:       model.ChainL2,
		Kind:        model.KindBuy,
		User:        user.Hex(),
		Amount:      humanAmount,
		SourceToken: assetIn.Hex(),
		DestToken:   l2TargetToken.Hex(),
		EventHash:   eventHash,
		RelayHash:   sentTx.Hash(),
		Status:      model.StatusPending,
		Timestamp:   time.Now().UnixMilli(),
	}
	if _, err := r.store.UpsertByID(ctx, record); err != nil {
		r.log.Errorw("failed to persist pending buy record", "eventHash", eventHash, "relayHash", record.RelayHash, "err", err)
	}
	r.dedupIndex.ContainsOrAdd(record.RelayHash)
	r.metrics.SetDedupIndexSize(r.dedupIndex.Size())

	r.awaitAndFinalize(ctx, "buy", record.RelayHash, sentTx)
}

// RelaySell implements the Sell flow of spec §4.8: L2 ASSETS_SOLD -> L1
// withdraw. Matches the ingest.Dispatcher signature.
func (r *Relayer) RelaySell(ctx context.Context, eventHash string, event chainclient.Event) {
	user, ok := addrArg(event.Args, "user")
	if !ok {
		r.log.Errorw("sell event missing user arg, abandoning", "eventHash", eventHash)
		return
	}
	targetL1Asset, ok := addrArg(event.Args, "targetL1Asset")
	if !ok {
		r.log.Errorw("sell event missing targetL1Asset arg, abandoning", "eventHash", eventHash)
		return
	}
	tokenToSell, ok := addrArg(event.Args, "tokenToSell")
	if !ok {
		r.log.Errorw("sell event missing tokenToSell arg, abandoning", "eventHash", eventHash)
		return
	}
	deadline, ok := bigArg(event.Args, "deadline")
	if !ok {
		r.log.Errorw("sell event missing deadline arg, abandoning", "eventHash", eventHash)
		return
	}

	nonce, err := r.readNonce(ctx, r.l1Client, r.l1Bridge, user)
	if err != nil {
		r.log.Errorw("failed to read usedNonces on L1, abandoning pass; backfiller will retry", "eventHash", eventHash, "err", err)
		return
	}

	lpShare, err := r.readUserLpShare(ctx, user, targetL1Asset)
	if err != nil {
		r.log.Errorw("failed to read getUserLpShare on L1, abandoning pass; backfiller will retry", "eventHash", eventHash, "err", err)
		return
	}

	domainSeparator, err := r.readDomainSeparator(ctx, r.l1Client, r.l1Bridge)
	if err != nil {
		r.log.Errorw("failed to read L1 DOMAIN_SEPARATOR, abandoning pass; backfiller will retry", "eventHash", eventHash, "err", err)
		return
	}
	sig, err := r.signer.SignSell(domainSeparator, signer.SellIntent{
		User:            user,
		AssetToWithdraw: targetL1Asset,
		Nonce:           nonce,
		Deadline:        deadline,
	})
	if err != nil {
		r.log.Errorw("sell signature mismatch, abandoning intent", "eventHash", eventHash, "err", err)
		return
	}

	sentTx, err := r.l1Client.SendTx(ctx, r.l1Bridge, r.bridgeABI, contracts.MethodWithdraw,
		chainclient.SendOpts{GasLimit: submitGasLimit},
		user, targetL1Asset, lpShare, nonce, deadline, sig)
	if err != nil {
		if relayerr.IsSoftWarning(err) {
			r.metrics.RecordRelayOutcome("sell", "duplicate")
			r.log.Warnw("withdraw already known, leaving to the owning attempt", "eventHash", eventHash, "err", err)
			return
		}
		r.metrics.RecordRelayOutcome("sell", "error")
		r.log.Errorw("withdraw submission failed, no record created", "eventHash", eventHash, "err", err)
		return
	}

	record := &model.RelayRecord{
		ID:          uuid.NewString(),
		Chain:       model.ChainL1,
		Kind:        model.KindSell,
		User:        user.Hex(),
		Amount:      lpShare.String(),
		SourceToken: tokenToSell.Hex(),
		DestToken:   targetL1Asset.Hex(),
		EventHash:   eventHash,
		RelayHash:   sentTx.Hash(),
		Status:      model.StatusPending,
		Timestamp:   time.Now().UnixMilli(),
	}
	if _, err := r.store.UpsertByID(ctx, record); err != nil {
		r.log.Errorw("failed to persist pending sell record", "eventHash", eventHash, "relayHash", record.RelayHash, "err", err)
	}
	r.dedupIndex.ContainsOrAdd(record.RelayHash)
	r.metrics.SetDedupIndexSize(r.dedupIndex.Size())

	r.awaitAndFinalize(ctx, "sell", record.RelayHash, sentTx)
}

// awaitAndFinalize waits for the submitted transaction and flips the
// record's status exactly once (spec §4.8 step 8); terminal statuses are
// absorbing, enforced by TxStore.UpdateStatusByHash.
func (r *Relayer) awaitAndFinalize(ctx context.Context, flow, relayHash string, sentTx chainclient.SentTx) {
	receipt, err := sentTx.Wait(ctx)
	if err != nil {
		r.log.Warnw("wait for receipt failed, record remains pending", "flow", flow, "relayHash", relayHash, "err", err)
		return
	}

	status := model.StatusConfirmed
	if receipt.Reverted() {
		status = model.StatusFailed
	}
	r.metrics.RecordRelayOutcome(flow, strings.ToLower(string(status)))
	if _, err := r.store.UpdateStatusByHash(ctx, relayHash, status); err != nil {
		r.log.Errorw("failed to update record status after receipt", "flow", flow, "relayHash", relayHash, "status", status, "err", err)
	}
}

func (r *Relayer) readNonce(ctx context.Context, client chainclient.ChainClient, bridge, user common.Address) (*big.Int, error) {
	values, err := client.CallRead(ctx, bridge, r.bridgeABI, contracts.MethodUsedNonces, user)
	if err != nil {
		return nil, err
	}
	used, ok := values[0].(*big.Int)
	if !ok {
		return nil, relayerr.NewChainError("usedNonces returned unexpected type", nil)
	}
	return new(big.Int).Add(used, big.NewInt(1)), nil
}

func (r *Relayer) readDecimals(ctx context.Context, client chainclient.ChainClient, token common.Address) (uint8, error) {
	values, err := client.CallRead(ctx, token, r.erc20ABI, contracts.MethodDecimals)
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, relayerr.NewChainError("decimals returned unexpected type", nil)
	}
	return decimals, nil
}

func (r *Relayer) readUserLpShare(ctx context.Context, user, asset common.Address) (*big.Int, error) {
	values, err := r.l1Client.CallRead(ctx, r.l1Bridge, r.bridgeABI, contracts.MethodUserLpShare, user, asset)
	if err != nil {
		return nil, err
	}
	share, ok := values[0].(*big.Int)
	if !ok {
		return nil, relayerr.NewChainError("getUserLpShare returned unexpected type", nil)
	}
	return share, nil
}

func (r *Relayer) readDomainSeparator(ctx context.Context, client chainclient.ChainClient, bridge common.Address) ([32]byte, error) {
	values, err := client.CallRead(ctx, bridge, r.bridgeABI, contracts.MethodDomainSeparator)
	if err != nil {
		return [32]byte{}, err
	}
	separator, ok := values[0].([32]byte)
	if !ok {
		return [32]byte{}, relayerr.NewChainError("DOMAIN_SEPARATOR returned unexpected type", nil)
	}
	return separator, nil
}

// normalizeAmountLossy reproduces the source's double-precision
// divide-then-rescale behavior (spec §9 design note): amountIn / 10^decimals
// in float64, then re-encoded to 18-decimal fixed point. This is lossy for
// large values by design; it is preserved here for bit-compatibility with
// deployed contracts' expectations rather than replaced with exact
// big-integer scaling.
func normalizeAmountLossy(amountIn *big.Int, decimals uint8) *big.Int {
	amountFloat, _ := new(big.Float).SetInt(amountIn).Float64()
	human := new(big.Float).SetFloat64(amountFloat / math.Pow10(int(decimals)))

	scaled := new(big.Float).Mul(human, new(big.Float).SetFloat64(math.Pow10(18)))
	result, _ := scaled.Int(nil)
	return result
}

// humanReadableAmount renders amountIn/10^decimals as a decimal string for
// RelayRecord.Amount (spec §3: "human-readable, post-decimal-normalization").
func humanReadableAmount(amountIn *big.Int, decimals uint8) string {
	amountFloat, _ := new(big.Float).SetInt(amountIn).Float64()
	human := amountFloat / math.Pow10(int(decimals))
	return strconv.FormatFloat(human, 'f', -1, 64)
}

func addrArg(args map[string]interface{}, key string) (common.Address, bool) {
	v, ok := args[key]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

func bigArg(args map[string]interface{}, key string) (*big.Int, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	n, ok := v.(*big.Int)
	return n, ok
}
