package movement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/cenkalti/backoff/v4"

	"github.com/harvest-move/harvest/internal/config"
	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/types"
)

// Error definitions for chain interaction failures
var (
	ErrClientInit          = errors.New("movement client initialization failed")
	ErrInvalidAddress      = errors.New("account address is invalid")
	ErrInvalidFunction     = errors.New("entry function id is invalid")
	ErrViewCallFailed      = errors.New("view call failed")
	ErrSubmitFailed        = errors.New("transaction submission failed")
	ErrFinalityTimeout     = errors.New("transaction finality wait timed out")
	ErrTransactionNotFound = errors.New("transaction not found")
)

var chainLogger = logger.GetForComponent("movement_client")

// Client wraps the Aptos SDK client with bounded, context-aware calls against
// a Movement fullnode. One Client is constructed at startup and shared.
type Client struct {
	sdk     *aptos.Client
	network string
}

// NewClient connects to the configured Movement network.
func NewClient(network, fullnodeOverride string) (*Client, error) {
	cfg, err := NetworkConfigFor(network, fullnodeOverride)
	if err != nil {
		return nil, errors.Join(ErrClientInit, err)
	}

	sdkClient, err := aptos.NewClient(cfg)
	if err != nil {
		return nil, errors.Join(ErrClientInit, err)
	}

	chainLogger.Info().
		Str("network", cfg.Name).
		Str("fullnode", cfg.NodeUrl).
		Msg("Movement fullnode client initialized")

	return &Client{sdk: sdkClient, network: network}, nil
}

// Network returns the configured network name ("mainnet"/"testnet").
func (c *Client) Network() string {
	return c.network
}

// View executes a read-only view function. The call is bounded by the
// context: a node that hangs results in a context error, which callers treat
// as adapter failure.
func (c *Client) View(ctx context.Context, function string, typeArgs []string, args [][]byte) ([]any, error) {
	module, name, err := ParseFunction(function)
	if err != nil {
		return nil, err
	}

	argTypes, err := parseTypeTags(typeArgs)
	if err != nil {
		return nil, err
	}

	payload := &aptos.ViewPayload{
		Module:   module,
		Function: name,
		ArgTypes: argTypes,
		Args:     args,
	}

	type viewResult struct {
		values []any
		err    error
	}
	resultCh := make(chan viewResult, 1)

	go func() {
		values, viewErr := c.sdk.View(payload)
		resultCh <- viewResult{values: values, err: viewErr}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Join(ErrViewCallFailed, ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, errors.Join(ErrViewCallFailed, res.err)
		}
		return res.values, nil
	}
}

// BuildTransaction builds an unsigned raw transaction for the given sender.
func (c *Client) BuildTransaction(sender aptos.AccountAddress, payload types.TransactionPayload) (*aptos.RawTransaction, error) {
	entry, err := EntryFunctionPayload(payload)
	if err != nil {
		return nil, err
	}
	rawTxn, err := c.sdk.BuildTransaction(sender, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return rawTxn, nil
}

// BuildFeePayerTransaction builds an unsigned transaction with the fee-payer
// slot left at 0x0, so a sponsorship relayer can later attach itself as payer
// without invalidating the sender signature.
func (c *Client) BuildFeePayerTransaction(sender aptos.AccountAddress, payload types.TransactionPayload) (*aptos.RawTransactionWithData, error) {
	entry, err := EntryFunctionPayload(payload)
	if err != nil {
		return nil, err
	}
	rawTxn, err := c.sdk.BuildTransactionMultiAgent(sender, entry, aptos.FeePayer(&aptos.AccountZero))
	if err != nil {
		return nil, fmt.Errorf("failed to build fee payer transaction: %w", err)
	}
	return rawTxn, nil
}

// Submit broadcasts a signed transaction and returns its hash once the node's
// submission endpoint accepts it. This does not wait for execution.
func (c *Client) Submit(signedTxn *aptos.SignedTransaction) (string, error) {
	response, err := c.sdk.SubmitTransaction(signedTxn)
	if err != nil {
		return "", errors.Join(ErrSubmitFailed, err)
	}

	chainLogger.Debug().Str("txHash", response.Hash).Msg("Transaction accepted by submission endpoint")
	return response.Hash, nil
}

// finalityContext bounds a finality wait with the configured FINALITY_TIMEOUT
// on top of whatever deadline the caller already carries.
func finalityContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if config.FinalityTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, config.FinalityTimeout)
}

// WaitForExecution polls until the transaction's on-chain execution outcome
// is known and returns it. It does not judge success; callers decide what a
// failed execution means for them. The wait is bounded by FINALITY_TIMEOUT in
// addition to the caller's context.
func (c *Client) WaitForExecution(ctx context.Context, txHash string) (*types.ExecutionResult, error) {
	ctx, cancel := finalityContext(ctx)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0 // bounded by ctx, not by the policy

	var result *types.ExecutionResult

	operation := func() error {
		txn, err := c.sdk.TransactionByHash(txHash)
		if err != nil {
			// Not yet known to the node; keep polling.
			return errors.Join(ErrTransactionNotFound, err)
		}

		userTxn, err := txn.UserTransaction()
		if err != nil {
			// Still pending in the mempool.
			return fmt.Errorf("transaction not yet executed: %w", err)
		}

		result = &types.ExecutionResult{
			TxHash:   txHash,
			Success:  userTxn.Success,
			VMStatus: userTxn.VmStatus,
			GasUsed:  userTxn.GasUsed,
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Join(ErrFinalityTimeout, ctx.Err())
		}
		return nil, err
	}

	chainLogger.Debug().
		Str("txHash", txHash).
		Bool("success", result.Success).
		Str("vmStatus", result.VMStatus).
		Msg("Transaction execution outcome known")

	return result, nil
}

// OctaBalance returns the account's APT/MOVE balance in octas.
func (c *Client) OctaBalance(address aptos.AccountAddress) (uint64, error) {
	balance, err := c.sdk.AccountAPTBalance(address)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch account balance: %w", err)
	}
	return balance, nil
}

// ParseAddress parses a hex account address, accepting short and long forms.
func ParseAddress(address string) (aptos.AccountAddress, error) {
	var accountAddress aptos.AccountAddress
	if err := accountAddress.ParseStringRelaxed(address); err != nil {
		return aptos.AccountAddress{}, errors.Join(ErrInvalidAddress, err)
	}
	return accountAddress, nil
}

// ParseFunction splits "0xaddr::module::name" into its module id and name.
func ParseFunction(function string) (aptos.ModuleId, string, error) {
	parts := strings.Split(function, "::")
	if len(parts) != 3 {
		return aptos.ModuleId{}, "", errors.Join(ErrInvalidFunction, errors.New(function))
	}

	address, err := ParseAddress(parts[0])
	if err != nil {
		return aptos.ModuleId{}, "", errors.Join(ErrInvalidFunction, err)
	}

	return aptos.ModuleId{Address: address, Name: parts[1]}, parts[2], nil
}

// EntryFunctionPayload converts the adapter-produced payload into the SDK's
// entry function form.
func EntryFunctionPayload(payload types.TransactionPayload) (aptos.TransactionPayload, error) {
	module, name, err := ParseFunction(payload.Function)
	if err != nil {
		return aptos.TransactionPayload{}, err
	}

	argTypes, err := parseTypeTags(payload.TypeArguments)
	if err != nil {
		return aptos.TransactionPayload{}, err
	}

	return aptos.TransactionPayload{
		Payload: &aptos.EntryFunction{
			Module:   module,
			Function: name,
			ArgTypes: argTypes,
			Args:     payload.Arguments,
		},
	}, nil
}

func parseTypeTags(typeArgs []string) ([]aptos.TypeTag, error) {
	argTypes := make([]aptos.TypeTag, 0, len(typeArgs))
	for _, typeArg := range typeArgs {
		tag, err := aptos.ParseTypeTag(typeArg)
		if err != nil {
			return nil, fmt.Errorf("invalid type argument %q: %w", typeArg, err)
		}
		argTypes = append(argTypes, *tag)
	}
	return argTypes, nil
}

// EncodeAddress BCS-encodes an account address argument.
func EncodeAddress(address string) ([]byte, error) {
	accountAddress, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return bcs.Serialize(&accountAddress)
}

// EncodeString BCS-encodes a string argument (ULEB length prefix + bytes,
// identical to vector<u8> on the wire).
func EncodeString(value string) ([]byte, error) {
	return bcs.SerializeBytes([]byte(value))
}

// EncodeStringVector BCS-encodes a vector<String> argument.
func EncodeStringVector(values []string) ([]byte, error) {
	ser := &bcs.Serializer{}
	ser.Uleb128(uint32(len(values)))
	for _, value := range values {
		ser.WriteBytes([]byte(value))
	}
	return ser.ToBytes(), ser.Error()
}
