package types

// TransactionPayload is the unsigned description of a single entry-function
// call. Produced by exactly one adapter per claim, consumed by exactly one
// signer call. Arguments are already BCS-encoded so the payload carries no
// protocol-specific Go types.
type TransactionPayload struct {
	// Function is the fully qualified entry function, "0xaddr::module::name".
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments,omitempty"`
	// Arguments holds the BCS-encoded entry function arguments in call order.
	Arguments [][]byte `json:"arguments,omitempty"`
}

// SignedTransactionData is a signed-but-unsubmitted fee-payer transaction.
// Produced only by SignForSponsorship, consumed by exactly one sponsorship
// submission attempt and never reused.
type SignedTransactionData struct {
	// RawTransaction is the BCS-serialized transaction with the fee-payer
	// slot left at 0x0 so the relayer can attach itself without invalidating
	// the sender signature.
	RawTransaction []byte `json:"raw_transaction"`
	// SenderAuthenticator is the BCS-serialized sender account authenticator.
	SenderAuthenticator []byte `json:"sender_authenticator"`
	Sender              string `json:"sender"`
}

// ExecutionResult is the on-chain outcome of a submitted transaction once
// finality is known.
type ExecutionResult struct {
	TxHash   string `json:"tx_hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status,omitempty"`
	GasUsed  uint64 `json:"gas_used,omitempty"`
}
