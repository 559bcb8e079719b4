package core

// transactions.go validates individual transactions against the current
// state. validate_transaction never trusts an earlier admission check: the
// chain manager revalidates every transaction again at apply_block time
// against the state as of immediately before that block.

// ValidateTransaction checks tx for structural and state-dependent validity.
// currentHeight is the chain height the transaction would be considered
// against (used for valid_until_block expiry); assemblingBlock is true only
// while the chain manager is constructing a new block (the single context
// in which an unsigned Account-kind coinbase transaction is acceptable).
func ValidateTransaction(st *State, cfg *NodeConfig, tx *Transaction, currentHeight, nowMs uint64, assemblingBlock bool) error {
	if tx.NetworkID != cfg.NetworkID {
		return ErrBadNetworkID
	}
	if tx.ValidUntil != 0 && currentHeight > tx.ValidUntil {
		return ErrExpiredTx
	}
	if tx.TimestampMs > nowMs && tx.TimestampMs-nowMs > cfg.MaxTimestampDriftMs {
		return ErrStaleTimestamp
	}
	if nowMs > tx.TimestampMs && nowMs-tx.TimestampMs > cfg.MaxTimestampDriftMs {
		return ErrStaleTimestamp
	}

	switch tx.Kind {
	case TxAccount:
		return validateAccountTx(st, tx, assemblingBlock)
	case TxUtxo:
		return validateUtxoTx(st, tx)
	case TxContract:
		if !cfg.EnableSmartContracts {
			return ErrContractsDisabled
		}
		return validateSignedSender(tx)
	default:
		return ErrBadSignature
	}
}

func validateSignedSender(tx *Transaction) error {
	if tx.From == nil {
		return ErrBadSignature
	}
	if !VerifyTransactionSignature(tx) {
		return ErrBadSignature
	}
	return nil
}

func validateAccountTx(st *State, tx *Transaction, assemblingBlock bool) error {
	if tx.From == nil {
		// Only acceptable as a miner-reward/coinbase transaction while the
		// chain manager is itself assembling the block; a peer must never
		// accept an unsigned Account tx from the mempool or from a wire
		// broadcast.
		if !assemblingBlock {
			return ErrBadSignature
		}
		return nil
	}
	if !VerifyTransactionSignature(tx) {
		return ErrBadSignature
	}
	if tx.Nonce != st.Nonce(*tx.From)+1 {
		return ErrBadNonce
	}
	if st.Balance(*tx.From) < tx.Amount+tx.Fee {
		return ErrInsufficientFunds
	}
	return nil
}

func validateUtxoTx(st *State, tx *Transaction) error {
	if tx.From != nil {
		if !VerifyTransactionSignature(tx) {
			return ErrBadSignature
		}
	}
	for _, in := range tx.Inputs {
		if !st.HasUTXO(UTXOKey{TxID: in.PrevTxID, Index: in.Index}) {
			return ErrUTXONotFound
		}
	}
	return nil
}

// NewCoinbaseTx builds the unsigned miner-reward transaction appended as the
// last entry of every assembled block.
func NewCoinbaseTx(networkID uint32, nowMs uint64, miner Address, reward uint64) Transaction {
	to := miner
	return Transaction{
		Version:     1,
		Kind:        TxAccount,
		NetworkID:   networkID,
		Nonce:       0,
		TimestampMs: nowMs,
		From:        nil,
		To:          &to,
		Amount:      reward,
		Fee:         0,
	}
}
