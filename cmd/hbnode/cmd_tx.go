package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/hb-core/core"
	"github.com/synnergy-labs/hb-core/p2p"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx", Short: "transaction operations"}
	cmd.AddCommand(txSubmitCmd())
	return cmd
}

func txSubmitCmd() *cobra.Command {
	var (
		peerAddr   string
		keyHex     string
		toStr      string
		amount     uint64
		fee        uint64
		nonce      uint64
		validUntil uint64
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "sign and gossip an account-kind transfer to a running node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeCfg, rawCfg, err := loadNodeConfig(envFlag)
			if err != nil {
				return err
			}
			if peerAddr == "" {
				peerAddr = rawCfg.Network.ListenAddr
			}

			keyBytes, err := hex.DecodeString(keyHex)
			if err != nil {
				return fmt.Errorf("decode --key: %w", err)
			}
			senderPriv, err := core.KeyFromBytes(keyBytes)
			if err != nil {
				return err
			}

			to, err := core.ParseAddress(toStr)
			if err != nil {
				return fmt.Errorf("parse --to: %w", err)
			}

			tx := core.Transaction{
				Version:     1,
				Kind:        core.TxAccount,
				NetworkID:   nodeCfg.NetworkID,
				Nonce:       nonce,
				TimestampMs: uint64(time.Now().UnixMilli()),
				ValidUntil:  validUntil,
				To:          &to,
				Amount:      amount,
				Fee:         fee,
			}
			if err := core.SignTransaction(senderPriv, &tx); err != nil {
				return fmt.Errorf("sign transaction: %w", err)
			}

			conn, err := net.DialTimeout("tcp", peerAddr, 10*time.Second)
			if err != nil {
				return fmt.Errorf("dial %s: %w", peerAddr, err)
			}
			defer conn.Close()

			handshakeKey, err := core.GenerateKey()
			if err != nil {
				return err
			}
			if _, err := p2p.Handshake(conn, handshakeKey, nodeCfg.NetworkID); err != nil {
				return fmt.Errorf("handshake with %s: %w", peerAddr, err)
			}

			session := p2p.NewSession(conn, nil, 10)
			if err := session.Send(p2p.MsgTx, core.EncodeTransactionFull(&tx)); err != nil {
				return fmt.Errorf("send transaction: %w", err)
			}

			fmt.Printf("submitted tx %s from %s to %s amount %d fee %d\n",
				core.TxID(&tx).Hex(), tx.From.Hex(), to.Hex(), amount, fee)
			return nil
		},
	}

	cmd.Flags().StringVar(&peerAddr, "peer", "", "node address to submit to (default: this config's listen_addr)")
	cmd.Flags().StringVar(&keyHex, "key", "", "hex-encoded secp256k1 private key of the sender (required)")
	cmd.Flags().StringVar(&toStr, "to", "", "recipient address (required)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to transfer")
	cmd.Flags().Uint64Var(&fee, "fee", 0, "transaction fee")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "sender account nonce")
	cmd.Flags().Uint64Var(&validUntil, "valid-until", 0, "block height after which the transaction expires (0 = no expiry)")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("to")

	return cmd
}
