package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/hb-core/core"
	"github.com/synnergy-labs/hb-core/p2p"
)

// encodeMempoolReport packs a list of transactions behind a u32 count, each
// prefixed by its full-encoding length. This is a management-surface wire
// format local to this command, never part of consensus.
func encodeMempoolReport(txs []core.Transaction) []byte {
	var out []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(txs)))
	out = append(out, countBuf[:]...)
	for i := range txs {
		enc := core.EncodeTransactionFull(&txs[i])
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		out = append(out, lenBuf[:]...)
		out = append(out, enc...)
	}
	return out
}

func decodeMempoolReport(raw []byte) ([]core.Transaction, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("mempool report: truncated count")
	}
	count := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	out := make([]core.Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("mempool report: truncated entry %d length", i)
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			return nil, fmt.Errorf("mempool report: truncated entry %d payload", i)
		}
		tx, err := core.DecodeTransactionFull(raw[:n])
		if err != nil {
			return nil, fmt.Errorf("mempool report: entry %d: %w", i, err)
		}
		out = append(out, tx)
		raw = raw[n:]
	}
	return out, nil
}

func mempoolCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mempool", Short: "mempool queries"}
	cmd.AddCommand(mempoolListCmd())
	return cmd
}

func mempoolListCmd() *cobra.Command {
	var peerAddr string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list transactions currently pending in a running node's mempool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeCfg, rawCfg, err := loadNodeConfig(envFlag)
			if err != nil {
				return err
			}
			if peerAddr == "" {
				peerAddr = rawCfg.Network.ListenAddr
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
			if err := session.Send(p2p.MsgQueryMempool, nil); err != nil {
				return fmt.Errorf("send query: %w", err)
			}
			f, err := session.Recv(context.Background())
			if err != nil {
				return fmt.Errorf("receive report: %w", err)
			}
			if f.MsgType != p2p.MsgMempoolReport {
				return fmt.Errorf("unexpected response msg_type %d", f.MsgType)
			}
			txs, err := decodeMempoolReport(f.Payload)
			if err != nil {
				return err
			}

			fmt.Printf("%d pending transactions\n", len(txs))
			for i := range txs {
				tx := &txs[i]
				from := "coinbase"
				if tx.From != nil {
					from = tx.From.Hex()
				}
				fmt.Printf("  %s  kind=%s from=%s fee=%d amount=%d\n", core.TxID(tx).Short(), tx.Kind, from, tx.Fee, tx.Amount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&peerAddr, "peer", "", "node address to query (default: this config's listen_addr)")
	return cmd
}
