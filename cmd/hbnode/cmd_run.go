package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synnergy-labs/hb-core/core"
	"github.com/synnergy-labs/hb-core/p2p"
)

// peerSet tracks every handshaken session this node currently holds open,
// so newly produced blocks can be broadcast to all of them.
type peerSet struct {
	mu       sync.Mutex
	sessions map[string]*p2p.Session
}

func newPeerSet() *peerSet {
	return &peerSet{sessions: make(map[string]*p2p.Session)}
}

func (p *peerSet) add(key string, s *p2p.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[key] = s
}

func (p *peerSet) remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, key)
}

func (p *peerSet) broadcast(logger *logrus.Logger, msgType uint32, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.sessions {
		if err := s.Send(msgType, payload); err != nil && logger != nil {
			logger.WithError(err).WithField("peer", key).Warn("run: broadcast send failed")
		}
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the validator node's P2P listener and block-production loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(envFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			priv, err := loadSecretKey(n.rawCfg)
			if err != nil {
				return err
			}
			if n.rawCfg.Node.ID == "" {
				return fmt.Errorf("node.id is not configured")
			}

			peers := newPeerSet()

			ln, err := net.Listen("tcp", n.rawCfg.Network.ListenAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", n.rawCfg.Network.ListenAddr, err)
			}
			defer ln.Close()
			n.logger.WithField("addr", n.rawCfg.Network.ListenAddr).Info("hbnode: listening")

			go acceptLoop(ln, n, priv, peers)
			for _, addr := range n.rawCfg.Network.BootstrapPeers {
				go dialPeer(addr, n, priv, peers)
			}

			runProductionLoop(n, priv, peers)
			return nil
		},
	}
}

func acceptLoop(ln net.Listener, n *nodeHandles, priv *btcec.PrivateKey, peers *peerSet) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			n.logger.WithError(err).Warn("run: accept failed")
			continue
		}
		go handleConn(conn, n, priv, peers)
	}
}

func dialPeer(addr string, n *nodeHandles, priv *btcec.PrivateKey, peers *peerSet) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		n.logger.WithError(err).WithField("peer", addr).Warn("run: dial bootstrap peer failed")
		return
	}
	handleConn(conn, n, priv, peers)
}

func handleConn(conn net.Conn, n *nodeHandles, priv *btcec.PrivateKey, peers *peerSet) {
	defer conn.Close()
	key := conn.RemoteAddr().String()

	peerPub, err := p2p.Handshake(conn, priv, n.cfg.NetworkID)
	if err != nil {
		n.logger.WithError(err).WithField("peer", key).Warn("run: handshake failed")
		return
	}

	session := p2p.NewSession(conn, peerPub, 50)
	peers.add(key, session)
	defer peers.remove(key)

	ctx := context.Background()
	for {
		f, err := session.Recv(ctx)
		if err != nil {
			n.logger.WithError(err).WithField("peer", key).Debug("run: session ended")
			return
		}
		switch f.MsgType {
		case p2p.MsgTx:
			handleIncomingTx(n, f.Payload)
		case p2p.MsgBlock:
			handleIncomingBlock(n, peers, f.Payload)
		case p2p.MsgQueryMempool:
			if err := session.Send(p2p.MsgMempoolReport, encodeMempoolReport(n.mempool.Top(n.mempool.Len()))); err != nil {
				n.logger.WithError(err).WithField("peer", key).Warn("run: mempool report send failed")
			}
		default:
			n.logger.WithField("msg_type", f.MsgType).Debug("run: ignoring unknown message type")
		}
	}
}

func handleIncomingTx(n *nodeHandles, payload []byte) {
	tx, err := core.DecodeTransactionFull(payload)
	if err != nil {
		n.logger.WithError(err).Warn("run: malformed tx payload")
		return
	}
	nowMs := uint64(time.Now().UnixMilli())
	if err := n.chain.SubmitTransaction(tx, nowMs); err != nil {
		n.logger.WithError(err).Debug("run: tx rejected")
		return
	}
	n.logger.WithField("txid", core.TxID(&tx).Short()).Info("run: admitted tx")
}

func handleIncomingBlock(n *nodeHandles, peers *peerSet, payload []byte) {
	b, err := core.DecodeBlockStorage(payload)
	if err != nil {
		n.logger.WithError(err).Warn("run: malformed block payload")
		return
	}
	if err := n.chain.ApplyBlock(b); err != nil {
		n.logger.WithError(err).Debug("run: block rejected")
		return
	}
	n.logger.WithField("height", b.Index).Info("run: applied peer block")
	peers.broadcast(n.logger, p2p.MsgBlock, payload)
}

// runProductionLoop mines and applies a new block every target_block_time_ms
// whenever this node is a member of the fixed validator set, broadcasting
// each applied block to every connected peer.
func runProductionLoop(n *nodeHandles, priv *btcec.PrivateKey, peers *peerSet) {
	minerAddr := core.DeriveAddress(priv.PubKey().SerializeCompressed())
	ticker := time.NewTicker(time.Duration(n.cfg.TargetBlockTimeMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if !n.authority.IsValidator(n.rawCfg.Node.ID) {
			continue
		}
		nowMs := uint64(time.Now().UnixMilli())
		b, err := n.chain.CreateBlock(minerAddr, int(n.cfg.MaxTransactionsPerBlock), nowMs)
		if err != nil {
			n.logger.WithError(err).Warn("run: create_block failed")
			continue
		}
		if err := n.authority.AuthorBlock(n.rawCfg.Node.ID, priv, b); err != nil {
			n.logger.WithError(err).Error("run: author_block failed")
			continue
		}
		if err := n.chain.ApplyBlock(b); err != nil {
			n.logger.WithError(err).Error("run: apply_block failed")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"height":   b.Index,
			"hash":     b.Hash.Short(),
			"tx_count": len(b.Transactions),
		}).Info("run: produced block")
		peers.broadcast(n.logger, p2p.MsgBlock, core.EncodeBlockStorage(b))
	}
}
