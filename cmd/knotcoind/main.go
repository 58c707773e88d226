// Copyright 2019 cruzbit developers
// Use of this source code is governed by a MIT-style license that can be found in the LICENSE file.

// Command knotcoind runs the thin external interface shell around the
// consensus core: a JSON-over-HTTPS endpoint and a websocket tip
// broadcaster. RPC and transport live entirely under cmd/, never
// imported back into the core packages.
package main

import (
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	knotcoin "github.com/Ponknot/Knotcoin"
	"github.com/buger/jsonparser"
	"github.com/gorilla/websocket"
	cli "gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "knotcoind"
	app.Usage = "Knotcoin consensus node"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "datadir", Value: "./data", Usage: "directory for chain state"},
		cli.StringFlag{Name: "listen", Value: ":8881", Usage: "address to serve the JSON endpoint on"},
		cli.StringFlag{Name: "tlscert", Value: "", Usage: "external TLS certificate path"},
		cli.StringFlag{Name: "tlskey", Value: "", Usage: "external TLS key path"},
	}
	app.Action = runDaemon
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runDaemon(c *cli.Context) error {
	dataDir := c.String("datadir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	node, err := knotcoin.NewNodeContext(dataDir)
	if err != nil {
		return err
	}
	defer node.Close()

	certManager := knotcoin.NewCertificateManager(dataDir, c.String("tlscert"), c.String("tlskey"), node.Store)
	go func() {
		for {
			wait, err := certManager.CheckCertificates()
			if err != nil {
				log.Println("certificate check:", err)
			}
			time.Sleep(wait)
		}
	}()

	hub := newTipHub()

	mux := http.NewServeMux()
	mux.HandleFunc("/submit_transaction", submitTransactionHandler(node))
	mux.HandleFunc("/submit_block", submitBlockHandler(node, hub))
	mux.HandleFunc("/get_account", getAccountHandler(node))
	mux.HandleFunc("/get_block", getBlockHandler(node))
	mux.HandleFunc("/get_headers_from", getHeadersFromHandler(node))
	mux.HandleFunc("/make_template", makeTemplateHandler(node))
	mux.HandleFunc("/estimate_reward", estimateRewardHandler(node))
	mux.HandleFunc("/subscribe_new_tip", hub.serveWS)

	server := &http.Server{
		Addr:    c.String("listen"),
		Handler: mux,
		TLSConfig: &tls.Config{
			GetCertificate: certManager.GetCertificateFunc(),
		},
	}
	log.Println("knotcoind listening on", c.String("listen"))
	return server.ListenAndServeTLS("", "")
}

func submitTransactionHandler(node *knotcoin.NodeContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		txHex, err := jsonparser.GetString(body, "tx")
		if err != nil {
			http.Error(w, "missing tx field", http.StatusBadRequest)
			return
		}
		raw, err := hex.DecodeString(txHex)
		if err != nil {
			http.Error(w, "tx field is not hex", http.StatusBadRequest)
			return
		}
		tx, err := knotcoin.ParseTransaction(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := node.Mempool.Submit(tx); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]string{"txid": tx.TxID().String()})
	}
}

func submitBlockHandler(node *knotcoin.NodeContext, hub *tipHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		blockHex, err := jsonparser.GetString(body, "block")
		if err != nil {
			http.Error(w, "missing block field", http.StatusBadRequest)
			return
		}
		raw, err := hex.DecodeString(blockHex)
		if err != nil {
			http.Error(w, "block field is not hex", http.StatusBadRequest)
			return
		}
		block, err := knotcoin.ParseBlockWire(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		applied, err := node.Processor.AcceptBlock(block, uint32(time.Now().Unix()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		hub.broadcastTip(applied.Hash.String(), applied.Height)
		writeJSON(w, applied)
	}
}

func getAccountHandler(node *knotcoin.NodeContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseAddressQuery(w, r, "address")
		if !ok {
			return
		}
		acc, err := node.Store.GetAccount(addr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, acc)
	}
}

func getBlockHandler(node *knotcoin.NodeContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hashHex := r.URL.Query().Get("hash")
		raw, err := hex.DecodeString(hashHex)
		if err != nil || len(raw) != knotcoin.HashBytes {
			http.Error(w, "bad hash", http.StatusBadRequest)
			return
		}
		var hash knotcoin.Hash
		copy(hash[:], raw)
		block, err := node.Store.GetBlock(hash)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if block == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"block": hex.EncodeToString(block.SerializeWire())})
	}
}

func getHeadersFromHandler(node *knotcoin.NodeContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tip, err := node.Store.GetTip()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"height": tip.Height, "hash": tip.Hash.String()})
	}
}

func makeTemplateHandler(node *knotcoin.NodeContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseAddressQuery(w, r, "miner")
		if !ok {
			return
		}
		params, err := node.Store.GetParams()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		txs := knotcoin.MakeTemplate(node.Mempool, addr, params.BlockSizeCeiling, knotcoin.MaxTransactionsPerBlock)
		writeJSON(w, map[string]int{"tx_count": len(txs)})
	}
}

func estimateRewardHandler(node *knotcoin.NodeContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		heightStr := r.URL.Query().Get("height")
		var height uint64
		for _, ch := range heightStr {
			if ch < '0' || ch > '9' {
				continue
			}
			height = height*10 + uint64(ch-'0')
		}
		base := knotcoin.BaseReward(height)
		writeJSON(w, map[string]uint64{"base_reward": base})
	}
}

func parseAddressQuery(w http.ResponseWriter, r *http.Request, param string) (knotcoin.Address, bool) {
	var addr knotcoin.Address
	raw, err := hex.DecodeString(r.URL.Query().Get(param))
	if err != nil || len(raw) != knotcoin.AddressBytes {
		http.Error(w, "bad "+param, http.StatusBadRequest)
		return addr, false
	}
	copy(addr[:], raw)
	return addr, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// tipHub fans out new-tip notifications to subscribed websocket clients,
// using gorilla/websocket for the long-lived push connections.
type tipHub struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]struct{}
}

func newTipHub() *tipHub {
	return &tipHub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *tipHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.clients[conn] = struct{}{}
}

func (h *tipHub) broadcastTip(hash string, height uint32) {
	msg := map[string]interface{}{"hash": hash, "height": height}
	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
