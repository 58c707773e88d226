// Copyright 2019 cruzbit developers
// Use of this source code is governed by a MIT-style license that can be found in the LICENSE file.

// Command knotcoin-cli is a colored REPL exposing the node's read
// surface: height, tip, get_block, get_account, get_params, get_tally.
// The consensus packages never import it.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	knotcoin "github.com/Ponknot/Knotcoin"
	prompt "github.com/c-bata/go-prompt"
	"github.com/logrusorgru/aurora"
)

var node *knotcoin.NodeContext

func main() {
	dataDir := "./data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}
	var err error
	node, err = knotcoin.NewNodeContext(dataDir)
	if err != nil {
		fmt.Println(aurora.Red(err.Error()))
		os.Exit(1)
	}
	defer node.Close()

	fmt.Println(aurora.Cyan("knotcoin-cli — type 'help' for commands"))
	p := prompt.New(execute, completer, prompt.OptionPrefix("knotcoin> "))
	p.Run()
}

func completer(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "height", Description: "print the current tip height"},
		{Text: "tip", Description: "print the current tip hash"},
		{Text: "get_block", Description: "get_block <hash hex>"},
		{Text: "get_account", Description: "get_account <address hex>"},
		{Text: "get_params", Description: "print the current tunable parameters"},
		{Text: "get_tally", Description: "get_tally <target hash hex>"},
		{Text: "exit", Description: "quit"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "exit", "quit":
		node.Close()
		os.Exit(0)
	case "height":
		tip, err := node.Store.GetTip()
		printResult(tip.Height, err)
	case "tip":
		tip, err := node.Store.GetTip()
		if err != nil {
			printResult(nil, err)
			return
		}
		printResult(tip.Hash.String(), nil)
	case "get_block":
		if len(fields) < 2 {
			fmt.Println(aurora.Yellow("usage: get_block <hash hex>"))
			return
		}
		runGetBlock(fields[1])
	case "get_account":
		if len(fields) < 2 {
			fmt.Println(aurora.Yellow("usage: get_account <address hex>"))
			return
		}
		runGetAccount(fields[1])
	case "get_params":
		params, err := node.Store.GetParams()
		printResult(params, err)
	case "get_tally":
		if len(fields) < 2 {
			fmt.Println(aurora.Yellow("usage: get_tally <target hash hex>"))
			return
		}
		runGetTally(fields[1])
	case "help":
		fmt.Println("commands: height, tip, get_block, get_account, get_params, get_tally, exit")
	default:
		fmt.Println(aurora.Yellow("unknown command: " + fields[0]))
	}
}

func runGetBlock(hashHex string) {
	raw, err := hex.DecodeString(hashHex)
	if err != nil || len(raw) != knotcoin.HashBytes {
		fmt.Println(aurora.Red("bad hash"))
		return
	}
	var hash knotcoin.Hash
	copy(hash[:], raw)
	block, err := node.Store.GetBlock(hash)
	if err != nil {
		printResult(nil, err)
		return
	}
	if block == nil {
		fmt.Println(aurora.Yellow("not found"))
		return
	}
	fmt.Printf("height=%d txs=%d\n", block.Header.Height, len(block.Txs))
}

func runGetAccount(addrHex string) {
	raw, err := hex.DecodeString(addrHex)
	if err != nil || len(raw) != knotcoin.AddressBytes {
		fmt.Println(aurora.Red("bad address"))
		return
	}
	var addr knotcoin.Address
	copy(addr[:], raw)
	acc, err := node.Store.GetAccount(addr)
	printResult(acc, err)
}

func runGetTally(targetHex string) {
	raw, err := hex.DecodeString(targetHex)
	if err != nil || len(raw) != knotcoin.HashBytes {
		fmt.Println(aurora.Red("bad target hash"))
		return
	}
	var target knotcoin.Hash
	copy(target[:], raw)
	proposal, err := node.Store.GetProposal(target)
	if err != nil {
		printResult(nil, err)
		return
	}
	params, err := node.Store.GetParams()
	if err != nil {
		printResult(nil, err)
		return
	}
	passed := proposal.WeightBps >= uint64(params.GovernanceThresholdBps)
	fmt.Printf("weight_bps=%d threshold_bps=%d passed=%v activation_height=%d voters=%d\n",
		proposal.WeightBps, params.GovernanceThresholdBps, passed, proposal.ActivationHeight, proposal.Voters.Size())
}

func printResult(v interface{}, err error) {
	if err != nil {
		fmt.Println(aurora.Red(err.Error()))
		return
	}
	fmt.Printf("%+v\n", v)
}
