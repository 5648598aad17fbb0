package main

import (
	"fmt"
	"github.com/pterm/pterm"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/node_api"
	"github.com/ztrue/tracerr"
	"strconv"
	"time"
)

const shortHashLength = 16

func shortHash(hash string) string {
	if len(hash) <= shortHashLength {
		return hash
	}
	return hash[:shortHashLength] + "…"
}

func formatTimestamp(timestamp uint64) string {
	return time.Unix(int64(timestamp), 0).UTC().Format(time.RFC3339)
}

func renderHealth(health *node_api.HealthResponse) string {
	return pterm.Success.Sprintfln("Node %s is %s", health.NodeId, health.Status)
}

func renderPrescription(response *node_api.PrescriptionResponse) (string, error) {
	table, err := pterm.DefaultTable.WithData(pterm.TableData{
		{"Block", strconv.FormatUint(response.BlockIndex, 10)},
		{"Block hash", response.BlockHash},
		{"Public key", response.PublicKey},
	}).Srender()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return pterm.Success.Sprintfln("Prescription recorded") + table + "\n", nil
}

func renderBlocks(blocks []ledger.Block) (string, error) {
	data := pterm.TableData{{"Index", "Timestamp", "Transactions", "Previous hash", "Hash"}}
	for _, block := range blocks {
		hash, err := block.Hash()
		if err != nil {
			return "", tracerr.Wrap(err)
		}
		data = append(data, []string{
			strconv.FormatUint(block.Index, 10),
			formatTimestamp(block.Timestamp),
			strconv.Itoa(len(block.Transactions)),
			shortHash(block.PreviousHash),
			shortHash(hash),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return pterm.Info.Sprintfln("%d blocks", len(blocks)) + table + "\n", nil
}

func renderBlock(block *ledger.Block) (string, error) {
	hash, err := block.Hash()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	header, err := pterm.DefaultTable.WithData(pterm.TableData{
		{"Index", strconv.FormatUint(block.Index, 10)},
		{"Timestamp", formatTimestamp(block.Timestamp)},
		{"Previous hash", block.PreviousHash},
		{"Hash", hash},
		{"Nonce", strconv.FormatUint(block.Nonce, 10)},
	}).Srender()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	if len(block.Transactions) == 0 {
		return header + "\n" + pterm.Info.Sprintfln("No transactions"), nil
	}

	data := pterm.TableData{{"Issuer", "Subject", "Payload", "Public key", "Signature"}}
	for _, tx := range block.Transactions {
		status := pterm.Green("valid")
		if !tx.Verify() {
			status = pterm.Red("invalid")
		}
		data = append(data, []string{tx.IssuerId, tx.SubjectId, tx.Payload, shortHash(tx.PublicKey.Hex()), status})
	}
	transactions, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return fmt.Sprintf("%s\n%s\n", header, transactions), nil
}

func renderValidation(validation *node_api.ValidationResponse) string {
	if validation.Valid {
		return pterm.Success.Sprintfln("Chain is valid (%d blocks)", validation.Height)
	}
	return pterm.Error.Sprintfln("Chain is invalid (%d blocks): %s", validation.Height, validation.Error)
}
