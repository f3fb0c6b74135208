package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/session"
)

func short(s string) string {
	return ledger.Identity(s).Short()
}

func renderSummaries(summaries []session.Summary) (string, error) {
	data := pterm.TableData{{"Rank", "Group", "Local rank", "Length", "Mined", "Verified"}}
	for _, s := range summaries {
		verified := pterm.LightGreen("yes")
		if !s.Verified {
			verified = pterm.LightRed("no")
		}
		data = append(data, []string{
			strconv.Itoa(s.Membership.GlobalRank),
			strconv.Itoa(s.Membership.GroupID),
			strconv.Itoa(s.Membership.LocalRank),
			strconv.Itoa(s.Length),
			strconv.Itoa(s.Mined),
			verified,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// renderSnapshot prints one row per transaction, in chain order.
func renderSnapshot(s ledger.Snapshot) (string, error) {
	positions := make([]int, 0, len(s))
	for i := range s {
		positions = append(positions, i)
	}
	sort.Ints(positions)

	data := pterm.TableData{{"Block", "Previous hash", "Nonce", "Tx", "Sender", "Recipient", "Value", "Time"}}
	for _, i := range positions {
		b := s[i]
		txs := make([]int, 0, len(b.Transactions))
		for j := range b.Transactions {
			txs = append(txs, j)
		}
		sort.Ints(txs)
		if len(txs) == 0 {
			data = append(data, []string{strconv.FormatUint(b.Height, 10), short(b.PreviousHash), b.Nonce, "", "", "", "", ""})
		}
		for _, j := range txs {
			tx := b.Transactions[j]
			data = append(data, []string{
				strconv.FormatUint(b.Height, 10),
				short(b.PreviousHash),
				b.Nonce,
				strconv.Itoa(j),
				tx.Sender,
				tx.Recipient.Short(),
				tx.Value.String(),
				tx.Time.Format("2006-01-02 15:04:05"),
			})
		}
	}
	blocks, transactions := s.Counts()
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", err
	}
	return table + fmt.Sprintf("\n%d blocks, %d transactions\n", blocks, transactions), nil
}
