package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

var (
	url       string
	to        string
	amount    uint64
	entryType string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit an entry to a node",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "URL of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Public key of the recipient.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to send.")
	sendCmd.Flags().StringVarP(&entryType, "type", "y", "crypto", "Entry type.")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	e, err := entry.New(privateKey.PublicKey(), to, amount, entryType, nil)
	if err != nil {
		log.Fatal(err)
	}

	signed, err := e.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	payload, err := json.Marshal(signed)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/entries", url), "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		log.Fatalf("node rejected entry: %s", body["error"])
	}

	fmt.Println("entry submitted:", signed.EntryID)
}
