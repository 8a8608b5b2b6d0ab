package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/meshchain/ledger/foundation/blockchain/ledger"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the account's projected balance",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "URL of the node.")
	balanceCmd.Flags().BoolVarP(&pending, "pending", "P", false, "Include the pending pool in the projection.")
}

var pending bool

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	account := privateKey.PublicKey()
	fmt.Println("for account:", account)

	endpoint := fmt.Sprintf("%s/v1/balances/%s", url, account)
	if pending {
		endpoint += "?pending=true"
	}

	resp, err := http.Get(endpoint)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var info ledger.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("balance: %d (sent %d, received %d)\n", info.Balance, info.Sent, info.Received)
}
