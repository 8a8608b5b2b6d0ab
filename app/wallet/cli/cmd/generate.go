package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	if err := savePrivateKey(getPrivateKeyPath(), privateKey); err != nil {
		log.Fatal(err)
	}

	fmt.Println("account:", privateKey.PublicKey())
}
