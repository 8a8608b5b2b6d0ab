package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the public identity for the specified wallet",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(privateKey.PublicKey())
}
