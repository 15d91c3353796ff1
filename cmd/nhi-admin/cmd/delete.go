package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a resource",
}

var deleteEnclaveCmd = &cobra.Command{
	Use:   "enclave ID",
	Short: "Delete an enclave and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteEnclave,
}

var deleteConnectorCmd = &cobra.Command{
	Use:     "connector ID",
	Aliases: []string{"conn"},
	Short:   "Delete a connector (its findings survive)",
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteConnector,
}

var deleteIdentityCmd = &cobra.Command{
	Use:     "identity ID",
	Aliases: []string{"id"},
	Short:   "Delete an identity (re-running its jobs recreates it)",
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteIdentity,
}

func init() {
	deleteCmd.AddCommand(deleteEnclaveCmd)
	deleteCmd.AddCommand(deleteConnectorCmd)
	deleteCmd.AddCommand(deleteIdentityCmd)
}

func runDeleteEnclave(cmd *cobra.Command, args []string) error {
	client := mustClient()
	if err := client.Delete("/api/v1/enclaves/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Enclave %s deleted.\n", args[0])
	return nil
}

func runDeleteConnector(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()
	if err := client.Delete("/api/v1/connectors/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Connector %s deleted.\n", args[0])
	return nil
}

func runDeleteIdentity(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()
	if err := client.Delete("/api/v1/identities/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Identity %s deleted.\n", args[0])
	return nil
}
