package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a resource",
}

var createEnclaveCmd = &cobra.Command{
	Use:   "enclave",
	Short: "Create a new enclave",
	RunE:  runCreateEnclave,
}

var createConnectorCmd = &cobra.Command{
	Use:     "connector",
	Aliases: []string{"conn"},
	Short:   "Create a new connector in the enclave",
	RunE:    runCreateConnector,
}

func init() {
	createEnclaveCmd.Flags().String("name", "", "Enclave name (required)")
	createEnclaveCmd.Flags().String("description", "", "Description")

	createConnectorCmd.Flags().String("name", "", "Connector name (required)")
	createConnectorCmd.Flags().String("type", "", "Connector type code (required, see 'get connector-types')")
	createConnectorCmd.Flags().StringArray("set", nil, "Config entry as key=value, repeatable")
	createConnectorCmd.Flags().String("cron", "", "Cron schedule (5-field)")

	createCmd.AddCommand(createEnclaveCmd)
	createCmd.AddCommand(createConnectorCmd)
}

func runCreateEnclave(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")

	if name == "" {
		return fmt.Errorf("--name is required")
	}

	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}

	client := mustClient()
	data, err := client.Post("/api/v1/enclaves", body)
	if err != nil {
		return err
	}

	var resp EnclaveResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Enclave created.\n")
		fmt.Printf("  ID:   %s\n", resp.ID)
		fmt.Printf("  Name: %s\n", resp.Name)
		fmt.Printf("\nUse it with --enclave %s or 'nhi-admin config set-context'.\n", resp.ID)
	}
	return nil
}

func runCreateConnector(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	typeCode, _ := cmd.Flags().GetString("type")
	entries, _ := cmd.Flags().GetStringArray("set")
	cron, _ := cmd.Flags().GetString("cron")

	if name == "" {
		return fmt.Errorf("--name is required")
	}
	if typeCode == "" {
		return fmt.Errorf("--type is required")
	}

	config := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --set entry %q, expected key=value", entry)
		}
		config[key] = value
	}

	body := map[string]any{
		"name":   name,
		"type":   typeCode,
		"config": config,
	}
	if cron != "" {
		body["cron_expr"] = cron
	}

	client := mustScopedClient()
	data, err := client.Post("/api/v1/connectors", body)
	if err != nil {
		return err
	}

	var resp ConnectorResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Connector created.\n")
		fmt.Printf("  ID:       %s\n", resp.ID)
		fmt.Printf("  Name:     %s\n", resp.Name)
		fmt.Printf("  Type:     %s\n", resp.Type)
		fmt.Printf("  Schedule: %s\n", orDash(resp.CronExpr))
	}
	return nil
}
