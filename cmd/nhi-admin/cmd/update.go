package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update a resource",
}

var updateConnectorCmd = &cobra.Command{
	Use:     "connector ID",
	Aliases: []string{"conn"},
	Short:   "Update a connector",
	Args:    cobra.ExactArgs(1),
	RunE:    runUpdateConnector,
}

var updateIdentityCmd = &cobra.Command{
	Use:     "identity ID",
	Aliases: []string{"id"},
	Short:   "Enrich an identity with owner or linked system",
	Args:    cobra.ExactArgs(1),
	RunE:    runUpdateIdentity,
}

func init() {
	updateConnectorCmd.Flags().String("name", "", "New connector name")
	updateConnectorCmd.Flags().StringArray("set", nil, "Config entry as key=value, repeatable (replaces the stored config)")
	updateConnectorCmd.Flags().String("cron", "", "New cron schedule")
	updateConnectorCmd.Flags().Bool("enable", false, "Enable the connector")
	updateConnectorCmd.Flags().Bool("disable", false, "Disable the connector")

	updateIdentityCmd.Flags().String("owner", "", "Owner to assign (empty string clears it)")
	updateIdentityCmd.Flags().String("linked-system", "", "Linked system to assign (empty string clears it)")

	updateCmd.AddCommand(updateConnectorCmd)
	updateCmd.AddCommand(updateIdentityCmd)
}

func runUpdateConnector(cmd *cobra.Command, args []string) error {
	body := map[string]any{}

	if v, _ := cmd.Flags().GetString("name"); v != "" {
		body["name"] = v
	}
	if cmd.Flags().Changed("cron") {
		v, _ := cmd.Flags().GetString("cron")
		body["cron_expr"] = v
	}
	if entries, _ := cmd.Flags().GetStringArray("set"); len(entries) > 0 {
		config := make(map[string]any, len(entries))
		for _, entry := range entries {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid --set entry %q, expected key=value", entry)
			}
			config[key] = value
		}
		body["config"] = config
	}

	enable, _ := cmd.Flags().GetBool("enable")
	disable, _ := cmd.Flags().GetBool("disable")
	if enable && disable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}
	if enable {
		body["enabled"] = true
	}
	if disable {
		body["enabled"] = false
	}

	if len(body) == 0 {
		return fmt.Errorf("nothing to update")
	}

	client := mustScopedClient()
	data, err := client.Patch("/api/v1/connectors/"+args[0], body)
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
		fmt.Printf("Connector %s updated.\n", resp.ID)
	}
	return nil
}

func runUpdateIdentity(cmd *cobra.Command, args []string) error {
	body := map[string]any{}

	if cmd.Flags().Changed("owner") {
		v, _ := cmd.Flags().GetString("owner")
		body["owner"] = v
	}
	if cmd.Flags().Changed("linked-system") {
		v, _ := cmd.Flags().GetString("linked-system")
		body["linked_system"] = v
	}

	if len(body) == 0 {
		return fmt.Errorf("nothing to update, pass --owner or --linked-system")
	}

	client := mustScopedClient()
	data, err := client.Patch("/api/v1/identities/"+args[0], body)
	if err != nil {
		return err
	}

	var resp IdentityResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Identity %s updated.\n", resp.ID)
		fmt.Printf("  Owner:          %s\n", orDash(resp.Owner))
		fmt.Printf("  Linked System:  %s\n", orDash(resp.LinkedSystem))
		fmt.Printf("  Risk Score:     %d\n", resp.RiskScore)
	}
	return nil
}
