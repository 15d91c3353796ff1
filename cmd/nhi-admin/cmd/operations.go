package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run CONNECTOR_ID",
	Short: "Trigger a discovery job for a connector",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunConnector,
}

var testCmd = &cobra.Command{
	Use:   "test CONNECTOR_ID",
	Short: "Test a connector's connection without ingesting",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestConnector,
}

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Re-run linked-system correlation over the enclave's identities",
	RunE:  runCorrelate,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show identity inventory statistics",
	RunE:  runStats,
}

func runRunConnector(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()
	data, err := client.Post("/api/v1/connectors/"+args[0]+"/run", nil)
	if err != nil {
		return err
	}

	var resp JobResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Job %s queued.\n", resp.ID)
		fmt.Printf("Watch it with 'nhi-admin describe job %s'.\n", resp.ID)
	}
	return nil
}

func runTestConnector(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()
	data, err := client.Post("/api/v1/connectors/"+args[0]+"/test", nil)
	if err != nil {
		return err
	}

	var resp TestConnectionResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		if resp.Success {
			fmt.Printf("Connection OK, %d records visible.\n", resp.RecordsFound)
		} else {
			fmt.Printf("Connection FAILED: %s\n", resp.Error)
		}
	}
	return nil
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()
	data, err := client.Post("/api/v1/identities/correlate", nil)
	if err != nil {
		return err
	}

	var resp CorrelateResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Correlation pass finished, %d identities updated.\n", resp.Updated)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()
	data, err := client.Get("/api/v1/identities/stats")
	if err != nil {
		return err
	}

	var resp IdentityStatsResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Identity Inventory\n")
		fmt.Printf("  Total: %d\n", resp.Total)
		if len(resp.ByType) > 0 {
			types := make([]string, 0, len(resp.ByType))
			for t := range resp.ByType {
				types = append(types, t)
			}
			sort.Strings(types)
			fmt.Printf("\nBy Type:\n")
			t := newTable("TYPE", "COUNT")
			for _, typ := range types {
				t.AddRow(typ, fmt.Sprintf("%d", resp.ByType[typ]))
			}
			t.Flush()
		}
	}
	return nil
}
