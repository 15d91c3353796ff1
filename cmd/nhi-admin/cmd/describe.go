package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show detailed information about a resource",
}

var describeConnectorCmd = &cobra.Command{
	Use:     "connector ID",
	Aliases: []string{"conn"},
	Short:   "Show connector details",
	Args:    cobra.ExactArgs(1),
	RunE:    runDescribeConnector,
}

var describeJobCmd = &cobra.Command{
	Use:   "job ID",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeJob,
}

var describeIdentityCmd = &cobra.Command{
	Use:     "identity ID",
	Aliases: []string{"id"},
	Short:   "Show identity details including risk factors and provenance",
	Args:    cobra.ExactArgs(1),
	RunE:    runDescribeIdentity,
}

func init() {
	describeCmd.AddCommand(describeConnectorCmd)
	describeCmd.AddCommand(describeJobCmd)
	describeCmd.AddCommand(describeIdentityCmd)
}

func runDescribeConnector(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()

	data, err := client.Get("/api/v1/connectors/" + args[0])
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
		fmt.Printf("Name:         %s\n", resp.Name)
		fmt.Printf("ID:           %s\n", resp.ID)
		fmt.Printf("Type:         %s\n", resp.Type)
		fmt.Printf("Enabled:      %s\n", boolToStr(resp.Enabled))
		fmt.Printf("Schedule:     %s\n", orDash(resp.CronExpr))
		fmt.Printf("Last Run:     %s\n", shortTime(ptrStr(resp.LastRunAt)))
		fmt.Printf("Last Status:  %s\n", orDash(resp.LastRunStatus))
		fmt.Printf("Created:      %s\n", shortTime(resp.CreatedAt))
		if len(resp.Config) > 0 {
			fmt.Printf("\nConfig:\n")
			for k, v := range resp.Config {
				fmt.Printf("  %s: %v\n", k, v)
			}
		}
	}
	return nil
}

func runDescribeJob(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()

	data, err := client.Get("/api/v1/jobs/" + args[0])
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
		fmt.Printf("ID:          %s\n", resp.ID)
		fmt.Printf("Connector:   %s\n", resp.ConnectorID)
		fmt.Printf("Status:      %s\n", resp.Status)
		fmt.Printf("Trigger:     %s\n", resp.TriggeredBy)
		fmt.Printf("Started:     %s\n", shortTime(ptrStr(resp.StartedAt)))
		fmt.Printf("Completed:   %s\n", shortTime(ptrStr(resp.CompletedAt)))
		fmt.Printf("Records:     %d\n", resp.RecordsFound)
		fmt.Printf("Findings:    %d\n", resp.FindingsCount)
		fmt.Printf("Unresolved:  %d\n", resp.UnresolvedCount)
		if resp.ErrorMessage != "" {
			fmt.Printf("Error:       %s\n", resp.ErrorMessage)
		}
	}
	return nil
}

func runDescribeIdentity(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()

	data, err := client.Get("/api/v1/identities/" + args[0])
	if err != nil {
		return err
	}

	var resp IdentityResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	if flagOutput == outputJSON {
		printJSON(resp)
		return nil
	}
	if flagOutput == outputYAML {
		printYAML(resp)
		return nil
	}

	fmt.Printf("Name:           %s\n", resp.DisplayName)
	fmt.Printf("ID:             %s\n", resp.ID)
	fmt.Printf("Type:           %s\n", resp.Type)
	fmt.Printf("Fingerprint:    %s\n", resp.Fingerprint)
	fmt.Printf("Owner:          %s\n", orDash(resp.Owner))
	fmt.Printf("Linked System:  %s\n", orDash(resp.LinkedSystem))
	fmt.Printf("Risk Score:     %d\n", resp.RiskScore)
	fmt.Printf("First Seen:     %s\n", shortTime(resp.FirstSeen))
	fmt.Printf("Last Seen:      %s\n", shortTime(resp.LastSeen))

	if len(resp.RiskFactors) > 0 {
		fmt.Printf("\nRisk Factors:\n")
		t := newTable("NAME", "POINTS")
		for _, f := range resp.RiskFactors {
			t.AddRow(f.Name, fmt.Sprintf("%d", f.Points))
		}
		t.Flush()
	}

	// Provenance is a second call; failure here should not hide the identity.
	provData, err := client.Get("/api/v1/identities/" + args[0] + "/provenance")
	if err != nil {
		fmt.Printf("\nProvenance: unavailable (%v)\n", err)
		return nil
	}

	var prov ListResponse[ProvenanceResponse]
	if err := unmarshal(provData, &prov); err != nil {
		return err
	}

	if len(prov.Data) > 0 {
		fmt.Printf("\nProvenance (%d links):\n", prov.Total)
		t := newTable("FINDING", "JOB", "LINKED AT")
		for _, p := range prov.Data {
			t.AddRow(p.FindingID, p.JobID, shortTime(p.LinkedAt))
		}
		t.Flush()
	}
	return nil
}
