package cmd

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getEnclavesCmd = &cobra.Command{
	Use:     "enclaves",
	Aliases: []string{"enclave"},
	Short:   "List enclaves",
	RunE:    runGetEnclaves,
}

var getConnectorsCmd = &cobra.Command{
	Use:     "connectors",
	Aliases: []string{"connector", "conn"},
	Short:   "List connectors in the enclave",
	RunE:    runGetConnectors,
}

var getConnectorTypesCmd = &cobra.Command{
	Use:     "connector-types",
	Aliases: []string{"connector-type", "types"},
	Short:   "List available connector types",
	RunE:    runGetConnectorTypes,
}

var getJobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "List discovery jobs in the enclave",
	RunE:    runGetJobs,
}

var getIdentitiesCmd = &cobra.Command{
	Use:     "identities",
	Aliases: []string{"identity", "id"},
	Short:   "List identities in the enclave",
	RunE:    runGetIdentities,
}

func init() {
	getEnclavesCmd.Flags().String("search", "", "Search by name")
	getEnclavesCmd.Flags().Int("page", 1, "Page number")
	getEnclavesCmd.Flags().Int("per-page", 20, "Items per page")

	getConnectorsCmd.Flags().String("type", "", "Filter by connector type")
	getConnectorsCmd.Flags().String("enabled", "", "Filter by enabled status (true/false)")
	getConnectorsCmd.Flags().Int("page", 1, "Page number")
	getConnectorsCmd.Flags().Int("per-page", 20, "Items per page")

	getJobsCmd.Flags().String("connector", "", "Filter by connector ID")
	getJobsCmd.Flags().String("status", "", "Filter by status, comma-separated (pending,running,completed,failed)")
	getJobsCmd.Flags().Int("page", 1, "Page number")
	getJobsCmd.Flags().Int("per-page", 20, "Items per page")

	getIdentitiesCmd.Flags().String("type", "", "Filter by identity type (svc_acct, cert)")
	getIdentitiesCmd.Flags().String("owner", "", "Filter by owner (empty string matches unowned)")
	getIdentitiesCmd.Flags().String("linked-system", "", "Filter by linked system")
	getIdentitiesCmd.Flags().String("search", "", "Search by display name or fingerprint")
	getIdentitiesCmd.Flags().Int("min-risk", -1, "Minimum risk score")
	getIdentitiesCmd.Flags().Int("max-risk", -1, "Maximum risk score")
	getIdentitiesCmd.Flags().String("sort", "", "Sort by field, prefix with - for descending (e.g. -risk_score)")
	getIdentitiesCmd.Flags().Int("page", 1, "Page number")
	getIdentitiesCmd.Flags().Int("per-page", 20, "Items per page")

	getCmd.AddCommand(getEnclavesCmd)
	getCmd.AddCommand(getConnectorsCmd)
	getCmd.AddCommand(getConnectorTypesCmd)
	getCmd.AddCommand(getJobsCmd)
	getCmd.AddCommand(getIdentitiesCmd)
}

func pageParams(cmd *cobra.Command, params url.Values) {
	if v, _ := cmd.Flags().GetInt("page"); v > 0 {
		params.Set("page", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("per-page"); v > 0 {
		params.Set("per_page", strconv.Itoa(v))
	}
}

func withQuery(path string, params url.Values) string {
	if q := params.Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

func runGetEnclaves(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("search"); v != "" {
		params.Set("search", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/enclaves", params))
	if err != nil {
		return err
	}

	var resp ListResponse[EnclaveResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "NAME", "DESCRIPTION", "CREATED")
		for _, e := range resp.Data {
			t.AddRow(e.ID, e.Name, truncate(e.Description, 40), shortTime(e.CreatedAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "NAME", "CREATED")
		for _, e := range resp.Data {
			t.AddRow(e.ID, e.Name, shortTime(e.CreatedAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetConnectors(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		params.Set("type", v)
	}
	if v, _ := cmd.Flags().GetString("enabled"); v != "" {
		params.Set("enabled", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/connectors", params))
	if err != nil {
		return err
	}

	var resp ListResponse[ConnectorResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "NAME", "TYPE", "ENABLED", "SCHEDULE", "LAST RUN", "LAST STATUS")
		for _, c := range resp.Data {
			t.AddRow(c.ID, c.Name, c.Type, boolToStr(c.Enabled), orDash(c.CronExpr), shortTime(ptrStr(c.LastRunAt)), orDash(c.LastRunStatus))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "NAME", "TYPE", "ENABLED", "LAST STATUS")
		for _, c := range resp.Data {
			t.AddRow(truncate(c.ID, 12), c.Name, c.Type, boolToStr(c.Enabled), orDash(c.LastRunStatus))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetConnectorTypes(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/connector-types")
	if err != nil {
		return err
	}

	var types []ConnectorTypeResponse
	if err := unmarshal(data, &types); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(types)
	case outputYAML:
		printYAML(types)
	default:
		t := newTable("CODE", "NAME", "SOURCE TYPE", "REQUIRED CONFIG")
		for _, ct := range types {
			t.AddRow(ct.Code, ct.Name, ct.SourceType, truncate(strings.Join(ct.RequiredConfig, ", "), 50))
		}
		t.Flush()
	}
	return nil
}

func runGetJobs(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("connector"); v != "" {
		params.Set("connector_id", v)
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/jobs", params))
	if err != nil {
		return err
	}

	var resp ListResponse[JobResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "CONNECTOR", "STATUS", "TRIGGER", "RECORDS", "FINDINGS", "UNRESOLVED", "STARTED", "COMPLETED")
		for _, j := range resp.Data {
			t.AddRow(j.ID, j.ConnectorID, j.Status, j.TriggeredBy,
				strconv.Itoa(j.RecordsFound), strconv.Itoa(j.FindingsCount), strconv.Itoa(j.UnresolvedCount),
				shortTime(ptrStr(j.StartedAt)), shortTime(ptrStr(j.CompletedAt)))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "STATUS", "TRIGGER", "FINDINGS", "CREATED")
		for _, j := range resp.Data {
			t.AddRow(truncate(j.ID, 12), j.Status, j.TriggeredBy, strconv.Itoa(j.FindingsCount), shortTime(j.CreatedAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetIdentities(cmd *cobra.Command, args []string) error {
	client := mustScopedClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		params.Set("type", v)
	}
	if cmd.Flags().Changed("owner") {
		v, _ := cmd.Flags().GetString("owner")
		params.Set("owner", v)
	}
	if cmd.Flags().Changed("linked-system") {
		v, _ := cmd.Flags().GetString("linked-system")
		params.Set("linked_system", v)
	}
	if v, _ := cmd.Flags().GetString("search"); v != "" {
		params.Set("search", v)
	}
	if v, _ := cmd.Flags().GetInt("min-risk"); v >= 0 {
		params.Set("min_risk", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("max-risk"); v >= 0 {
		params.Set("max_risk", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetString("sort"); v != "" {
		params.Set("sort", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/identities", params))
	if err != nil {
		return err
	}

	var resp ListResponse[IdentityResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "TYPE", "NAME", "RISK", "OWNER", "LINKED SYSTEM", "FIRST SEEN", "LAST SEEN")
		for _, i := range resp.Data {
			t.AddRow(i.ID, i.Type, i.DisplayName, strconv.Itoa(i.RiskScore),
				orDash(i.Owner), orDash(i.LinkedSystem), shortTime(i.FirstSeen), shortTime(i.LastSeen))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "TYPE", "NAME", "RISK", "OWNER")
		for _, i := range resp.Data {
			t.AddRow(truncate(i.ID, 12), i.Type, truncate(i.DisplayName, 40), strconv.Itoa(i.RiskScore), orDash(i.Owner))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}
