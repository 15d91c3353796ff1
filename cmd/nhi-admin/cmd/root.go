package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagEnclave string
	flagContext string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "nhi-admin",
	Short: "OpenNHI inventory administration CLI",
	Long: `nhi-admin is a kubectl-style CLI for managing the OpenNHI inventory.

It provides commands to manage enclaves and connectors, trigger and watch
discovery jobs, and inspect the resolved identity inventory.

Use "nhi-admin config set-context" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: NHI_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagEnclave, "enclave", "e", "", "Enclave ID for scoped commands (env: NHI_ENCLAVE)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context (env: NHI_CONTEXT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, wide, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clusterInfoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(statsCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("NHI_API_URL")
	}
	if flagEnclave == "" {
		flagEnclave = os.Getenv("NHI_ENCLAVE")
	}

	if flagAPIURL == "" || flagEnclave == "" {
		u, e := resolveFromConfigFile()
		if flagAPIURL == "" {
			flagAPIURL = u
		}
		if flagEnclave == "" {
			flagEnclave = e
		}
	}
}

func resolveFromConfigFile() (string, string) {
	ctxName := flagContext
	if ctxName == "" {
		ctxName = os.Getenv("NHI_CONTEXT")
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", ""
	}

	if ctxName == "" {
		ctxName = cfg.CurrentContext
	}

	ctx := cfg.GetContext(ctxName)
	if ctx == nil {
		return "", ""
	}

	return ctx.Context.APIURL, ctx.Context.Enclave
}

func mustClient() *Client {
	if flagAPIURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL not configured. Use --api-url, NHI_API_URL, or 'nhi-admin config set-context'")
		os.Exit(1)
	}
	return NewClient(flagAPIURL, flagEnclave, flagVerbose)
}

// mustScopedClient requires an enclave ID as well as the API URL.
func mustScopedClient() *Client {
	client := mustClient()
	if client.enclaveID == "" {
		fmt.Fprintln(os.Stderr, "Error: enclave not configured. Use --enclave, NHI_ENCLAVE, or 'nhi-admin config set-context'")
		os.Exit(1)
	}
	return client
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nhi-admin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var clusterInfoCmd = &cobra.Command{
	Use:   "cluster-info",
	Short: "Display API connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := mustClient()
		data, err := client.Get("/ready")
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}

		var resp ReadyResponse
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

		fmt.Fprintf(os.Stdout, "OpenNHI API\n")
		fmt.Fprintf(os.Stdout, "  API URL:  %s\n", flagAPIURL)
		fmt.Fprintf(os.Stdout, "  Status:   %s\n", resp.Status)
		if len(resp.Checks) > 0 {
			fmt.Fprintf(os.Stdout, "\nDependencies:\n")
			t := newTable("NAME", "STATUS", "DURATION", "ERROR")
			for name, check := range resp.Checks {
				t.AddRow(name, check.Status, check.Duration, check.Error)
			}
			t.Flush()
		}
		return nil
	},
}
