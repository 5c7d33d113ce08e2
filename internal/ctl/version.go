package ctl

import "fmt"

// VersionInfo prints the daemon's build information.
func VersionInfo(baseURL string, jsonOutput bool) error {
	var resp struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
	}
	if err := getJSON(baseURL, "/api/version", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Printf("  %-12s %s\n", colorize(dim, "Version:"), resp.Version)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Go:"), resp.GoVersion)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Built:"), resp.BuiltAt)
	fmt.Println()
	return nil
}
