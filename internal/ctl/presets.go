package ctl

import (
	"fmt"
	"net/url"
)

// PresetList prints the preset names stored on the daemon.
func PresetList(baseURL string, jsonOutput bool) error {
	var resp struct {
		Presets []string `json:"presets"`
	}
	if err := getJSON(baseURL, "/api/presets", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	if len(resp.Presets) == 0 {
		fmt.Println(colorize(dim, "  no presets saved"))
	} else {
		fmt.Println(header("  PRESETS"))
		for _, name := range resp.Presets {
			fmt.Printf("  %s\n", name)
		}
	}
	fmt.Println()
	return nil
}

// PresetSave stores the daemon's current parameters under name.
func PresetSave(baseURL, name string, jsonOutput bool) error {
	var res actionResult
	if err := postJSON(baseURL, "/api/presets", map[string]string{"name": name}, &res); err != nil {
		return err
	}
	return printResult(res, "SAVED", jsonOutput)
}

// PresetLoad applies a stored preset and forces an immediate push.
func PresetLoad(baseURL, name string, jsonOutput bool) error {
	var res actionResult
	if err := postJSON(baseURL, "/api/presets/"+url.PathEscape(name)+"/load", nil, &res); err != nil {
		return err
	}
	return printResult(res, "LOADED", jsonOutput)
}

// PresetDelete removes a stored preset.
func PresetDelete(baseURL, name string, jsonOutput bool) error {
	var res actionResult
	if err := deleteJSON(baseURL, "/api/presets/"+url.PathEscape(name), &res); err != nil {
		return err
	}
	return printResult(res, "DELETED", jsonOutput)
}
