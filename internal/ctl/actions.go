package ctl

// Push forces an immediate full-state snapshot push from the control daemon.
func Push(baseURL string, jsonOutput bool) error {
	var res actionResult
	if err := postJSON(baseURL, "/api/push", nil, &res); err != nil {
		return err
	}
	return printResult(res, "PUSHED", jsonOutput)
}

// Command sends a named one-shot command through the daemon to the receiver.
func Command(baseURL, name string, jsonOutput bool) error {
	var res actionResult
	if err := postJSON(baseURL, "/api/command", map[string]string{"name": name}, &res); err != nil {
		return err
	}
	return printResult(res, "SENT", jsonOutput)
}

// AutoSync toggles the automatic snapshot/feature streams on the daemon.
func AutoSync(baseURL string, enabled, jsonOutput bool) error {
	var res actionResult
	if err := postJSON(baseURL, "/api/autosync", map[string]bool{"enabled": enabled}, &res); err != nil {
		return err
	}
	return printResult(res, "OK", jsonOutput)
}

// Popout asks the control daemon to spawn a receiver process.
func Popout(baseURL string, jsonOutput bool) error {
	var res actionResult
	if err := postJSON(baseURL, "/api/popout", nil, &res); err != nil {
		return err
	}
	return printResult(res, "SPAWNED", jsonOutput)
}
