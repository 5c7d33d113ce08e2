package ctl

// Config dumps the daemon's effective configuration as indented JSON.
func Config(baseURL string) error {
	var cfg map[string]any
	if err := getJSON(baseURL, "/api/config", &cfg); err != nil {
		return err
	}
	return printJSON(cfg)
}

// Params dumps the daemon's live scene parameters as indented JSON.
func Params(baseURL string) error {
	var p map[string]any
	if err := getJSON(baseURL, "/api/params", &p); err != nil {
		return err
	}
	return printJSON(p)
}
