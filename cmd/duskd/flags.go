package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// bindFlags declares every duskd flag and binds it into v under the same
// key config.Load's viper overlay expects, so a flag, an env var
// (DUSKD_LISTEN_ADDR, ...) or the TOML file can each set it.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("listen-addr", "", "address to listen for inbound peer connections on")
	flags.Bool("listen", true, "whether to accept inbound peer connections")
	flags.StringSlice("connect", nil, "seed peer addresses to dial at startup")
	flags.Int("min-peers", 0, "minimum connected peers before the address book stops seeking more")
	flags.Int("max-peers", 0, "maximum connected peers (stored in the address book's params; no connection cap is enforced)")
	flags.Int("beacon-port", 0, "UDP port for local-network peer discovery, 0 disables it")
	flags.Int("verify-threads", 0, "worker pool size for transaction verification offload")
	flags.String("data-dir", "", "directory for the durable badger store; empty uses an in-memory store")
	flags.String("admin-http-addr", "", "address to serve the admin HTTP surface on")
	flags.Bool("admin-enabled", true, "whether the /admin endpoints are mounted")
	flags.String("admin-password", "", "password required in the Pw header for /admin endpoints")
	flags.String("config", "", "path to a TOML config file")

	for _, name := range []string{
		"listen-addr", "listen", "connect", "min-peers", "max-peers", "beacon-port",
		"verify-threads", "data-dir", "admin-http-addr", "admin-enabled", "admin-password",
	} {
		_ = v.BindPFlag(configKey(name), flags.Lookup(name))
	}
}

// configKey maps a flag's dashed name to config.Config's mapstructure key.
func configKey(flagName string) string {
	switch flagName {
	case "listen-addr":
		return "listen_addr"
	case "listen":
		return "listen"
	case "connect":
		return "connect_addrs"
	case "min-peers":
		return "min_peers"
	case "max-peers":
		return "max_peers"
	case "beacon-port":
		return "beacon_port"
	case "verify-threads":
		return "verify_threads"
	case "data-dir":
		return "data_dir"
	case "admin-http-addr":
		return "admin_http_addr"
	case "admin-enabled":
		return "admin_enabled"
	case "admin-password":
		return "admin_password"
	default:
		return flagName
	}
}
