package config

import (
	"github.com/spf13/cobra"
)

// NewIntegratorCommand builds the integrator's CLI surface:
// --mqtt-mapping-file (required, falls back to MQTT_MAPPING_FILE) and
// --mqtt-discover-prefix (default "iotempower"). run receives the fully
// resolved configuration.
func NewIntegratorCommand(run func(cfg *IntegratorConfig) error) *cobra.Command {
	cfg := &IntegratorConfig{}

	cmd := &cobra.Command{
		Use:   "integrator",
		Short: "Bridge a broker connection through a declarative topic/payload mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ResolveIntegratorConfig(cfg); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BrokerAddr, "mqtt-broker-addr", "localhost:1883", "address of the broker to bridge")
	flags.StringVar(&cfg.MappingFile, "mqtt-mapping-file", "", "path to the mapping document (required, or set MQTT_MAPPING_FILE)")
	flags.StringVar(&cfg.DiscoverPrefix, "mqtt-discover-prefix", DefaultDiscoverPrefix, "mapping subtree prefix to apply")

	return cmd
}
