package main

import (
	"fmt"
	"os"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without polling the access point.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		// Check if file exists
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	aliases, err := alias.New(cfg.Clients)
	if err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Station:")
	fmt.Printf("  Tool: %s\n", cfg.Station.ToolPath)
	fmt.Printf("  Interface: %s\n", cfg.Station.Interface)
	fmt.Printf("  Poll interval: %s\n", cfg.Station.PollInterval)
	fmt.Printf("  Timeout: %s\n", cfg.Station.Timeout)
	fmt.Printf("  Parse partial output: %v\n", cfg.Station.ParsePartialOutput)
	fmt.Printf("  Client aliases: %d\n", aliases.Len())

	if cfg.Station.Remote != nil {
		fmt.Println()
		fmt.Println("Remote Access Point:")
		fmt.Printf("  Host: %s\n", cfg.Station.Remote.Host)
		fmt.Printf("  Port: %d\n", cfg.Station.Remote.Port)
		fmt.Printf("  Username: %s\n", cfg.Station.Remote.Username)
		fmt.Printf("  Key: %s\n", cfg.Station.Remote.KeyPath)
	}

	fmt.Println()
	fmt.Println("Entity Registry:")
	fmt.Printf("  Path: %s\n", cfg.Registry.Path)
	if cfg.Registry.StaleAfter > 0 {
		fmt.Printf("  Stale after: %s\n", cfg.Registry.StaleAfter)
	} else {
		fmt.Println("  Stale after: never")
	}

	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  HTTP API: %v\n", cfg.HTTP.Listen != "")
	fmt.Printf("  MQTT: %v\n", cfg.MQTT != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.HTTP.Listen != "" {
		fmt.Println()
		fmt.Println("HTTP Configuration:")
		fmt.Printf("  Listen: %s\n", cfg.HTTP.Listen)
	}

	if cfg.MQTT != nil {
		fmt.Println()
		fmt.Println("MQTT Configuration:")
		fmt.Printf("  Broker: %s\n", cfg.MQTT.Broker)
		fmt.Printf("  Discovery prefix: %s\n", cfg.MQTT.DiscoveryPrefix)
		fmt.Printf("  Device name: %s\n", cfg.MQTT.DeviceName)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
		if len(cfg.Telegram.NotifyOn) > 0 {
			fmt.Printf("  Notify on: %v\n", cfg.Telegram.NotifyOn)
		}
	}

	return nil
}
