package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cargoflow/accessctl"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("accessctl-config - Configuration tool for accessctl")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  accessctl-config convert <input> <output>  - Convert between formats")
	fmt.Println("  accessctl-config validate <file>           - Validate configuration")
	fmt.Println("  accessctl-config stats <file>              - Show configuration statistics")
	fmt.Println("  accessctl-config apply <file>              - Apply configuration to a manager")
	fmt.Println()
	fmt.Println("Supported formats: .acl, .dsl, .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: accessctl-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := accessctl.NewConfigLoader().LoadFile(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accessctl-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := accessctl.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	for _, def := range cfg.Resources {
		if def.ID == "" {
			fmt.Printf("Resource missing ID\n")
			os.Exit(1)
		}
	}

	for _, r := range cfg.Roles {
		if r.ID == "" {
			fmt.Printf("Role missing ID\n")
			os.Exit(1)
		}
	}

	for _, p := range cfg.Policies {
		if p.ID == "" {
			fmt.Printf("Policy missing ID\n")
			os.Exit(1)
		}
		if p.Effect != accessctl.EffectAllow && p.Effect != accessctl.EffectDeny {
			fmt.Printf("Policy %s has invalid effect %q\n", p.ID, p.Effect)
			os.Exit(1)
		}
		if len(p.Actions) == 0 {
			fmt.Printf("Policy %s has no actions\n", p.ID)
			os.Exit(1)
		}
		if len(p.Resources) == 0 {
			fmt.Printf("Policy %s has no resources\n", p.ID)
			os.Exit(1)
		}
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Resources: %d\n", len(cfg.Resources))
	fmt.Printf("  Roles: %d\n", len(cfg.Roles))
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accessctl-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := accessctl.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Resources: %d\n", len(cfg.Resources))
	fmt.Printf("  Roles:     %d\n", len(cfg.Roles))
	fmt.Printf("  Policies:  %d\n", len(cfg.Policies))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		allowCount := 0
		denyCount := 0
		conditioned := 0
		for _, p := range cfg.Policies {
			if p.Effect == accessctl.EffectAllow {
				allowCount++
			} else {
				denyCount++
			}
			if len(p.Conditions) > 0 {
				conditioned++
			}
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Allow policies:       %d\n", allowCount)
		fmt.Printf("  Deny policies:        %d\n", denyCount)
		fmt.Printf("  Conditioned policies: %d\n", conditioned)
		fmt.Println()
	}

	if len(cfg.Roles) > 0 {
		totalPerms := 0
		system := 0
		for _, r := range cfg.Roles {
			totalPerms += len(r.Permissions)
			if r.IsSystem {
				system++
			}
		}
		fmt.Println("Role Details:")
		fmt.Printf("  System roles:      %d\n", system)
		fmt.Printf("  Total permissions: %d\n", totalPerms)
		fmt.Printf("  Avg per role:      %.1f\n", float64(totalPerms)/float64(len(cfg.Roles)))
		fmt.Println()
	}

	fmt.Println("Manager Settings:")
	fmt.Printf("  Cache TTL:          %dms\n", cfg.Settings.CacheTTL)
	fmt.Printf("  Sweep interval:     %dms\n", cfg.Settings.SweepInterval)
	fmt.Printf("  Audit queue size:   %d\n", cfg.Settings.AuditQueueSize)
	fmt.Printf("  Pattern cache size: %d\n", cfg.Settings.PatternCacheSize)
	fmt.Printf("  Seed system roles:  %v\n", cfg.Settings.SeedSystemRoles)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accessctl-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := accessctl.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	mgr, err := accessctl.NewManager(
		accessctl.NewMemoryResourceStore(),
		accessctl.NewMemoryRoleStore(),
		accessctl.NewMemoryPolicyStore(),
		accessctl.NewMemoryAuditStore(),
		cfg.Options()...,
	)
	if err != nil {
		fmt.Printf("Error building manager: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	if err := mgr.ApplyConfig(context.Background(), cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Resources loaded: %d\n", len(cfg.Resources))
	fmt.Printf("  Roles loaded: %d\n", len(cfg.Roles))
	fmt.Printf("  Policies loaded: %d\n", len(cfg.Policies))
}

func saveConfig(cfg *accessctl.Config, filename string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = accessctl.EncodeBinaryConfig(cfg)
	case ".acl", ".dsl":
		data, err = cfg.ToDSL()
	default:
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(filename))
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
