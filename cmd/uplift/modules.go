package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"uplift/internal/pipeline"
	"uplift/internal/registry"
)

// modulesCmd lists the analysis modules
var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the registered analysis modules",
	RunE:  runModules,
}

func runModules(cmd *cobra.Command, args []string) error {
	// Descriptor-only registration: no provider client is needed to
	// print the catalog.
	reg := registry.New(nil)
	defer reg.Close()
	pipeline.RegisterStages(reg, pipeline.StageSet{Prompts: pipeline.MustNewPromptStore()})

	descriptors := reg.List()
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].EffectivePriority() < descriptors[j].EffectivePriority()
	})

	fmt.Println("Registered modules:")
	for _, d := range descriptors {
		status := "enabled"
		if !d.Enabled {
			status = "disabled"
		}
		deps := "none"
		if len(d.Dependencies) > 0 {
			deps = strings.Join(d.Dependencies, ", ")
		}
		fmt.Printf("  %-22s v%-8s priority %-4d %-9s deps: %s\n",
			d.Name, d.Version, d.EffectivePriority(), status, deps)
	}
	return nil
}
