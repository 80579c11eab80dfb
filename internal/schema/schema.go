// Package schema emits a machine-readable description of the resolvable
// command space and the CLI surface, for agents and shell completion tooling.
package schema

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/defiterm/defiterm/internal/command"
	"github.com/defiterm/defiterm/internal/registry"
)

type RegistrySchema struct {
	Core    []CommandSchema `json:"core"`
	Aliased []CommandSchema `json:"aliased"`
	Fibers  []FiberSchema   `json:"fibers"`
	CLI     *CLISchema      `json:"cli,omitempty"`
}

type CommandSchema struct {
	ID          string   `json:"id"`
	Scope       string   `json:"scope"`
	Protocol    string   `json:"protocol,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
}

type FiberSchema struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Commands []CommandSchema `json:"commands"`
}

type CLISchema struct {
	Path        string       `json:"path"`
	Use         string       `json:"use"`
	Short       string       `json:"short"`
	Flags       []FlagSchema `json:"flags,omitempty"`
	Subcommands []CLISchema  `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// Build serializes the registry's resolvable command space. When root is
// non-nil the CLI subcommand tree is included too.
func Build(reg *registry.Registry, root *cobra.Command) RegistrySchema {
	out := RegistrySchema{
		Core:    serializeCommands(reg.CoreCommands(), ""),
		Aliased: serializeCommands(reg.AliasedCommands(), ""),
	}
	for _, f := range reg.Fibers() {
		out.Fibers = append(out.Fibers, FiberSchema{
			ID:       f.ID(),
			Name:     f.Name(),
			Commands: serializeCommands(f.Commands(), f.ID()),
		})
	}
	if root != nil {
		cli := serializeCLI(root)
		out.CLI = &cli
	}
	return out
}

func serializeCommands(cmds []command.Command, protocol string) []CommandSchema {
	out := make([]CommandSchema, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, CommandSchema{
			ID:          cmd.ID,
			Scope:       cmd.Scope.String(),
			Protocol:    protocol,
			Aliases:     cmd.Aliases,
			Description: cmd.Description,
		})
	}
	return out
}

func serializeCLI(cmd *cobra.Command) CLISchema {
	s := CLISchema{
		Path:  strings.TrimSpace(cmd.CommandPath()),
		Use:   cmd.Use,
		Short: cmd.Short,
		Flags: collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serializeCLI(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}
