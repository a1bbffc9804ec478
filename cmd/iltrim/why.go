package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/iltrim/internal/output"
	"github.com/panbanda/iltrim/pkg/linker/driver"
)

func whyCmd() *cli.Command {
	return &cli.Command{
		Name:      "why",
		Usage:     "Explain why an entity is kept",
		ArgsUsage: "<document|dir>...",
		Description: `Links the inputs without writing any output and prints the chain of
dependencies that led from a root to each requested entity.

Entities are named by full type name, display name, dump token or
Declaring.Type::Member.

Examples:
  iltrim why --root App -e App.Widget ./assemblies
  iltrim why --root App -e App.Widget::Run -e 'TypeDef:App.Cache' ./assemblies`,
		Flags: append(linkFlags(),
			&cli.StringSliceFlag{
				Name:     "entity",
				Aliases:  []string{"e"},
				Usage:    "Entity to explain (repeatable)",
				Required: true,
			},
		),
		Action: runWhyCmd,
	}
}

func runWhyCmd(c *cli.Context) error {
	s, err := runLink(c, true)
	if err != nil {
		return err
	}

	m := s.result.Context.Model
	var report output.WhyKept
	for _, query := range c.StringSlice("entity") {
		found := driver.FindEntities(m, query)
		if len(found) == 0 {
			return fmt.Errorf("no entity matches %q", query)
		}
		for _, e := range found {
			report.Explanations = append(report.Explanations, driver.Explain(s.result, e))
		}
	}

	formatter, err := newFormatter(c, s.cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(&report)
}
