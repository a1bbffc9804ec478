package main

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/iltrim/internal/output"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/driver"
)

func stagesCmd() *cli.Command {
	return &cli.Command{
		Name:  "stages",
		Usage: "List the default pipeline and the stages that can be added to it",
		Description: `Registered stages can be placed into the pipeline with [[stages]] entries
in the config file.`,
		Action: runStagesCmd,
	}
}

func runStagesCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts, err := loaded.Config.LinkOptions()
	if err != nil {
		return err
	}
	p, err := driver.DefaultPipeline(opts)
	if err != nil {
		return err
	}

	var rows [][]string
	active := make(map[string]bool)
	for i, name := range p.Names() {
		active[name] = true
		rows = append(rows, []string{strconv.Itoa(i + 1), name, "pipeline"})
	}
	for _, name := range linker.RegisteredStages() {
		if !active[name] {
			rows = append(rows, []string{"", name, "registered"})
		}
	}

	formatter, err := newFormatter(c, loaded.Config)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.NewTable("Stages", []string{"Order", "Stage", "Status"}, rows, nil, nil))
}
