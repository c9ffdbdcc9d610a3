/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: The config command group: init writes a default configuration file and
show prints the effective configuration after files, environment and flags are applied.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/akaylee-logcat/pkg/config"
	"github.com/spf13/cobra"
)

// RunConfigInit writes the default configuration to the given path
func RunConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultFileName
	if len(args) > 0 {
		path = args[0]
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

// RunConfigShow prints the effective configuration as TOML
func RunConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	doc, err := cfg.Document()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(doc)
	return err
}
