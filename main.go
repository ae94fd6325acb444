package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cli "go.dedis.ch/mpcagent/cmd"
)

func main() {
	command := &cobra.Command{
		Use: "mpcagent",
	}
	addComputationCmd(command)
	addEncryptionCmd(command)

	err := command.Execute()
	if err != nil {
		panic(err)
	}
}

// addComputationCmd starts a computation agent
func addComputationCmd(command *cobra.Command) {
	var confPath string
	var verbose bool

	computationCmd := &cobra.Command{
		Use:   "computation",
		Short: "Start a computation agent",
		Long:  "Start a computation agent, accept secret shares and drive MPC player processes",
		Args:  cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			setLogLevel(verbose)
			return cli.StartComputation(confPath)
		},
	}

	computationCmd.Flags().StringVarP(&confPath, "config", "c", "config/computation_agent.yaml", "Path of the agent config file")
	computationCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable info logging")

	command.AddCommand(computationCmd)
}

// addEncryptionCmd starts an encryption agent
func addEncryptionCmd(command *cobra.Command) {
	var confPath string
	var daemon bool
	var verbose bool

	encryptionCmd := &cobra.Command{
		Use:   "encryption",
		Short: "Start an encryption agent",
		Long:  "Start an encryption agent, fetch data objects and distribute secret shares",
		Args:  cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			setLogLevel(verbose)
			return cli.StartEncryption(confPath, daemon)
		},
	}

	encryptionCmd.Flags().StringVarP(&confPath, "config", "c", "config/encryption_agent.yaml", "Path of the agent config file")
	encryptionCmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Serve the HTTP API only, no interactive prompt")
	encryptionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable info logging")

	command.AddCommand(encryptionCmd)
}

func setLogLevel(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}
