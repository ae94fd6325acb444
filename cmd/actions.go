package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"

	"go.dedis.ch/mpcagent/distribute"
	"go.dedis.ch/mpcagent/fetch"
	"go.dedis.ch/mpcagent/registry"
)

// -----------------------------------------------------------------------------
// Encryption agent CMD prompt

var prompt = &survey.Select{
	Message: "What do you want to do ?",
	Options: actionOpts,
}

var actionOpts = []string{
	"🌱 Distribute a data object",
	"🌿 Show agent registry",
	"🍃 Exit",
}

// promptLoop drives the interactive encryption agent session
func promptLoop(reg *registry.Registry, gateway fetch.Gateway, client *distribute.Client) error {
	fmt.Println("##########################################")
	fmt.Println("######    MPC Encryption Agent      ######")
	fmt.Println("##########################################")
	fmt.Println()

	actions := map[string]func() error{
		actionOpts[0]: func() error { return distributeAction(gateway, client) },
		actionOpts[1]: func() error { return registryAction(reg) },
		actionOpts[2]: func() error { return exitAction() },
	}

	var action string
	for {
		err := survey.AskOne(prompt, &action)
		if err != nil {
			return err
		}

		method := actions[action]
		err = method()
		if err != nil {
			fmt.Println(err)
		}
	}
}

// -----------------------------------------------------------------------------
// Actions

func distributeAction(gateway fetch.Gateway, client *distribute.Client) error {
	var circuitID, dataURI string
	err := survey.AskOne(&survey.Input{Message: "Circuit id:"}, &circuitID)
	if err != nil {
		return err
	}
	err = survey.AskOne(&survey.Input{Message: "Data URI:"}, &dataURI)
	if err != nil {
		return err
	}

	ctx := context.Background()
	raw, err := gateway.Fetch(ctx, dataURI)
	if err != nil {
		return err
	}

	report, err := client.Distribute(ctx, raw, circuitID)
	if report != nil {
		for _, d := range report.Deliveries {
			if d.Err != nil {
				fmt.Printf("  party %d @ %s: FAILED (%v)\n", d.PartyIndex, d.Agent, d.Err)
				continue
			}
			fmt.Printf("  party %d @ %s: delivered, session %s\n", d.PartyIndex, d.Agent, d.SessionID)
		}
	}
	return err
}

func registryAction(reg *registry.Registry) error {
	for i, addr := range reg.Addresses() {
		fmt.Printf("  party %d: %s\n", i, addr)
	}
	return nil
}

func exitAction() error {
	fmt.Println("bye 👋")
	os.Exit(0)
	return nil
}
