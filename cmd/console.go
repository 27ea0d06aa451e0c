/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/sirupsen/logrus"
)

const (
	commandStop  = "STOP"
	commandReset = "RESET"
)

var errInputClosed = errors.New("input closed")

// prompter reads one answer per line from an operator.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// askResetInput collects the values a reset or first-time setup may set.
func (p *prompter) askResetInput() (config.ResetInput, error) {
	var input config.ResetInput
	var err error

	if input.APIKey, err = p.ask("Enter ERP API key: "); err != nil {
		return input, err
	}
	if input.APISecret, err = p.ask("Enter ERP API secret: "); err != nil {
		return input, err
	}
	if input.ERPURL, err = p.ask("Enter ERP resource URL: "); err != nil {
		return input, err
	}
	if input.MachineDataFolder, err = p.ask("Enter machine data folder: "); err != nil {
		return input, err
	}
	folders, err := p.ask("Enter registry folders (comma separated): ")
	if err != nil {
		return input, err
	}
	input.RegistryFolders = splitList(folders)
	return input, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setupConfig asks for the required values and writes a new config file.
func setupConfig(in io.Reader, out io.Writer, path string) error {
	input, err := newPrompter(in, out).askResetInput()
	if err != nil {
		return fmt.Errorf("error reading setup values: %w", err)
	}
	cnf := &config.Configuration{
		ERP: config.ERPConfig{
			URL:       input.ERPURL,
			APIKey:    input.APIKey,
			APISecret: input.APISecret,
		},
		MachineDataFolder: input.MachineDataFolder,
		RegistryFolders:   input.RegistryFolders,
	}
	return config.Save(path, cnf)
}

// resetConfig checks the reset password and applies new values. A wrong
// password leaves the configuration untouched.
func resetConfig(p *prompter, path string) (*config.Configuration, error) {
	password, err := p.ask("Enter reset password: ")
	if err != nil {
		return nil, err
	}
	if !config.VerifyResetPassword(password) {
		return nil, errors.New("incorrect reset password")
	}
	input, err := p.askResetInput()
	if err != nil {
		return nil, err
	}
	return config.Reset(path, input)
}

// console reads operator commands while the runner is active.
type console struct {
	prompter   *prompter
	configFile string
	stop       context.CancelFunc
}

func newConsole(in io.Reader, out io.Writer, configFile string, stop context.CancelFunc) *console {
	return &console{prompter: newPrompter(in, out), configFile: configFile, stop: stop}
}

// run handles STOP and RESET until STOP is read, the input closes or ctx is
// done. Closed input does not stop the service.
func (c *console) run(ctx context.Context) {
	fmt.Fprintf(c.prompter.out, "Type %s to shut down or %s to change the configuration.\n", commandStop, commandReset)
	for ctx.Err() == nil {
		line, err := c.prompter.ask("")
		if err != nil {
			return
		}

		switch strings.ToUpper(line) {
		case "":
		case commandStop:
			logrus.Info("Stop requested from console")
			c.stop()
			return
		case commandReset:
			cnf, err := resetConfig(c.prompter, c.configFile)
			if err != nil {
				logrus.WithError(err).Error("Configuration reset failed")
				fmt.Fprintln(c.prompter.out, "Reset failed:", err)
				continue
			}
			fmt.Fprintf(c.prompter.out, "Configuration reset to version %d. It applies from the next cycle.\n", cnf.Version)
		default:
			fmt.Fprintf(c.prompter.out, "Unknown command %q. Type %s or %s.\n", line, commandStop, commandReset)
		}
	}
}
