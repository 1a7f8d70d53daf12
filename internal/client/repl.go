// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Run starts a read-eval-print loop over in, writing prompts and
// results to out, until the user types "exit"/"quit" or in reaches
// EOF.
func Run(c *Client, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s> ", c.prompt())
		line, err := ReadLine(reader, "", out)
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "help":
			printHelp(out, c.LoggedIn())
		case "register":
			handleRegister(c, reader, out)
		case "login":
			handleLogin(c, reader, out)
		case "pwd":
			requireLogin(c, out, func() {
				if cwd, err := c.Pwd(); err != nil {
					fmt.Fprintln(out, "error:", err)
				} else {
					fmt.Fprintln(out, cwd)
				}
			})
		case "cd":
			requireLogin(c, out, func() { runArg1(out, args, "cd <path>", c.Cd) })
		case "mkdir":
			requireLogin(c, out, func() { runArg1(out, args, "mkdir <path>", c.Mkdir) })
		case "rm":
			requireLogin(c, out, func() { runArg1(out, args, "rm <path>", c.Rm) })
		case "ls":
			requireLogin(c, out, func() { handleLs(c, args, out) })
		case "put":
			requireLogin(c, out, func() { handlePut(c, args, out) })
		case "get":
			requireLogin(c, out, func() { handleGet(c, args, out) })
		case "exit", "quit":
			fmt.Fprintln(out, "goodbye")
			return
		default:
			fmt.Fprintln(out, "unknown command:", cmd)
		}
	}
}

func (c *Client) prompt() string {
	if !c.LoggedIn() {
		return "cloudvault"
	}
	return fmt.Sprintf("%s:%s", c.Username, c.cwd)
}

func requireLogin(c *Client, out io.Writer, fn func()) {
	if !c.LoggedIn() {
		fmt.Fprintln(out, "not logged in")
		return
	}
	fn()
}

func runArg1(out io.Writer, args []string, usage string, fn func(string) error) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage:", usage)
		return
	}
	if err := fn(args[0]); err != nil {
		fmt.Fprintln(out, "error:", err)
	}
}

func handleRegister(c *Client, reader *bufio.Reader, out io.Writer) {
	username, err := ReadLine(reader, "Username: ", out)
	if err != nil {
		return
	}
	password, err := ReadPassword(reader, out)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	status, err := c.Register(username, password)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintln(out, status)
}

func handleLogin(c *Client, reader *bufio.Reader, out io.Writer) {
	username, err := ReadLine(reader, "Username: ", out)
	if err != nil {
		return
	}
	password, err := ReadPassword(reader, out)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	status, err := c.Login(username, password)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if status != "ok" {
		fmt.Fprintln(out, status)
		return
	}
	fmt.Fprintln(out, "logged in as", username)
}

func handleLs(c *Client, args []string, out io.Writer) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	lines, err := c.Ls(path)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

func handlePut(c *Client, args []string, out io.Writer) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: put <local-path> <remote-path>")
		return
	}
	if err := c.Put(args[0], args[1]); err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintln(out, "uploaded", args[1])
}

func handleGet(c *Client, args []string, out io.Writer) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: get <remote-path> <local-path>")
		return
	}
	if err := c.Get(args[0], args[1]); err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintln(out, "downloaded", args[1])
}

func printHelp(out io.Writer, loggedIn bool) {
	if !loggedIn {
		fmt.Fprintln(out, "available commands: register, login, exit")
		return
	}
	fmt.Fprintln(out, "available commands: pwd, cd, ls, mkdir, rm, put, get, exit")
}
