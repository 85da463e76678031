// Command gantryd bootstraps one or more printer instances and offers a
// minimal interactive console for driving them, styled after
// host/cmd/gopper-host (now cmd/klipper-console)'s flag+bufio.Scanner loop.
package main

import (
	"bufio"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"gantryd/instance"
)

var (
	root = flag.String("root", "./printers", "Root directory holding one subdirectory per printer instance")
	name = flag.String("name", "printer-1", "Instance name (subdirectory under -root)")
)

func main() {
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())
	logrus.SetLevel(logrus.InfoLevel)

	if err := os.MkdirAll(*root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create root directory: %v\n", err)
		os.Exit(1)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate auth secret: %v\n", err)
		os.Exit(1)
	}

	inst, err := instance.New(0, *name, *root, secret, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap instance %q: %v\n", *name, err)
		os.Exit(1)
	}
	defer inst.Close()

	// A freshly bootstrapped instance has no password set; set an empty one
	// so Login below can mint a session token without an interactive
	// credential step.
	if err := inst.ResetPassword(""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise credentials: %v\n", err)
		os.Exit(1)
	}
	toks, err := inst.Login("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to obtain a session token: %v\n", err)
		os.Exit(1)
	}
	token := toks.AccessToken

	fmt.Printf("gantryd - instance %q rooted at %s\n", *name, *root)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printHelp()

		case "restart":
			if err := inst.Restart(token); err != nil {
				fmt.Fprintf(os.Stderr, "restart failed: %v\n", err)
			}

		case "stop":
			if err := inst.EmergencyStop(token); err != nil {
				fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
			}

		case "info":
			info, err := inst.GetInfo(token)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info failed: %v\n", err)
				continue
			}
			fmt.Printf("state=%s gcode_running=%v position=(%.2f,%.2f,%.2f,%.2f)\n",
				info.State, info.GcodeRunning, info.X, info.Y, info.Z, info.E)

		case "gcode":
			if len(fields) < 2 {
				fmt.Println("usage: gcode <line...>")
				continue
			}
			if err := inst.RunGcode(token, strings.Join(fields[1:], " ")); err != nil {
				fmt.Fprintf(os.Stderr, "gcode failed: %v\n", err)
			}

		case "print":
			if len(fields) != 2 {
				fmt.Println("usage: print <filename>")
				continue
			}
			id, err := inst.QueuePrintJob(token, fields[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "print failed: %v\n", err)
				continue
			}
			fmt.Printf("queued job %s\n", id)

		default:
			fmt.Printf("unknown command: %s (type 'help' for available commands)\n", fields[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help             - show this help message")
	fmt.Println("  restart          - re-read and apply printer.cfg")
	fmt.Println("  stop             - emergency stop")
	fmt.Println("  info             - print lifecycle state and position")
	fmt.Println("  gcode <line>     - run a one-shot gcode line")
	fmt.Println("  print <filename> - queue a print job from gcodes/<filename>")
	fmt.Println("  quit/exit/q      - exit the program")
	fmt.Println()
}
