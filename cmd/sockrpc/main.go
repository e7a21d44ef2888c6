package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/codefionn/sockrpc/internal/client"
	"github.com/codefionn/sockrpc/internal/config"
	"github.com/codefionn/sockrpc/internal/logger"
	"github.com/codefionn/sockrpc/internal/protocol"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketFlag  = flag.String("socket", "", "server socket path (default from config)")
		timeoutFlag = flag.Float64("timeout", 0, "timeout in seconds (default from config)")
		notifyFlag  = flag.Bool("notify", false, "fire and forget, do not wait for a response")
		verboseFlag = flag.Bool("verbose", false, "log client internals to stderr")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("sockrpc %s\n", version)
		return nil
	}

	rest := flag.Args()
	if len(rest) < 1 {
		usage()
		return fmt.Errorf("missing command")
	}
	command := rest[0]

	var args map[string]interface{}
	if len(rest) > 1 {
		if err := json.Unmarshal([]byte(rest[1]), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelWarn
	if *verboseFlag {
		logLevel = logger.LevelDebug
	}
	if initErr := logger.Init(logLevel, ""); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}

	socket := *socketFlag
	if socket == "" {
		socket = cfg.SocketPath
	}
	timeout := time.Duration(cfg.DefaultTimeout * float64(time.Second))
	if *timeoutFlag > 0 {
		timeout = time.Duration(*timeoutFlag * float64(time.Second))
	}

	c, err := client.New(socket)
	if err != nil {
		return err
	}
	defer c.Close()

	if *notifyFlag {
		return c.Notify(command, args)
	}

	resp, err := c.Call(context.Background(), command, args, timeout)
	if err != nil {
		if serr, ok := err.(*protocol.StructuredError); ok {
			detail := ""
			if len(serr.Data) > 0 {
				if b, jerr := json.Marshal(serr.Data); jerr == nil {
					detail = " " + string(b)
				}
			}
			return fmt.Errorf("%s (code %d)%s", serr.Message, serr.Code, detail)
		}
		return err
	}

	return printResult(resp.Result)
}

// printResult writes the result as JSON: indented for humans, compact for
// pipes.
func printResult(v interface{}) error {
	var (
		out []byte
		err error
	)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: sockrpc [flags] <command> [args-json]\n\n")
	fmt.Fprintf(os.Stderr, "Sends one request to a sockrpcd daemon and prints the result.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  sockrpc ping\n")
	fmt.Fprintf(os.Stderr, "  sockrpc createWorkspace '{\"name\":\"lib-1\"}'\n")
	fmt.Fprintf(os.Stderr, "  sockrpc -notify log '{\"line\":\"done\"}'\n")
}
