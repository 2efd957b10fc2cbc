package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/antibyte/c64mcp/pkg/auth"
	"github.com/antibyte/c64mcp/pkg/basic"
	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/device"
	"github.com/antibyte/c64mcp/pkg/logger"
	"github.com/antibyte/c64mcp/pkg/mcpserver"
	"github.com/antibyte/c64mcp/pkg/monitor"
	"github.com/antibyte/c64mcp/pkg/screen"
	"github.com/antibyte/c64mcp/pkg/store"
)

var version = "dev"

type cli struct {
	Config  string `help:"Path of the settings file." default:"settings.cfg" type:"path"`
	EnvFile string `help:"Environment file loaded before the settings." default:".env" name:"env-file"`

	Serve        serveCmd        `cmd:"" default:"1" help:"Run the MCP server."`
	Tokenize     tokenizeCmd     `cmd:"" help:"Tokenize a BASIC source file."`
	List         listCmd         `cmd:"" help:"List a tokenized PRG file."`
	HashPassword hashPasswordCmd `cmd:"" name:"hash-password" help:"Print the bcrypt hash for Auth.password_hash."`
	Version      kong.VersionFlag `help:"Print the version."`
}

type serveCmd struct {
	Transport string `help:"Transport to serve (stdio or http), overrides Server.transport."`
}

func (c *serveCmd) Run(cli *cli) error {
	if err := configuration.Initialize(cli.Config); err != nil {
		return fmt.Errorf("initializing configuration: %w", err)
	}
	if err := logger.Initialize(); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()
	logger.ConfigInfo("Configuration loaded from %s", cli.Config)

	transport := c.Transport
	if transport == "" {
		transport = configuration.GetString("Server", "transport", "stdio")
	}

	dev, err := device.NewFromConfig()
	if err != nil {
		return err
	}
	logger.DeviceInfo("Using C64 Ultimate at %s", dev.BaseURL())

	opts := mcpserver.Options{}
	if configuration.GetBool("Database", "enable_history", true) {
		st, err := store.OpenFromConfig()
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}
	if transport == "http" && !auth.TokenRequired() {
		logger.ConfigWarn("HTTP transport without token authentication, anyone who can reach the port controls the C64")
	}
	if transport == "http" && configuration.GetBool("Monitor", "enabled", true) {
		opts.Hub = monitor.NewHub(screen.NewReader(dev))
	}

	mcpserver.Version = version
	server := mcpserver.New(dev, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch transport {
	case "stdio":
		err = server.Run(ctx)
	case "http":
		err = server.ListenAndServe(ctx)
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type tokenizeCmd struct {
	File string `arg:"" help:"BASIC source, one numbered line per line." type:"existingfile"`
	PRG  string `help:"Write a PRG file instead of printing hex." name:"prg" type:"path"`
	Base string `help:"Load address in hex." default:"0801"`
}

func (c *tokenizeCmd) Run() error {
	source, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	base, err := device.ParseAddress(c.Base)
	if err != nil {
		return err
	}
	img, err := basic.EncodeSource(string(source), base)
	if err != nil {
		return err
	}
	if c.PRG != "" {
		if err := os.WriteFile(c.PRG, img.PRG(), 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s: %d lines, %d bytes, end of program $%04X\n", c.PRG, img.Lines, len(img.Bytes), img.End)
		return nil
	}
	fmt.Println(img.Hex())
	fmt.Printf("end of program $%04X\n", img.End)
	return nil
}

type listCmd struct {
	File string `arg:"" help:"PRG file with load address." type:"existingfile"`
}

func (c *listCmd) Run() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	base, payload, err := basic.SplitPRG(data)
	if err != nil {
		return err
	}
	listing, err := basic.Decode(payload, base)
	if err != nil {
		return err
	}
	fmt.Print(listing.String())
	return nil
}

type hashPasswordCmd struct {
	Password string `arg:"" optional:"" help:"Password to hash, read from stdin when omitted."`
}

func (c *hashPasswordCmd) Run() error {
	password := c.Password
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("c64mcp"),
		kong.Description("MCP server for the Commodore 64 Ultimate."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	// a missing .env file is fine
	if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		ctx.Fatalf("loading %s: %v", c.EnvFile, err)
	}
	err := ctx.Run(&c)
	ctx.FatalIfErrorf(err)
}
