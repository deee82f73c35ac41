package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"vision-wallet/go-backend/internal/composition/daemon"
	"vision-wallet/go-backend/internal/config"
	"vision-wallet/go-backend/internal/custody"
	"vision-wallet/go-backend/internal/platform/privacylog"
)

const (
	exitOK             = 0
	exitInvalidInput   = 10
	exitStorageFailed  = 20
	exitDecryptFailed  = 30
	exitRequestRefused = 40
)

const backupPassphraseEnv = "VISION_BACKUP_PASSPHRASE"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// commonFlags are shared by every subcommand that touches the keystore.
type commonFlags struct {
	configPath string
	dataDir    string
	backend    string
	namespace  string
	debug      bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) < 1 {
		c.printUsage()
		return exitInvalidInput
	}
	switch args[0] {
	case "create":
		return c.runCreate(args[1:])
	case "import":
		return c.runImport(args[1:])
	case "unlock":
		return c.runUnlock(args[1:])
	case "status":
		return c.runStatus(args[1:])
	case "reset":
		return c.runReset(args[1:])
	case "export":
		return c.runExport(args[1:])
	case "restore":
		return c.runRestore(args[1:])
	default:
		c.printUsage()
		return exitInvalidInput
	}
}

func (c *cli) newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	common := &commonFlags{}
	fs.StringVar(&common.configPath, "config", "", "config.yaml path")
	fs.StringVar(&common.dataDir, "data-dir", "", "keystore data directory")
	fs.StringVar(&common.backend, "backend", "", "storage backend: file | bolt | sqlite | memory")
	fs.StringVar(&common.namespace, "namespace", "", "keystore namespace")
	fs.BoolVar(&common.debug, "debug", false, "log operations to stderr")
	return fs, common
}

func (c *cli) openApp(common *commonFlags) (*daemon.App, error) {
	cfg, err := config.LoadWithDataDir(common.configPath, common.dataDir)
	if err != nil {
		return nil, err
	}
	if common.backend != "" {
		cfg.Storage.Backend = common.backend
	}
	if common.namespace != "" {
		cfg.Storage.Namespace = common.namespace
	}
	cfg.Metrics.Enabled = false
	level := slog.LevelWarn
	if common.debug {
		level = slog.LevelInfo
	}
	return daemon.Build(cfg, privacylog.NewJSONLogger(c.stderr, level))
}

func (c *cli) runCreate(args []string) int {
	fs, common := c.newFlagSet("create")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	created, err := app.Service.CreateWallet(context.Background())
	if err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	return c.printJSON(created)
}

func (c *cli) runImport(args []string) int {
	fs, common := c.newFlagSet("import")
	phraseFile := fs.String("mnemonic-file", "-", "file holding the backup phrase, - for stdin")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	phrase, err := c.readSecret(*phraseFile)
	if err != nil {
		return c.fail(err, exitInvalidInput)
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	created, err := app.Service.ImportWallet(context.Background(), strings.Fields(strings.ToLower(phrase)))
	if err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	return c.printJSON(map[string]string{"address": created.Address, "wallet_id": created.WalletID})
}

func (c *cli) runUnlock(args []string) int {
	fs, common := c.newFlagSet("unlock")
	reveal := fs.Bool("reveal", false, "print the mnemonic and private key")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	unlocked, err := app.Service.UnlockWallet(context.Background())
	if err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	if unlocked == nil {
		return c.printJSON(map[string]any{"unlocked": false})
	}
	defer unlocked.Wipe()
	if *reveal {
		return c.printJSON(map[string]any{"unlocked": true, "wallet": unlocked})
	}
	return c.printJSON(map[string]any{"unlocked": true, "address": unlocked.Address})
}

func (c *cli) runStatus(args []string) int {
	fs, common := c.newFlagSet("status")
	asJSON := fs.Bool("json", false, "emit json")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	st, err := app.Service.Status(context.Background())
	if err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	if *asJSON {
		return c.printJSON(st)
	}
	if _, err := fmt.Fprintf(c.stdout, "state=%s namespace=%s address=%s wallet_id=%s\n",
		st.State, st.Namespace, st.Address, st.WalletID); err != nil {
		return exitStorageFailed
	}
	return exitOK
}

func (c *cli) runReset(args []string) int {
	fs, common := c.newFlagSet("reset")
	yes := fs.Bool("yes", false, "confirm destruction of the keystore")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if !*yes {
		return c.fail(errors.New("reset destroys the wallet; rerun with -yes"), exitInvalidInput)
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	if err := app.Service.Reset(context.Background()); err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	return c.printJSON(map[string]bool{"reset": true})
}

func (c *cli) runExport(args []string) int {
	fs, common := c.newFlagSet("export")
	out := fs.String("out", "", "backup file to write")
	passFile := fs.String("passphrase-file", "", "file holding the backup passphrase (default $"+backupPassphraseEnv+")")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if strings.TrimSpace(*out) == "" {
		return c.fail(errors.New("-out is required"), exitInvalidInput)
	}
	passphrase, err := c.passphrase(*passFile)
	if err != nil {
		return c.fail(err, exitInvalidInput)
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	blob, err := app.Service.ExportBackup(context.Background(), passphrase)
	if err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	if blob == nil {
		return c.fail(errors.New("no wallet is provisioned"), exitRequestRefused)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return c.fail(err, exitStorageFailed)
	}
	return c.printJSON(map[string]any{"exported": true, "path": *out})
}

func (c *cli) runRestore(args []string) int {
	fs, common := c.newFlagSet("restore")
	in := fs.String("in", "", "backup file to read")
	passFile := fs.String("passphrase-file", "", "file holding the backup passphrase (default $"+backupPassphraseEnv+")")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if strings.TrimSpace(*in) == "" {
		return c.fail(errors.New("-in is required"), exitInvalidInput)
	}
	passphrase, err := c.passphrase(*passFile)
	if err != nil {
		return c.fail(err, exitInvalidInput)
	}
	blob, err := os.ReadFile(*in)
	if err != nil {
		return c.fail(err, exitInvalidInput)
	}
	app, err := c.openApp(common)
	if err != nil {
		return c.fail(err, openExitCode(err))
	}
	defer func() { _ = app.Close() }()

	created, err := app.Service.ImportBackup(context.Background(), passphrase, blob)
	if err != nil {
		return c.fail(err, exitCodeFor(err))
	}
	return c.printJSON(map[string]string{"address": created.Address, "wallet_id": created.WalletID})
}

func (c *cli) passphrase(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return c.readSecret(path)
	}
	if v := os.Getenv(backupPassphraseEnv); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("backup passphrase required: set -passphrase-file or %s", backupPassphraseEnv)
}

// readSecret reads the first line of path, or of stdin for "-". Secrets are
// never taken from argv.
func (c *cli) readSecret(path string) (string, error) {
	var r io.Reader = c.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return "", errors.New("empty secret input")
	}
	return line, nil
}

// openExitCode separates unusable configuration from a storage backend that
// could not be opened.
func openExitCode(err error) int {
	if errors.Is(err, custody.ErrPersistenceUnavailable) {
		return exitStorageFailed
	}
	return exitInvalidInput
}

func exitCodeFor(err error) int {
	switch custody.Classify(err) {
	case custody.ClassInvalidMnemonic, custody.ClassInvalidPayload:
		return exitInvalidInput
	case custody.ClassPersistenceUnavailable, custody.ClassEncryptionFailure:
		return exitStorageFailed
	case custody.ClassDecryptionFailure:
		return exitDecryptFailed
	case custody.ClassWalletExists, custody.ClassBackupRejected:
		return exitRequestRefused
	default:
		return exitStorageFailed
	}
}

func (c *cli) printJSON(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitStorageFailed
	}
	return exitOK
}

func (c *cli) fail(err error, code int) int {
	msg := err.Error()
	if reason := custody.Classify(err); reason != custody.ClassInternal {
		msg = reason + ": " + msg
	}
	_, _ = fmt.Fprintln(c.stderr, msg)
	return code
}

func (c *cli) printUsage() {
	lines := []string{
		"vision-keystore <command> [flags]",
		"common flags: [-config path] [-data-dir path] [-backend file|bolt|sqlite|memory] [-namespace name] [-debug]",
		"commands:",
		"  create                         provision a new wallet and print its backup phrase",
		"  import  [-mnemonic-file path]  restore from a backup phrase (stdin by default)",
		"  unlock  [-reveal]              decrypt the stored wallet",
		"  status  [-json]                report uninitialized | provisioned | corrupted",
		"  reset   -yes                   destroy the keystore and device secret",
		"  export  -out path [-passphrase-file path]",
		"  restore -in path [-passphrase-file path]",
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(c.stdout, line)
	}
}
